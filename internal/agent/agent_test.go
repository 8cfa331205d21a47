package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// scriptedModel replays responses in order and records each request.
type scriptedModel struct {
	responses []*llms.ContentResponse
	err       error
	requests  [][]llms.MessageContent
	options   []llms.CallOptions
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	var o llms.CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	m.options = append(m.options, o)
	m.requests = append(m.requests, messages)
	if m.err != nil {
		return nil, m.err
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type recordingTool struct {
	name   string
	inputs []string
	err    error
}

func (t *recordingTool) Name() string        { return t.name }
func (t *recordingTool) Description() string { return "test tool" }
func (t *recordingTool) Call(_ context.Context, input string) (string, error) {
	t.inputs = append(t.inputs, input)
	if t.err != nil {
		return "", t.err
	}
	return t.name + " says hi", nil
}

func toolCall(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{ID: id, Type: "function", FunctionCall: &llms.FunctionCall{Name: name, Arguments: args}}},
	}}}
}

func answer(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func TestRun_ToolLoop(t *testing.T) {
	weather := &recordingTool{name: "GetWeatherForMyArea"}
	soil := &recordingTool{name: "GetSoilTypeInMyArea"}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("1", "GetSoilTypeInMyArea", `{"query":"here"}`),
		toolCall("2", "GetWeatherForMyArea", `{"__arg1":"now"}`),
		answer(`{"about":"ok"}`),
	}}

	out, err := NewExecutor(model, []tools.Tool{weather, soil}, WithTemperature(0.1)).Run(context.Background(), "system", "question")
	require.NoError(t, err)
	assert.Equal(t, `{"about":"ok"}`, out)
	assert.Equal(t, []string{"here"}, soil.inputs)
	assert.Equal(t, []string{"now"}, weather.inputs)

	require.Len(t, model.requests, 3)
	last := model.requests[2]
	require.Len(t, last, 6)
	assert.Equal(t, llms.ChatMessageTypeAI, last[2].Role)
	assert.Equal(t, llms.ChatMessageTypeTool, last[3].Role)
	resp := last[3].Parts[0].(llms.ToolCallResponse)
	assert.Equal(t, "1", resp.ToolCallID)
	assert.Equal(t, "GetSoilTypeInMyArea says hi", resp.Content)

	assert.Len(t, model.options[0].Tools, 2)
	assert.InDelta(t, 0.1, model.options[0].Temperature, 1e-9)
}

func TestRun_ToolErrorsAreFedBack(t *testing.T) {
	broken := &recordingTool{name: "SearchInternet", err: errors.New("rate limited")}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("1", "SearchInternet", `{"query":"wheat"}`),
		toolCall("2", "Nope", `{}`),
		answer("done"),
	}}

	out, err := NewExecutor(model, []tools.Tool{broken}).Run(context.Background(), "s", "q")
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	msgs := model.requests[2]
	assert.Equal(t, "error: rate limited", msgs[3].Parts[0].(llms.ToolCallResponse).Content)
	assert.Equal(t, `error: unknown tool "Nope"`, msgs[5].Parts[0].(llms.ToolCallResponse).Content)
}

func TestRun_MaxIterations(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{toolCall("1", "x", "{}")}}
	_, err := NewExecutor(model, nil, WithMaxIterations(3)).Run(context.Background(), "s", "q")
	assert.ErrorIs(t, err, ErrMaxIterations)
	assert.Len(t, model.requests, 3)
}

func TestRun_ModelError(t *testing.T) {
	model := &scriptedModel{err: errors.New("quota exceeded")}
	_, err := NewExecutor(model, nil).Run(context.Background(), "s", "q")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestToolInput(t *testing.T) {
	assert.Equal(t, "blight", toolInput(`{"query":"blight"}`))
	assert.Equal(t, "", toolInput(`{}`))
	assert.Equal(t, "plain text", toolInput("plain text"))
	assert.Equal(t, `{"crop":"rice"}`, toolInput(`{"crop":"rice"}`))
}

func TestMemory_ConcurrentSaves(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Save(context.Background(), "instruction", "response"))
		}()
	}
	wg.Wait()

	msgs, err := m.Messages(context.Background())
	require.NoError(t, err)
	assert.Len(t, msgs, 40)
	assert.Equal(t, "instruction", msgs[0].GetContent())
	assert.Equal(t, "response", msgs[1].GetContent())
}
