package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"
	"github.com/tmc/langchaingo/tools"

	"agriguardian/internal/llmservice"
)

var ErrMaxIterations = errors.New("agent stopped after max iterations")

// Runner is what the advisor needs from an agent.
type Runner interface {
	Run(ctx context.Context, system, input string) (string, error)
}

// Executor drives a tool-calling loop: the model either answers or requests tool
// calls, whose outputs are fed back until it answers.
type Executor struct {
	llm           llms.Model
	tools         map[string]tools.Tool
	definitions   []llms.Tool
	temperature   float64
	maxIterations int
}

type Option func(*Executor)

func WithTemperature(t float64) Option {
	return func(e *Executor) { e.temperature = t }
}

func WithMaxIterations(n int) Option {
	return func(e *Executor) { e.maxIterations = n }
}

func NewExecutor(llm llms.Model, toolset []tools.Tool, opts ...Option) *Executor {
	e := &Executor{
		llm:           llm,
		tools:         make(map[string]tools.Tool, len(toolset)),
		temperature:   0.3,
		maxIterations: 10,
	}
	for _, t := range toolset {
		e.tools[t.Name()] = t
		e.definitions = append(e.definitions, Definition(t))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Definition describes a tool to the model as a function taking one query string.
func Definition(t tools.Tool) llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "the search query or input for the tool",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

func (e *Executor) Run(ctx context.Context, system, input string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}

	for i := 0; i < e.maxIterations; i++ {
		resp, err := llmservice.GenerateContent(ctx, e.llm, e.temperature, e.definitions, messages)
		if err != nil {
			return "", err
		}
		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			return choice.Content, nil
		}

		call := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			call.Parts = append(call.Parts, tc)
		}
		messages = append(messages, call)

		for _, tc := range choice.ToolCalls {
			var name string
			if tc.FunctionCall != nil {
				name = tc.FunctionCall.Name
			}
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       name,
					Content:    e.callTool(ctx, tc),
				}},
			})
		}
	}
	return "", ErrMaxIterations
}

// callTool never fails; errors are reported back to the model as text.
func (e *Executor) callTool(ctx context.Context, tc llms.ToolCall) string {
	if tc.FunctionCall == nil {
		return "error: empty function call"
	}
	name := tc.FunctionCall.Name
	tool, ok := e.tools[name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", name)
	}

	input := toolInput(tc.FunctionCall.Arguments)
	log.Debug().Str("tool", name).Str("input", input).Msg("Calling tool")
	out, err := tool.Call(ctx, input)
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("Tool call failed")
		return "error: " + err.Error()
	}
	return out
}

// toolInput pulls the query out of the arguments object, or returns them verbatim.
func toolInput(arguments string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return arguments
	}
	for _, key := range []string{"query", "__arg1", "input"} {
		if v, ok := args[key].(string); ok {
			return v
		}
	}
	if len(args) == 0 {
		return ""
	}
	return arguments
}

// Memory is an append-only transcript of instructions and agent responses.
type Memory struct {
	mu  sync.Mutex
	buf *memory.ConversationBuffer
}

func NewMemory() *Memory {
	return &Memory{buf: memory.NewConversationBuffer()}
}

func (m *Memory) Save(ctx context.Context, input, output string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.SaveContext(ctx,
		map[string]any{"user_input": input},
		map[string]any{"agent_response": output},
	)
}

func (m *Memory) Messages(ctx context.Context) ([]llms.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.ChatHistory.Messages(ctx)
}
