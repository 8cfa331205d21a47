package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"

	"agriguardian/internal/llmservice"
	"agriguardian/internal/models"
)

// Hit is one retrieved chunk.
type Hit = models.SearchResult

// Store is implemented by the chromem and pgvector indexes.
type Store interface {
	Search(ctx context.Context, query string, k int) ([]models.SearchResult, error)
	Count(ctx context.Context) (int, error)
}

type Retriever struct {
	store Store
	topK  int
}

func NewRetriever(store Store, topK int) *Retriever {
	if topK <= 0 {
		topK = 10
	}
	return &Retriever{store: store, topK: topK}
}

// Search returns up to k hits nearest first; k <= 0 uses the configured default.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = r.topK
	}
	hits, err := r.store.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("query", query).Int("k", k).Int("hits", len(hits)).Msg("Retrieved documents")
	return hits, nil
}

func (r *Retriever) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

// BuildContext renders hits as "Content/Sources" blocks for the agent prompt.
func BuildContext(hits []Hit) string {
	if len(hits) == 0 {
		return models.NoContextFound
	}

	blocks := make([]string, 0, len(hits))
	for _, hit := range hits {
		sources, err := json.MarshalIndent(hit.Metadata, "", "  ")
		if err != nil {
			sources = []byte("{}")
		}
		blocks = append(blocks, fmt.Sprintf("Content: %s\nSources: %s", StripMarkup(hit.Content), sources))
	}
	return strings.Join(blocks, models.ContextSeparator)
}

var markdown = goldmark.New(goldmark.WithRendererOptions(gmhtml.WithUnsafe()))

// StripMarkup renders markdown and drops every tag, leaving the text.
func StripMarkup(s string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(s), &buf); err != nil {
		return s
	}

	var out strings.Builder
	z := html.NewTokenizer(&buf)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(out.String())
		case html.TextToken:
			out.Write(z.Text())
		case html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "li", "br", "h1", "h2", "h3", "h4", "h5", "h6", "pre", "tr":
				if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
					out.WriteByte('\n')
				}
			}
		}
	}
}

const answerPrompt = "You are a helpful agricultural assistant. Use the provided context to answer the query."

// Answer retrieves context for query and asks llm for a direct answer.
func (r *Retriever) Answer(ctx context.Context, llm llms.Model, temperature float64, query string) (string, error) {
	hits, err := r.Search(ctx, query, 0)
	if err != nil {
		return "", err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, answerPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Context:\n%s\nQuery: %s", BuildContext(hits), query)),
	}
	resp, err := llmservice.GenerateContent(ctx, llm, temperature, nil, messages)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}
