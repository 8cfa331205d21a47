package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/duckduckgo"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"agriguardian/internal/config"
	"agriguardian/internal/lookup"
	"agriguardian/internal/rag"
)

const (
	AgricultureSearch = "agriculture_search"
	SearchInternet    = "SearchInternet"
	YouTubeSearch     = "YouTubeSearch"
	SoilType          = "GetSoilTypeInMyArea"
	Weather           = "GetWeatherForMyArea"
)

// Func is a tool backed by a plain function.
type Func struct {
	name        string
	description string
	fn          func(ctx context.Context, input string) (string, error)
}

var _ tools.Tool = (*Func)(nil)

func NewFunc(name, description string, fn func(ctx context.Context, input string) (string, error)) *Func {
	return &Func{name: name, description: description, fn: fn}
}

func (f *Func) Name() string        { return f.name }
func (f *Func) Description() string { return f.description }

func (f *Func) Call(ctx context.Context, input string) (string, error) {
	return f.fn(ctx, input)
}

// NewRetrieverTool searches the local vector index and returns matching passages.
func NewRetrieverTool(retriever *rag.Retriever) *Func {
	return NewFunc(AgricultureSearch,
		"Search for agricultural content, crop diseases, treatments, and fertilizers from the vector database.",
		func(ctx context.Context, input string) (string, error) {
			hits, err := retriever.Search(ctx, input, 0)
			if err != nil {
				return "", err
			}
			passages := make([]string, 0, len(hits))
			for _, hit := range hits {
				passages = append(passages, rag.StripMarkup(hit.Content))
			}
			return strings.Join(passages, "\n\n"), nil
		})
}

// NewWebSearch creates the DuckDuckGo search tool.
func NewWebSearch(cfg *config.LookupConfig) (tools.Tool, error) {
	ddg, err := duckduckgo.New(cfg.SearchResults, cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("create duckduckgo tool: %w", err)
	}
	return ddg, nil
}

func NewSearchInternetTool(search tools.Tool) *Func {
	return NewFunc(SearchInternet, "Search the internet for agriculture-related information", search.Call)
}

// YouTube searches videos through the YouTube Data API.
type YouTube struct {
	service    *youtube.Service
	maxResults int64
}

func NewYouTube(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTube, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &YouTube{service: service, maxResults: 2}, nil
}

// Search returns watch URLs as a JSON array.
func (y *YouTube) Search(ctx context.Context, query string) (string, error) {
	resp, err := y.service.Search.List([]string{"id"}).
		Q(query).
		Type("video").
		MaxResults(y.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube search: %w", err)
	}

	urls := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		urls = append(urls, "https://www.youtube.com/watch?v="+item.Id.VideoId)
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CleanVideoQuery keeps the text before the first comma.
func CleanVideoQuery(query string) string {
	before, _, _ := strings.Cut(query, ",")
	return strings.TrimSpace(before)
}

// NewYouTubeTool works without an API key but then only reports that search is unavailable.
func NewYouTubeTool(yt *YouTube) *Func {
	return NewFunc(YouTubeSearch,
		"Search YouTube for relevant videos about agricultural diseases and treatments",
		func(ctx context.Context, input string) (string, error) {
			if yt == nil {
				return "YouTube search is not configured.", nil
			}
			return yt.Search(ctx, CleanVideoQuery(input))
		})
}

func NewSoilTool(svc *lookup.Service) *Func {
	return NewFunc(SoilType,
		"Auto-detect location & fetch local soil type via web search.",
		func(ctx context.Context, _ string) (string, error) {
			return svc.Soil(ctx), nil
		})
}

func NewWeatherTool(svc *lookup.Service) *Func {
	return NewFunc(Weather,
		"Get current weather conditions for my location.",
		func(ctx context.Context, _ string) (string, error) {
			return svc.WeatherReport(ctx), nil
		})
}

// Default assembles the advisor tool set in the order the agent is given them.
func Default(retriever *rag.Retriever, search tools.Tool, yt *YouTube, svc *lookup.Service) []tools.Tool {
	set := []tools.Tool{NewRetrieverTool(retriever)}
	if search != nil {
		set = append(set, NewSearchInternetTool(search))
	} else {
		log.Warn().Msg("Web search unavailable, SearchInternet tool disabled")
	}
	return append(set, NewYouTubeTool(yt), NewSoilTool(svc), NewWeatherTool(svc))
}
