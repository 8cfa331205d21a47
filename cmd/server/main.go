package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	lctools "github.com/tmc/langchaingo/tools"

	"agriguardian/internal/advisor"
	"agriguardian/internal/agent"
	"agriguardian/internal/classifier"
	"agriguardian/internal/config"
	"agriguardian/internal/embedding"
	"agriguardian/internal/helper"
	"agriguardian/internal/llmservice"
	"agriguardian/internal/lookup"
	"agriguardian/internal/rag"
	"agriguardian/internal/server"
	"agriguardian/internal/snapshot"
	"agriguardian/internal/tools"
)

var (
	configPath string
	port       string
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve plant disease classification and agricultural advice over HTTP",
	Long: `Starts the AgriGuardian API.

Routes:
  POST /snapshot          classify a raw image body and fill the latest snapshot
  POST /query_disease     disease information by query type
  GET  /latest_snapshot   latest image and prediction
  POST /searchdata        market insights for a crop
  GET  /health, /metrics`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to the yaml config")
	rootCmd.Flags().StringVar(&port, "port", "", "listen port, overrides config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	helper.InitLogger(cfg.LogLevel)
	if port != "" {
		cfg.Server.Port = port
	}
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := embedding.NewEmbedder(ctx, &cfg.EmbedLLM)
	if err != nil {
		return err
	}
	index, err := rag.OpenIndex(ctx, cfg, embedder)
	if err != nil {
		return err
	}
	defer index.Close()
	retriever := rag.NewRetriever(index, cfg.RAG.TopK)

	llm, err := llmservice.NewModel(ctx, &cfg.ChatLLM)
	if err != nil {
		return fmt.Errorf("create chat model: %w", err)
	}

	var search lctools.Tool
	if ddg, err := tools.NewWebSearch(&cfg.Lookup); err != nil {
		log.Error().Err(err).Msg("Web search unavailable")
	} else {
		search = ddg
	}
	lookups := lookup.NewService(&cfg.Lookup, search)

	var yt *tools.YouTube
	if cfg.Lookup.YouTubeKey != "" {
		if yt, err = tools.NewYouTube(ctx, cfg.Lookup.YouTubeKey); err != nil {
			log.Error().Err(err).Msg("YouTube search unavailable")
			yt = nil
		}
	} else {
		log.Warn().Msg("No YOUTUBE_API_KEY set, YouTube search disabled")
	}

	metrics := server.NewMetrics()
	executor := agent.NewExecutor(llm, tools.Default(retriever, search, yt, lookups),
		agent.WithTemperature(cfg.ChatLLM.Temperature))
	adv := advisor.New(retriever, executor, agent.NewMemory(),
		advisor.WithRecorder(metrics),
		advisor.WithTopK(cfg.RAG.TopK))

	srv := server.New(&cfg.Server, server.Deps{
		Classifier: classifier.New(ctx, &cfg.Classifier),
		Advisor:    adv,
		Weather:    lookups,
		Index:      retriever,
		Store:      snapshot.NewStore(),
		Metrics:    metrics,
	})
	return srv.Run(ctx)
}
