package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"agriguardian/internal/chromemdb"
	"agriguardian/internal/config"
	"agriguardian/internal/embedding"
	"agriguardian/internal/helper"
	"agriguardian/internal/ingest"
	"agriguardian/internal/parser"
	"agriguardian/internal/rag"
)

var (
	configPath string
	docsDir    string
	exportPath string
	rebuild    bool
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index crop documents into the vector store",
	Long: `Walks the documents directory (category/crop/[sub-crop]/files), extracts and
chunks every document not yet in the processed-files registry, checkpoints after
each file and finally embeds and indexes the new chunks. --rebuild empties the
vector index first so the whole checkpoint is indexed again.

Environment variables:
  DOCUMENTS_DIR     documents root (default: Information_About_Crops)
  VECTOR_STORE      chromem or pgvector (default: chromem)
  VECTOR_DB_DIR     chromem persistence directory (default: vector_db)
  GOOGLE_API_KEY    key for the default embedding provider`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to the yaml config")
	rootCmd.Flags().StringVar(&docsDir, "dir", "", "documents root, overrides config")
	rootCmd.Flags().StringVar(&exportPath, "export", "", "also export the chromem collection to this encrypted file")
	rootCmd.Flags().BoolVar(&rebuild, "rebuild", false, "drop the vector index and reindex every checkpointed chunk")
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
	if docsDir != "" {
		cfg.Ingest.DocumentsDir = docsDir
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
	if rebuild {
		if err := index.Reset(ctx); err != nil {
			return fmt.Errorf("reset vector index: %w", err)
		}
		log.Warn().Str("store", cfg.VectorDB.Store).Msg("Vector index dropped")
	}

	checkpoint, err := ingest.LoadCheckpoint(cfg.Ingest.CheckpointFile, cfg.Ingest.ProcessedFilesFile)
	if err != nil {
		return err
	}

	pipeline := ingest.NewPipeline(cfg.Ingest.DocumentsDir, checkpoint, parser.NewParser(cfg), embedder, index)
	res, err := pipeline.Run(ctx)
	if res != nil {
		log.Info().
			Int("processed", len(res.Processed)).
			Int("skipped", len(res.Skipped)).
			Int("failed", len(res.Failed)).
			Int("new_chunks", res.NewChunks).
			Int("indexed_chunks", res.IndexedChunks).
			Msg("Document processing finished")
		for _, f := range res.Failed {
			log.Warn().Str("file", f.Path).Str("reason", f.Reason).Msg("Not indexed")
		}
	}
	if err != nil {
		return err
	}

	if exportPath != "" {
		manager, ok := index.(*chromemdb.VectorDBManager)
		if !ok {
			return fmt.Errorf("--export requires the chromem vector store")
		}
		if err := manager.Export(exportPath); err != nil {
			return err
		}
		log.Info().Str("file", exportPath).Msg("Exported vector index")
	}
	log.Info().Str("path", cfg.VectorDB.Path).Msg("Vector database stored")
	return nil
}
