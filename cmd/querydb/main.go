package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"agriguardian/internal/chromemdb"
	"agriguardian/internal/config"
	"agriguardian/internal/embedding"
	"agriguardian/internal/helper"
	"agriguardian/internal/llmservice"
	"agriguardian/internal/rag"
)

const defaultQuery = "early blight treatment in potatoes"

var (
	configPath string
	query      string
	topK       int
	answer     bool
	importPath string
)

var rootCmd = &cobra.Command{
	Use:   "querydb",
	Short: "Run a similarity search against the persisted vector index",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to the yaml config")
	rootCmd.Flags().StringVarP(&query, "query", "q", defaultQuery, "text to search for")
	rootCmd.Flags().IntVar(&topK, "k", 5, "number of results")
	rootCmd.Flags().BoolVar(&answer, "answer", false, "also ask the chat model to answer from the results")
	rootCmd.Flags().StringVar(&importPath, "import", "", "load an exported chromem collection before searching")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	helper.InitLogger(cfg.LogLevel)

	embedder, err := embedding.NewEmbedder(ctx, &cfg.EmbedLLM)
	if err != nil {
		return err
	}
	index, err := rag.OpenIndex(ctx, cfg, embedder)
	if err != nil {
		return err
	}
	defer index.Close()

	if importPath != "" {
		manager, ok := index.(*chromemdb.VectorDBManager)
		if !ok {
			return fmt.Errorf("--import requires the chromem vector store")
		}
		if err := manager.Import(importPath); err != nil {
			return err
		}
	}

	retriever := rag.NewRetriever(index, cfg.RAG.TopK)
	hits, err := retriever.Search(ctx, query, topK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Top %d results for query: '%s'\n%s\n", topK, query, strings.Repeat("-", 60))
	for i, hit := range hits {
		fmt.Fprintf(out, "[%d] Text:\n%s\n\n", i+1, hit.Content)
		fmt.Fprint(out, "    Metadata: ")
		helper.PrettyPrint(out, hit.Metadata)
		fmt.Fprintln(out)
	}

	if !answer {
		return nil
	}
	llm, err := llmservice.NewModel(ctx, &cfg.ChatLLM)
	if err != nil {
		return err
	}
	response, err := retriever.Answer(ctx, llm, cfg.ChatLLM.Temperature, query)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Answer:\n%s\n", response)
	return nil
}
