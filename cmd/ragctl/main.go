// Package main provides the ragctl CLI for ingesting manuals and running
// evaluations against the knowledge base stores.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/plantdocs/scada-rag/internal/config"
	"github.com/plantdocs/scada-rag/internal/evaluation"
	"github.com/plantdocs/scada-rag/internal/registry"
	"github.com/plantdocs/scada-rag/internal/relstore"
)

var rosterPath string

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "SCADA manual knowledge base operations tool",
	Long:  "CLI tool for ingesting plant manuals, running evaluations, and inspecting index state",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Ingest manual text files into the knowledge base",
	Long: `Hashes, chunks, embeds, and indexes the given files.

Files whose content is already indexed are skipped. A directory argument
ingests every .txt file under it.

Environment variables:
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY OpenAI API key for embeddings (required)
  DATA_DIR       SQLite store directory (default: data)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [suite-name]",
	Short: "Run an evaluation over the trailing feedback window",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document registry and collection state",
	RunE:  runStatus,
}

func init() {
	evaluateCmd.Flags().StringVar(&rosterPath, "roster", "", "YAML judge roster file (overrides EVAL_MODELS)")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRegistry() (*registry.Registry, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if rosterPath != "" {
		if err := cfg.LoadJudgeRoster(rosterPath); err != nil {
			return nil, nil, err
		}
	}
	reg, err := registry.New(cfg, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return reg, cfg, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	paths, err := expandPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no ingestible files found")
	}

	fmt.Println("Starting ingestion...")
	fmt.Println()

	// 1. Build components
	reg, _, err := buildRegistry()
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer reg.Close()

	// 2. Ensure collection exists
	if err := reg.Vectors.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	// 3. Filter to pending documents
	pending, err := reg.Ingest.Check(ctx, paths)
	if err != nil {
		return fmt.Errorf("pending check failed: %w", err)
	}
	fmt.Printf("Found %d files, %d pending\n", len(paths), len(pending))

	// 4. Process
	result, err := reg.Ingest.ProcessAll(ctx, pending)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	// 5. Print results
	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Skipped:   %d\n", result.SkippedDocs)
	fmt.Printf("  Chunks:    %d\n", result.TotalChunks)
	fmt.Printf("  Duration:  %s\n", result.Duration.Round(time.Second))

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	reg, cfg, err := buildRegistry()
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer reg.Close()

	fmt.Printf("Running evaluation suite %q with models %v...\n", args[0], cfg.JudgeModels)

	report, err := reg.Orchestrator.Run(ctx, evaluation.RunRequest{
		SuiteName:  args[0],
		Models:     cfg.JudgeModels,
		WindowDays: cfg.WindowDays,
	})
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	fmt.Println()
	fmt.Printf("Run %s complete\n", report.RunID)
	if len(report.Aggregates) == 0 {
		fmt.Println("No feedback in window; nothing to score.")
		return nil
	}
	fmt.Println()
	for _, agg := range report.Aggregates {
		fmt.Printf("  %-20s %-18s mean=%.3f pass=%.0f%% (n=%d)\n",
			agg.ModelID, agg.MetricName, agg.Mean, agg.PassRate*100, agg.Count)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	reg, cfg, err := buildRegistry()
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer reg.Close()

	docs, err := reg.Rel.Documents().List(ctx)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	points, err := reg.Vectors.CountPoints(ctx)
	if err != nil {
		return fmt.Errorf("counting points: %w", err)
	}

	var indexed, failed int
	for _, d := range docs {
		switch d.Status {
		case relstore.StatusIndexed:
			indexed++
		case relstore.StatusFailed:
			failed++
		}
	}

	fmt.Printf("Collection: %s\n", cfg.CollectionName)
	fmt.Printf("  Documents: %d (%d indexed, %d failed)\n", len(docs), indexed, failed)
	fmt.Printf("  Chunks:    %d\n", points)

	if failed > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, d := range docs {
			if d.Status == relstore.StatusFailed {
				fmt.Printf("  - %s: %s\n", d.SourcePath, d.ErrorMessage)
			}
		}
	}
	return nil
}

// expandPaths resolves directory arguments to their .txt files.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == ".txt" {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}
