// Package registry builds and owns the process-wide component graph. Both
// entry points construct a Registry once, use its pipelines, and Close it
// on shutdown.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/plantdocs/scada-rag/internal/chunker"
	"github.com/plantdocs/scada-rag/internal/config"
	"github.com/plantdocs/scada-rag/internal/embedding"
	"github.com/plantdocs/scada-rag/internal/evaluation"
	"github.com/plantdocs/scada-rag/internal/extract"
	"github.com/plantdocs/scada-rag/internal/generation"
	"github.com/plantdocs/scada-rag/internal/ingest"
	"github.com/plantdocs/scada-rag/internal/query"
	"github.com/plantdocs/scada-rag/internal/relstore"
	"github.com/plantdocs/scada-rag/internal/retrieval"
	"github.com/plantdocs/scada-rag/internal/rewrite"
	"github.com/plantdocs/scada-rag/internal/storage"
)

// Registry holds every long-lived component, constructed once at startup.
type Registry struct {
	Config  *config.Config
	Rel     *relstore.Store
	Vectors *storage.QdrantStorage

	Ingest       *ingest.Pipeline
	Query        *query.Pipeline
	Orchestrator *evaluation.Orchestrator

	logger *slog.Logger
}

// New builds the full component graph. Construction fails fast: an
// unreachable Qdrant or an unopenable SQLite file is an error here, not at
// first use.
func New(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rel, err := relstore.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("relational store: %w", err)
	}

	vectors, err := storage.NewQdrantStorage(cfg.QdrantHost, cfg.QdrantPort, cfg.CollectionName, cfg.EmbeddingDimension)
	if err != nil {
		rel.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}

	client, err := embedding.NewClient()
	if err != nil {
		vectors.Close()
		rel.Close()
		return nil, err
	}

	embedder := embedding.NewEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDimension, 0)

	ingestPipeline := ingest.NewPipeline(
		rel.Documents(),
		vectors,
		extract.NewTextExtractor(),
		chunker.New(chunker.WithTargetTokens(cfg.ChunkTokens), chunker.WithOverlap(cfg.ChunkOverlap)),
		embedder,
		cfg.IngestWorkers,
		logger,
	)

	retriever := retrieval.NewHybridRetriever(vectors, embedder, cfg.HybridAlpha, cfg.RetrieveK, logger)

	var scorer retrieval.Scorer
	if cfg.RerankEndpoint != "" {
		scorer = retrieval.NewCrossEncoderClient(cfg.RerankEndpoint, cfg.RequestTimeout)
	}
	reranker := retrieval.NewReranker(scorer, cfg.ContextM, logger)

	generator := generation.NewAdapter(client.Client(), cfg.GenerationModel)

	queryPipeline := query.NewPipeline(
		rewrite.NewRewriter(),
		retriever,
		reranker,
		generator,
		rel.Traces(),
		cfg.RequestTimeout,
		logger,
	)

	orchestrator := evaluation.NewOrchestrator(
		rel.Evaluations(),
		rel.Feedback(),
		client.Client(),
		cfg.PassThreshold,
		logger,
	)

	return &Registry{
		Config:       cfg,
		Rel:          rel,
		Vectors:      vectors,
		Ingest:       ingestPipeline,
		Query:        queryPipeline,
		Orchestrator: orchestrator,
		logger:       logger,
	}, nil
}

// Close releases store connections. Safe to call once after all in-flight
// work has drained.
func (r *Registry) Close() error {
	var firstErr error
	if err := r.Vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.Rel.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
