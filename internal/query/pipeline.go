// Package query wires the full answer pipeline: rewrite, hybrid retrieval,
// reranking, generation, and trace persistence.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/plantdocs/scada-rag/internal/generation"
	"github.com/plantdocs/scada-rag/internal/relstore"
	"github.com/plantdocs/scada-rag/internal/retrieval"
	"github.com/plantdocs/scada-rag/internal/rewrite"
)

// Answer is the pipeline output returned to the caller. The same data is
// persisted as a trace before the answer is returned.
type Answer struct {
	QueryID         string
	AnswerText      string
	Language        string
	RewriteDegraded bool
	RerankDegraded  bool
	Contexts        []relstore.TraceContext
}

// Pipeline executes queries end to end.
type Pipeline struct {
	rewriter  *rewrite.Rewriter
	retriever *retrieval.HybridRetriever
	reranker  *retrieval.Reranker
	generator *generation.Adapter
	traces    *relstore.TraceStore
	timeout   time.Duration
	logger    *slog.Logger
}

// NewPipeline creates a query pipeline. timeout bounds the generation call
// once it has been issued.
func NewPipeline(
	rewriter *rewrite.Rewriter,
	retriever *retrieval.HybridRetriever,
	reranker *retrieval.Reranker,
	generator *generation.Adapter,
	traces *relstore.TraceStore,
	timeout time.Duration,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		rewriter:  rewriter,
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
		traces:    traces,
		timeout:   timeout,
		logger:    logger,
	}
}

// Execute runs one query through the pipeline. The trace is persisted
// before the answer returns, so every answer a caller sees is already
// recorded for feedback and evaluation.
func (p *Pipeline) Execute(ctx context.Context, rawQuery string) (*Answer, error) {
	start := time.Now()
	queryID := uuid.New().String()

	rw := p.rewriter.Rewrite(rawQuery)
	p.logger.Debug("Rewrote query", "query_id", queryID, "language", rw.Language, "degraded", rw.Degraded)

	candidates, err := p.retriever.Retrieve(ctx, rw.Rewritten)
	if err != nil {
		return nil, err
	}

	final, rerankDegraded := p.reranker.Rerank(ctx, rw.Rewritten, candidates)

	texts := make([]string, len(final))
	for i, c := range final {
		texts[i] = c.Chunk.Text
	}

	// Once generation is issued it runs to completion: the caller hanging
	// up must not burn a half-finished completion, and the trace must
	// record what was actually generated. Only the deadline applies.
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	// The generator gets the question as the user asked it. The rewritten
	// form exists to raise retrieval recall; its appended expansion terms
	// are not part of the question.
	answerText, err := p.generator.Generate(genCtx, rawQuery, rw.Language, texts)
	if err != nil {
		return nil, err
	}

	contexts := make([]relstore.TraceContext, len(final))
	for i, c := range final {
		contexts[i] = relstore.TraceContext{
			QueryID:      queryID,
			Position:     i,
			ChunkID:      c.Chunk.ID,
			ChunkText:    c.Chunk.Text,
			LexicalScore: c.LexicalScore,
			VectorScore:  c.VectorScore,
			FusedScore:   c.FusedScore,
			RerankScore:  c.RerankScore,
		}
	}

	trace := &relstore.QueryTrace{
		QueryID:         queryID,
		RawQuery:        rawQuery,
		RewrittenQuery:  rw.Rewritten,
		Language:        rw.Language,
		RewriteDegraded: rw.Degraded,
		RerankDegraded:  rerankDegraded,
		AnswerText:      answerText,
		Model:           p.generator.Model(),
		LatencyMS:       time.Since(start).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	}

	if err := p.traces.Save(genCtx, trace, contexts); err != nil {
		return nil, err
	}

	p.logger.Info("Answered query",
		"query_id", queryID,
		"language", rw.Language,
		"contexts", len(contexts),
		"latency_ms", trace.LatencyMS,
	)

	return &Answer{
		QueryID:         queryID,
		AnswerText:      answerText,
		Language:        rw.Language,
		RewriteDegraded: rw.Degraded,
		RerankDegraded:  rerankDegraded,
		Contexts:        contexts,
	}, nil
}
