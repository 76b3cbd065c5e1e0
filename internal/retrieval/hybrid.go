// Package retrieval finds context candidates for a query: a dense vector
// leg and a lexical full-text leg run in parallel, scores are fused with a
// configurable weight, and an optional cross-encoder reranks the pool.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/plantdocs/scada-rag/internal/embedding"
	"github.com/plantdocs/scada-rag/internal/storage"
)

// Candidate is one retrieved chunk with its per-stage scores. All scores
// are in [0,1]; a score is zero when its stage did not see the chunk.
type Candidate struct {
	Chunk        *storage.ChunkPoint
	LexicalScore float64
	VectorScore  float64
	FusedScore   float64
	RerankScore  float64
}

// HybridRetriever runs both search legs and fuses the results.
type HybridRetriever struct {
	vectors  *storage.QdrantStorage
	embedder *embedding.Embedder
	alpha    float64
	k        int
	logger   *slog.Logger
}

// NewHybridRetriever creates a retriever. alpha weights the dense leg in
// fusion; k is the candidate pool size handed to the reranker.
func NewHybridRetriever(vectors *storage.QdrantStorage, embedder *embedding.Embedder, alpha float64, k int, logger *slog.Logger) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		vectors:  vectors,
		embedder: embedder,
		alpha:    alpha,
		k:        k,
		logger:   logger,
	}
}

// Retrieve runs the dense and lexical legs concurrently and returns the top
// k candidates by fused score. One leg failing degrades to the other;
// both failing returns ErrRetrievalUnavailable.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string) ([]*Candidate, error) {
	var (
		wg         sync.WaitGroup
		dense      []*storage.ScoredChunk
		denseErr   error
		lexical    []*storage.ChunkPoint
		lexicalErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		dense, denseErr = r.denseLeg(ctx, query)
	}()
	go func() {
		defer wg.Done()
		lexical, lexicalErr = r.vectors.SearchLexical(ctx, query, r.k)
	}()
	wg.Wait()

	if denseErr != nil && lexicalErr != nil {
		r.logger.Error("Both retrieval legs failed", "dense_error", denseErr, "lexical_error", lexicalErr)
		return nil, ErrRetrievalUnavailable
	}
	if denseErr != nil {
		r.logger.Warn("Dense leg failed, using lexical only", "error", denseErr)
	}
	if lexicalErr != nil {
		r.logger.Warn("Lexical leg failed, using dense only", "error", lexicalErr)
	}

	return r.fuse(query, dense, lexical), nil
}

func (r *HybridRetriever) denseLeg(ctx context.Context, query string) ([]*storage.ScoredChunk, error) {
	embeddings, err := r.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return r.vectors.SearchDense(ctx, embeddings[0], r.k)
}

// fuse merges the two result sets by chunk ID. A chunk seen by both legs
// gets the weighted sum alpha*vector + (1-alpha)*lexical; a chunk seen by
// one leg keeps that leg's score undiluted, so a missing leg is never a
// penalty. Membership is tracked per leg explicitly: a zero score from a
// leg that did return the chunk still dilutes, only true absence is
// exempt. Ties break toward newer ingestion, then lower ordinal.
func (r *HybridRetriever) fuse(query string, dense []*storage.ScoredChunk, lexical []*storage.ChunkPoint) []*Candidate {
	type legged struct {
		c              *Candidate
		dense, lexical bool
	}
	byID := make(map[string]*legged)

	for _, sc := range dense {
		byID[sc.Chunk.ID] = &legged{
			c:     &Candidate{Chunk: sc.Chunk, VectorScore: sc.Score},
			dense: true,
		}
	}

	queryTokens := tokenSet(query)
	for _, chunk := range lexical {
		score := ochiai(queryTokens, chunk.Text)
		if l, ok := byID[chunk.ID]; ok {
			l.c.LexicalScore = score
			l.lexical = true
		} else {
			byID[chunk.ID] = &legged{
				c:       &Candidate{Chunk: chunk, LexicalScore: score},
				lexical: true,
			}
		}
	}

	candidates := make([]*Candidate, 0, len(byID))
	for _, l := range byID {
		c := l.c
		switch {
		case l.dense && l.lexical:
			c.FusedScore = r.alpha*c.VectorScore + (1-r.alpha)*c.LexicalScore
		case l.dense:
			c.FusedScore = c.VectorScore
		default:
			c.FusedScore = c.LexicalScore
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if !a.Chunk.IngestedAt.Equal(b.Chunk.IngestedAt) {
			return a.Chunk.IngestedAt.After(b.Chunk.IngestedAt)
		}
		return a.Chunk.Ordinal < b.Chunk.Ordinal
	})

	if len(candidates) > r.k {
		candidates = candidates[:r.k]
	}
	return candidates
}
