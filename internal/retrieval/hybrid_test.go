package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantdocs/scada-rag/internal/storage"
)

func chunk(id string, ordinal int, ingestedAt time.Time, text string) *storage.ChunkPoint {
	return &storage.ChunkPoint{
		ID:         id,
		DocumentID: "doc-1",
		Ordinal:    ordinal,
		Text:       text,
		IngestedAt: ingestedAt,
	}
}

func TestOchiai(t *testing.T) {
	q := tokenSet("pump seal replacement")

	assert.Equal(t, 1.0, ochiai(q, "pump seal replacement"))
	assert.Equal(t, 0.0, ochiai(q, "breaker trip settings"))
	assert.Equal(t, 0.0, ochiai(q, ""))

	// one of three tokens shared, 4-token text: 1/sqrt(3*4)
	got := ochiai(q, "mechanical seal installation guide")
	assert.InDelta(t, 1/math.Sqrt(12), got, 1e-9)
}

func TestFuse_WeightedSum(t *testing.T) {
	now := time.Now()
	r := &HybridRetriever{alpha: 0.7, k: 10}

	both := chunk("a", 0, now, "pump seal replacement")
	dense := []*storage.ScoredChunk{{Chunk: both, Score: 0.9}}
	lexical := []*storage.ChunkPoint{both}

	out := r.fuse("pump seal replacement", dense, lexical)
	require.Len(t, out, 1)
	assert.Equal(t, 0.9, out[0].VectorScore)
	assert.Equal(t, 1.0, out[0].LexicalScore)
	assert.InDelta(t, 0.7*0.9+0.3*1.0, out[0].FusedScore, 1e-9)
}

func TestFuse_ZeroLexicalScoreStillWeighted(t *testing.T) {
	now := time.Now()
	r := &HybridRetriever{alpha: 0.7, k: 10}

	// The lexical leg returned the chunk but its text shares no tokens with
	// the query, so its Ochiai score is zero. Being in both legs, the chunk
	// still gets the weighted sum, not the raw vector score.
	both := chunk("a", 0, now, "breaker trip settings")
	dense := []*storage.ScoredChunk{{Chunk: both, Score: 0.9}}
	lexical := []*storage.ChunkPoint{both}

	out := r.fuse("pump seal replacement", dense, lexical)
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].LexicalScore)
	assert.InDelta(t, 0.7*0.9, out[0].FusedScore, 1e-9)
}

func TestFuse_SingleLegNoPenalty(t *testing.T) {
	now := time.Now()
	r := &HybridRetriever{alpha: 0.7, k: 10}

	denseOnly := chunk("d", 0, now, "unrelated wording entirely")
	lexOnly := chunk("l", 1, now, "pump seal replacement")

	out := r.fuse("pump seal replacement",
		[]*storage.ScoredChunk{{Chunk: denseOnly, Score: 0.8}},
		[]*storage.ChunkPoint{lexOnly})
	require.Len(t, out, 2)

	byID := map[string]*Candidate{}
	for _, c := range out {
		byID[c.Chunk.ID] = c
	}
	// A chunk seen by one leg keeps that score undiluted.
	assert.Equal(t, 0.8, byID["d"].FusedScore)
	assert.Equal(t, 1.0, byID["l"].FusedScore)
}

func TestFuse_TieBreaks(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	r := &HybridRetriever{alpha: 0.5, k: 10}

	a := chunk("a", 5, older, "x")
	b := chunk("b", 2, newer, "x")
	c := chunk("c", 7, newer, "x")

	dense := []*storage.ScoredChunk{
		{Chunk: a, Score: 0.5},
		{Chunk: b, Score: 0.5},
		{Chunk: c, Score: 0.5},
	}
	out := r.fuse("query terms nothing matches", dense, nil)
	require.Len(t, out, 3)

	// Newer ingestion first, then lower ordinal.
	assert.Equal(t, "b", out[0].Chunk.ID)
	assert.Equal(t, "c", out[1].Chunk.ID)
	assert.Equal(t, "a", out[2].Chunk.ID)
}

func TestFuse_TruncatesToK(t *testing.T) {
	now := time.Now()
	r := &HybridRetriever{alpha: 0.5, k: 2}

	dense := []*storage.ScoredChunk{
		{Chunk: chunk("a", 0, now, "x"), Score: 0.9},
		{Chunk: chunk("b", 1, now, "x"), Score: 0.8},
		{Chunk: chunk("c", 2, now, "x"), Score: 0.7},
	}
	out := r.fuse("q", dense, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Chunk.ID)
	assert.Equal(t, "b", out[1].Chunk.ID)
}

// stubScorer returns fixed scores or an error.
type stubScorer struct {
	scores []float64
	err    error
}

func (s *stubScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores[:len(texts)], nil
}

func TestRerank_Reorders(t *testing.T) {
	now := time.Now()
	candidates := []*Candidate{
		{Chunk: chunk("a", 0, now, "first"), FusedScore: 0.9},
		{Chunk: chunk("b", 1, now, "second"), FusedScore: 0.8},
		{Chunk: chunk("c", 2, now, "third"), FusedScore: 0.7},
	}

	r := NewReranker(&stubScorer{scores: []float64{0.1, 0.9, 0.5}}, 2, nil)
	out, degraded := r.Rerank(context.Background(), "q", candidates)

	assert.False(t, degraded)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Chunk.ID)
	assert.Equal(t, "c", out[1].Chunk.ID)
}

func TestRerank_DegradedOnError(t *testing.T) {
	now := time.Now()
	candidates := []*Candidate{
		{Chunk: chunk("a", 0, now, "first"), FusedScore: 0.9},
		{Chunk: chunk("b", 1, now, "second"), FusedScore: 0.8},
		{Chunk: chunk("c", 2, now, "third"), FusedScore: 0.7},
	}

	r := NewReranker(&stubScorer{err: errors.New("service down")}, 2, nil)
	out, degraded := r.Rerank(context.Background(), "q", candidates)

	assert.True(t, degraded)
	require.Len(t, out, 2)
	// Fused order passes through.
	assert.Equal(t, "a", out[0].Chunk.ID)
	assert.Equal(t, "b", out[1].Chunk.ID)
}

func TestRerank_NilScorer(t *testing.T) {
	now := time.Now()
	candidates := []*Candidate{
		{Chunk: chunk("a", 0, now, "first"), FusedScore: 0.9},
	}

	r := NewReranker(nil, 5, nil)
	out, degraded := r.Rerank(context.Background(), "q", candidates)

	assert.True(t, degraded)
	assert.Len(t, out, 1)
}

func TestRerank_StableTies(t *testing.T) {
	now := time.Now()
	candidates := []*Candidate{
		{Chunk: chunk("a", 0, now, "first"), FusedScore: 0.9},
		{Chunk: chunk("b", 1, now, "second"), FusedScore: 0.8},
	}

	r := NewReranker(&stubScorer{scores: []float64{0.5, 0.5}}, 5, nil)
	out, degraded := r.Rerank(context.Background(), "q", candidates)

	assert.False(t, degraded)
	require.Len(t, out, 2)
	// Equal rerank scores keep fused order.
	assert.Equal(t, "a", out[0].Chunk.ID)
	assert.Equal(t, "b", out[1].Chunk.ID)
}

func TestRerank_Empty(t *testing.T) {
	r := NewReranker(&stubScorer{}, 5, nil)
	out, degraded := r.Rerank(context.Background(), "q", nil)
	assert.False(t, degraded)
	assert.Empty(t, out)
}
