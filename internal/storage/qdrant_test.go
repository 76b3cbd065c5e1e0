//go:build integration
// +build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 4

// setupTestStorage creates a test storage instance against a local Qdrant.
// Skips if Qdrant is not running.
func setupTestStorage(t *testing.T) *QdrantStorage {
	s, err := NewQdrantStorage("localhost", 6334, "manual_chunks_test", testDimension)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	require.NoError(t, s.EnsureCollection(context.Background()))
	return s
}

func testPoint(docID string, ordinal int, text string, vec []float32) *ChunkPoint {
	return &ChunkPoint{
		ID:         uuid.New().String(),
		DocumentID: docID,
		Ordinal:    ordinal,
		Text:       text,
		SourcePath: "/manuals/pump.txt",
		Language:   "en",
		IngestedAt: time.Now().UTC().Truncate(time.Second),
		Embedding:  vec,
	}
}

func TestChunkRoundTrip(t *testing.T) {
	s := setupTestStorage(t)
	defer s.Close()
	ctx := context.Background()

	docID := uuid.New().String()
	point := testPoint(docID, 0, "pump seal replacement procedure", []float32{1, 0, 0, 0})
	require.NoError(t, s.UpsertChunks(ctx, []*ChunkPoint{point}))

	got, err := s.GetChunk(ctx, point.ID)
	require.NoError(t, err)
	assert.Equal(t, point.DocumentID, got.DocumentID)
	assert.Equal(t, point.Ordinal, got.Ordinal)
	assert.Equal(t, point.Text, got.Text)
	assert.Equal(t, point.Language, got.Language)
	assert.True(t, point.IngestedAt.Equal(got.IngestedAt))

	require.NoError(t, s.DeleteByDocument(ctx, docID))
	_, err = s.GetChunk(ctx, point.ID)
	assert.ErrorIs(t, err, ErrChunkNotFound)
}

func TestUpsertChunks_DimensionMismatch(t *testing.T) {
	s := setupTestStorage(t)
	defer s.Close()

	point := testPoint(uuid.New().String(), 0, "text", []float32{1, 0})
	err := s.UpsertChunks(context.Background(), []*ChunkPoint{point})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearchDense(t *testing.T) {
	s := setupTestStorage(t)
	defer s.Close()
	ctx := context.Background()

	docID := uuid.New().String()
	defer s.DeleteByDocument(ctx, docID)

	points := []*ChunkPoint{
		testPoint(docID, 0, "alarm acknowledgement", []float32{1, 0, 0, 0}),
		testPoint(docID, 1, "breaker settings", []float32{0, 1, 0, 0}),
	}
	require.NoError(t, s.UpsertChunks(ctx, points))

	results, err := s.SearchDense(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, points[0].ID, results[0].Chunk.ID)
	assert.Greater(t, results[0].Score, results[len(results)-1].Score)
}

func TestSearchLexical(t *testing.T) {
	s := setupTestStorage(t)
	defer s.Close()
	ctx := context.Background()

	docID := uuid.New().String()
	defer s.DeleteByDocument(ctx, docID)

	points := []*ChunkPoint{
		testPoint(docID, 0, "interlock bypass procedure", []float32{1, 0, 0, 0}),
		testPoint(docID, 1, "lubrication schedule", []float32{0, 1, 0, 0}),
	}
	require.NoError(t, s.UpsertChunks(ctx, points))

	results, err := s.SearchLexical(ctx, "interlock", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	found := false
	for _, c := range results {
		if c.ID == points[0].ID {
			found = true
		}
		assert.NotEqual(t, points[1].ID, c.ID)
	}
	assert.True(t, found)
}
