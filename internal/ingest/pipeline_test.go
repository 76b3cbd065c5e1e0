package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantdocs/scada-rag/internal/chunker"
	"github.com/plantdocs/scada-rag/internal/extract"
	"github.com/plantdocs/scada-rag/internal/relstore"
	"github.com/plantdocs/scada-rag/internal/storage"
)

// fakeVectorIndex records chunk points in memory, keyed by document.
type fakeVectorIndex struct {
	mu     sync.Mutex
	points map[string][]*storage.ChunkPoint
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{points: make(map[string][]*storage.ChunkPoint)}
}

func (f *fakeVectorIndex) UpsertChunks(_ context.Context, chunks []*storage.ChunkPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.points[c.DocumentID] = append(f.points[c.DocumentID], c)
	}
	return nil
}

func (f *fakeVectorIndex) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.points, documentID)
	return nil
}

// documentIDs returns the document ids that still own points.
func (f *fakeVectorIndex) documentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.points {
		ids = append(ids, id)
	}
	return ids
}

// fakeEmbedder returns a fixed vector per text.
type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *relstore.Store, *fakeVectorIndex) {
	t.Helper()
	store, err := relstore.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	vectors := newFakeVectorIndex()
	p := NewPipeline(store.Documents(), vectors, extract.NewTextExtractor(), chunker.New(), fakeEmbedder{}, 2, nil)
	return p, store, vectors
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHashFile_Deterministic(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "identical content")
	b := writeFile(t, dir, "b.txt", "identical content")
	c := writeFile(t, dir, "c.txt", "different content")

	hashA, err := HashFile(a)
	require.NoError(t, err)
	hashB, err := HashFile(b)
	require.NoError(t, err)
	hashC, err := HashFile(c)
	require.NoError(t, err)

	assert.Equal(t, hashA, hashB)
	assert.NotEqual(t, hashA, hashC)
	assert.Len(t, hashA, 64) // hex SHA-256
}

func TestCheck_FiltersRegisteredPreservingOrder(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()

	first := writeFile(t, dir, "first.txt", "startup procedure")
	second := writeFile(t, dir, "second.txt", "shutdown procedure")
	third := writeFile(t, dir, "third.txt", "alarm list")

	// Register second's content so it reads as already ingested.
	hash, err := HashFile(second)
	require.NoError(t, err)
	require.NoError(t, store.Documents().Register(ctx, &relstore.Document{
		ID: uuid.New().String(), SourcePath: second, FileName: "second.txt", ContentHash: hash,
	}))

	pending, err := p.Check(ctx, []string{first, second, third})
	require.NoError(t, err)
	assert.Equal(t, []string{first, third}, pending)
}

func TestCheck_FailedDocumentIsPending(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "vfd.txt", "drive fault codes")

	hash, err := HashFile(path)
	require.NoError(t, err)
	doc := &relstore.Document{
		ID: uuid.New().String(), SourcePath: path, FileName: "vfd.txt", ContentHash: hash,
	}
	require.NoError(t, store.Documents().Register(ctx, doc))
	require.NoError(t, store.Documents().MarkFailed(ctx, doc.ID, "embedding service unreachable"))

	pending, err := p.Check(ctx, []string{path})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, pending)
}

func TestCheck_UnreadableIsPending(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	missing := filepath.Join(t.TempDir(), "missing.txt")

	pending, err := p.Check(context.Background(), []string{missing})
	require.NoError(t, err)
	assert.Equal(t, []string{missing}, pending)
}

func TestProcess_Duplicate(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "pump.txt", "seal replacement procedure")

	hash, err := HashFile(path)
	require.NoError(t, err)
	prior := &relstore.Document{
		ID: uuid.New().String(), SourcePath: path, FileName: "pump.txt", ContentHash: hash,
	}
	require.NoError(t, store.Documents().Register(ctx, prior))
	require.NoError(t, store.Documents().MarkIndexed(ctx, prior.ID, "en"))

	_, _, err = p.Process(ctx, path)
	assert.ErrorIs(t, err, ErrDuplicateDocument)

	// Exactly one row remains; the duplicate attempt wrote nothing.
	docs, err := store.Documents().List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestProcess_MissingFile(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	_, _, err := p.Process(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, ErrExtractionFailure)
}

func TestProcess_ConcurrentIdenticalContent(t *testing.T) {
	p, store, vectors := newTestPipeline(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "pump.txt", "seal replacement procedure for the booster pump")

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = p.Process(ctx, path)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			assert.ErrorIs(t, err, ErrDuplicateDocument)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one attempt may claim the hash")

	docs, err := store.Documents().List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, relstore.StatusIndexed, docs[0].Status)
	assert.Len(t, vectors.documentIDs(), 1)
}

func TestProcess_SupersededVersionPurged(t *testing.T) {
	p, store, vectors := newTestPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "pump.txt", "seal replacement procedure revision one")
	oldDoc, _, err := p.Process(ctx, path)
	require.NoError(t, err)

	// Same source file, new content: the old version is superseded.
	require.NoError(t, os.WriteFile(path, []byte("seal replacement procedure revision two"), 0o600))
	newDoc, _, err := p.Process(ctx, path)
	require.NoError(t, err)
	require.NotEqual(t, oldDoc.ID, newDoc.ID)

	// Only the new version's chunks remain; the old row is gone.
	ids := vectors.documentIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, newDoc.ID, ids[0])

	docs, err := store.Documents().List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, newDoc.ID, docs[0].ID)
}
