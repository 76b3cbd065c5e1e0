// Package ingest runs the document ingestion pipeline: content-hash dedup,
// text extraction, chunking, embedding, and vector indexing, with rollback
// so a failed document never leaves partial state behind.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/plantdocs/scada-rag/internal/chunker"
	"github.com/plantdocs/scada-rag/internal/extract"
	"github.com/plantdocs/scada-rag/internal/relstore"
	"github.com/plantdocs/scada-rag/internal/rewrite"
	"github.com/plantdocs/scada-rag/internal/storage"
)

// VectorIndex is the slice of the vector store the pipeline writes to.
type VectorIndex interface {
	UpsertChunks(ctx context.Context, chunks []*storage.ChunkPoint) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Embedder produces one vector per input text.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestResult contains statistics about a batch ingestion.
type IngestResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	SkippedDocs    int
	FailedDocs     []FailedDoc
	Duration       time.Duration
}

// FailedDoc records one document that failed to ingest.
type FailedDoc struct {
	Path   string
	Reason string
}

// Pipeline orchestrates ingestion from source file to indexed chunks.
type Pipeline struct {
	docs      *relstore.DocumentStore
	vectors   VectorIndex
	extractor extract.Extractor
	chunker   *chunker.Chunker
	embedder  Embedder
	workers   int
	logger    *slog.Logger
}

// NewPipeline creates an ingestion pipeline with the given components.
func NewPipeline(
	docs *relstore.DocumentStore,
	vectors VectorIndex,
	extractor extract.Extractor,
	chunker *chunker.Chunker,
	embedder Embedder,
	workers int,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		docs:      docs,
		vectors:   vectors,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		workers:   workers,
		logger:    logger,
	}
}

// HashFile returns the hex SHA-256 of a file's content.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Check returns the subset of paths whose content still needs processing,
// preserving input order. Failed documents count as pending so the next
// scheduled run retries them; unreadable files are reported as pending so
// Process surfaces the real error.
func (p *Pipeline) Check(ctx context.Context, paths []string) ([]string, error) {
	var pending []string
	for _, path := range paths {
		hash, err := HashFile(path)
		if err != nil {
			pending = append(pending, path)
			continue
		}
		doc, err := p.docs.GetByHash(ctx, hash)
		switch {
		case errors.Is(err, relstore.ErrNotFound):
			pending = append(pending, path)
		case err != nil:
			return nil, err
		case doc.Status == relstore.StatusFailed:
			pending = append(pending, path)
		}
	}
	return pending, nil
}

// Process ingests a single file end to end and returns the document record.
// A duplicate hash returns ErrDuplicateDocument without touching either
// store; any failure after registration rolls the document back so the hash
// is released and no chunk points remain.
func (p *Pipeline) Process(ctx context.Context, path string) (*relstore.Document, int, error) {
	hash, err := HashFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrExtractionFailure, err)
	}

	// An earlier document for the same path is superseded once the new
	// content is indexed. Capture it before registering so the purge can
	// run at the end.
	superseded, err := p.docs.GetBySourcePath(ctx, path)
	if err != nil && !errors.Is(err, relstore.ErrNotFound) {
		return nil, 0, err
	}

	doc := &relstore.Document{
		ID:          uuid.New().String(),
		SourcePath:  path,
		FileName:    filepath.Base(path),
		ContentHash: hash,
	}

	if err := p.register(ctx, doc); err != nil {
		return nil, 0, err
	}

	chunks, language, err := p.index(ctx, doc)
	if err != nil {
		p.rollback(ctx, doc.ID, err.Error())
		return nil, 0, err
	}

	if err := p.docs.MarkIndexed(ctx, doc.ID, language); err != nil {
		p.rollback(ctx, doc.ID, err.Error())
		return nil, 0, err
	}
	doc.Status = relstore.StatusIndexed
	doc.Language = language

	if superseded != nil && superseded.ID != doc.ID {
		p.purgeSuperseded(ctx, superseded)
	}

	p.logger.Info("Ingested document", "path", path, "chunks", chunks, "language", language)
	return doc, chunks, nil
}

// register claims the content hash. A hash held by a failed document is
// reclaimable: the dead row is removed and the insert retried once.
func (p *Pipeline) register(ctx context.Context, doc *relstore.Document) error {
	err := p.docs.Register(ctx, doc)
	if !errors.Is(err, relstore.ErrDuplicateHash) {
		return err
	}

	existing, getErr := p.docs.GetByHash(ctx, doc.ContentHash)
	if getErr != nil {
		if errors.Is(getErr, relstore.ErrNotFound) {
			// Row vanished between insert and lookup; treat as duplicate.
			return ErrDuplicateDocument
		}
		return getErr
	}
	if existing.Status != relstore.StatusFailed {
		return ErrDuplicateDocument
	}

	p.logger.Info("Reclaiming failed document", "path", doc.SourcePath, "previous_id", existing.ID)
	if err := p.docs.Delete(ctx, existing.ID); err != nil {
		return err
	}
	if err := p.docs.Register(ctx, doc); err != nil {
		if errors.Is(err, relstore.ErrDuplicateHash) {
			return ErrDuplicateDocument
		}
		return err
	}
	return nil
}

// index extracts, chunks, embeds, and stores one registered document.
// Returns the chunk count and detected language.
func (p *Pipeline) index(ctx context.Context, doc *relstore.Document) (int, string, error) {
	text, err := p.extractor.Extract(doc.SourcePath)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrExtractionFailure, err)
	}
	text = extract.Clean(text)
	if text == "" {
		return 0, "", fmt.Errorf("%w: %v", ErrExtractionFailure, extract.ErrEmptyDocument)
	}

	language := rewrite.DetectLanguage(text)
	chunks := p.chunker.Split(text)
	p.logger.Debug("Chunked document", "path", doc.SourcePath, "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := p.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}

	now := time.Now().UTC()
	points := make([]*storage.ChunkPoint, len(chunks))
	for i, c := range chunks {
		points[i] = &storage.ChunkPoint{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Ordinal:    c.Ordinal,
			Text:       c.Text,
			SourcePath: doc.SourcePath,
			Language:   language,
			IngestedAt: now,
			Embedding:  embeddings[i],
		}
	}

	if err := p.vectors.UpsertChunks(ctx, points); err != nil {
		return 0, "", fmt.Errorf("store chunks: %w", err)
	}

	return len(chunks), language, nil
}

// rollback purges any chunk points a failing document wrote and marks its
// row failed with the reason. The failed row keeps the error visible for
// the status surface without blocking a retry: register reclaims failed
// hashes and Check reports them as pending. Best effort on a fresh context:
// the caller's context may already be cancelled, and a half-indexed
// document must not stay visible to the query path.
func (p *Pipeline) rollback(ctx context.Context, docID, reason string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := p.vectors.DeleteByDocument(cleanupCtx, docID); err != nil {
		p.logger.Error("Rollback: failed to purge chunks", "document_id", docID, "error", err)
	}
	if err := p.docs.MarkFailed(cleanupCtx, docID, reason); err != nil {
		p.logger.Error("Rollback: failed to mark document failed", "document_id", docID, "error", err)
	}
}

// purgeSuperseded removes the chunks and row of a document replaced by a
// newer version of the same source file. Runs only after the replacement
// is fully indexed, so a purge failure leaves extra chunks, never missing
// ones.
func (p *Pipeline) purgeSuperseded(ctx context.Context, old *relstore.Document) {
	p.logger.Info("Purging superseded document", "path", old.SourcePath, "document_id", old.ID)
	if err := p.vectors.DeleteByDocument(ctx, old.ID); err != nil {
		p.logger.Error("Failed to purge superseded chunks", "document_id", old.ID, "error", err)
		return
	}
	if err := p.docs.Delete(ctx, old.ID); err != nil {
		p.logger.Error("Failed to delete superseded row", "document_id", old.ID, "error", err)
	}
}

// ProcessAll ingests paths concurrently with a bounded worker pool.
// Duplicates count as skipped; other failures are collected per document
// and do not stop the batch.
func (p *Pipeline) ProcessAll(ctx context.Context, paths []string) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{TotalDocs: len(paths)}
	p.logger.Info("Starting ingestion", "documents", len(paths), "workers", p.workers)

	type outcome struct {
		path   string
		chunks int
		err    error
	}
	outcomes := make([]outcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, path := range paths {
		g.Go(func() error {
			_, chunks, err := p.Process(gctx, path)
			outcomes[i] = outcome{path: path, chunks: chunks, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		switch {
		case o.err == nil:
			result.SuccessfulDocs++
			result.TotalChunks += o.chunks
		case errors.Is(o.err, ErrDuplicateDocument):
			result.SkippedDocs++
		default:
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Path: o.path, Reason: o.err.Error()})
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info("Ingestion complete",
		"successful", result.SuccessfulDocs,
		"skipped", result.SkippedDocs,
		"failed", len(result.FailedDocs),
		"duration", result.Duration,
	)
	return result, nil
}
