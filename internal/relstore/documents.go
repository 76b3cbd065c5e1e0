package relstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DocumentStore manages the processed-document registry. The UNIQUE
// constraint on content_hash is the dedup check: a successful Register is
// the single atomic claim on a document's content.
type DocumentStore struct {
	store *Store
}

// Register inserts a new document row with status=processing. Returns
// ErrDuplicateHash if the content hash is already registered, whatever
// status that earlier row is in.
func (s *DocumentStore) Register(ctx context.Context, doc *Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.Status = StatusProcessing

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, source_path, file_name, content_hash, language, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?)
	`, doc.ID, doc.SourcePath, doc.FileName, doc.ContentHash, doc.Language, doc.Status, doc.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateHash
		}
		return fmt.Errorf("registering document: %w", err)
	}
	return nil
}

// MarkIndexed transitions a document to indexed and stamps indexed_at.
func (s *DocumentStore) MarkIndexed(ctx context.Context, id, language string) error {
	result, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, language = ?, indexed_at = ? WHERE id = ?
	`, StatusIndexed, language, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("marking document indexed: %w", err)
	}
	return checkAffected(result)
}

// MarkFailed transitions a document to failed and records the reason.
func (s *DocumentStore) MarkFailed(ctx context.Context, id, reason string) error {
	result, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, error_message = ? WHERE id = ?
	`, StatusFailed, reason, id)
	if err != nil {
		return fmt.Errorf("marking document failed: %w", err)
	}
	return checkAffected(result)
}

// Delete removes a document row, releasing its content hash. Used when
// ingestion rolls back after a post-registration failure.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// GetByHash retrieves the document claiming a content hash.
func (s *DocumentStore) GetByHash(ctx context.Context, hash string) (*Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, source_path, file_name, content_hash, language, status, error_message, created_at, indexed_at
		FROM documents WHERE content_hash = ?
	`, hash)
	return scanDocument(row)
}

// HashExists reports whether a content hash is already registered.
func (s *DocumentStore) HashExists(ctx context.Context, hash string) (bool, error) {
	var count int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE content_hash = ?", hash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking hash: %w", err)
	}
	return count > 0, nil
}

// Get retrieves a document by ID.
func (s *DocumentStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, source_path, file_name, content_hash, language, status, error_message, created_at, indexed_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// GetBySourcePath returns the most recently created document for a source
// path, or ErrNotFound. Used to find the superseded version when a file's
// content changes.
func (s *DocumentStore) GetBySourcePath(ctx context.Context, sourcePath string) (*Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, source_path, file_name, content_hash, language, status, error_message, created_at, indexed_at
		FROM documents WHERE source_path = ?
		ORDER BY created_at DESC LIMIT 1
	`, sourcePath)
	return scanDocument(row)
}

// List returns all documents, newest first.
func (s *DocumentStore) List(ctx context.Context) ([]Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, source_path, file_name, content_hash, language, status, error_message, created_at, indexed_at
		FROM documents ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var indexedAt sql.NullTime
		if err := rows.Scan(&doc.ID, &doc.SourcePath, &doc.FileName, &doc.ContentHash,
			&doc.Language, &doc.Status, &doc.ErrorMessage, &doc.CreatedAt, &indexedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if indexedAt.Valid {
			doc.IndexedAt = indexedAt.Time
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var doc Document
	var indexedAt sql.NullTime
	if err := row.Scan(&doc.ID, &doc.SourcePath, &doc.FileName, &doc.ContentHash,
		&doc.Language, &doc.Status, &doc.ErrorMessage, &doc.CreatedAt, &indexedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if indexedAt.Valid {
		doc.IndexedAt = indexedAt.Time
	}
	return &doc, nil
}

func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
