package relstore

import (
	"context"
	"database/sql"
	"fmt"
)

// TraceStore persists query traces and their ordered context candidates.
// Traces are append-only: written once when the pipeline finishes, never
// updated.
type TraceStore struct {
	store *Store
}

// Save writes a trace and its contexts in one transaction.
func (s *TraceStore) Save(ctx context.Context, trace *QueryTrace, contexts []TraceContext) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO query_traces
			(query_id, raw_query, rewritten_query, language, rewrite_degraded, rerank_degraded,
			 answer_text, model, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, trace.QueryID, trace.RawQuery, trace.RewrittenQuery, trace.Language,
		trace.RewriteDegraded, trace.RerankDegraded,
		trace.AnswerText, trace.Model, trace.LatencyMS, trace.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving trace: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_contexts
			(query_id, position, chunk_id, chunk_text, lexical_score, vector_score, fused_score, rerank_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing context insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range contexts {
		if _, err := stmt.ExecContext(ctx, trace.QueryID, c.Position, c.ChunkID, c.ChunkText,
			c.LexicalScore, c.VectorScore, c.FusedScore, c.RerankScore); err != nil {
			return fmt.Errorf("saving trace context %d: %w", c.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing trace: %w", err)
	}
	return nil
}

// Get retrieves a trace by query ID.
func (s *TraceStore) Get(ctx context.Context, queryID string) (*QueryTrace, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT query_id, raw_query, rewritten_query, language, rewrite_degraded, rerank_degraded,
		       answer_text, model, latency_ms, created_at
		FROM query_traces WHERE query_id = ?
	`, queryID)

	var trace QueryTrace
	if err := row.Scan(&trace.QueryID, &trace.RawQuery, &trace.RewrittenQuery, &trace.Language,
		&trace.RewriteDegraded, &trace.RerankDegraded,
		&trace.AnswerText, &trace.Model, &trace.LatencyMS, &trace.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning trace: %w", err)
	}
	return &trace, nil
}

// Contexts returns a trace's candidates in rank order.
func (s *TraceStore) Contexts(ctx context.Context, queryID string) ([]TraceContext, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT query_id, position, chunk_id, chunk_text, lexical_score, vector_score, fused_score, rerank_score
		FROM trace_contexts WHERE query_id = ?
		ORDER BY position
	`, queryID)
	if err != nil {
		return nil, fmt.Errorf("querying trace contexts: %w", err)
	}
	defer rows.Close()

	var contexts []TraceContext
	for rows.Next() {
		var c TraceContext
		if err := rows.Scan(&c.QueryID, &c.Position, &c.ChunkID, &c.ChunkText,
			&c.LexicalScore, &c.VectorScore, &c.FusedScore, &c.RerankScore); err != nil {
			return nil, fmt.Errorf("scanning trace context: %w", err)
		}
		contexts = append(contexts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trace contexts: %w", err)
	}
	return contexts, nil
}
