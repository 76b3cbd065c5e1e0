package relstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// FeedbackStore persists user ratings and expert annotations.
type FeedbackStore struct {
	store *Store
}

// Save stores one feedback record. The query ID must reference an existing
// trace; the foreign key rejects orphans.
func (s *FeedbackStore) Save(ctx context.Context, fb *Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return ErrInvalidRating
	}
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = time.Now().UTC()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO feedback (id, query_id, rating, comment, submitted_at)
		VALUES (?, ?, ?, ?, ?)
	`, fb.ID, fb.QueryID, fb.Rating, fb.Comment, fb.SubmittedAt)
	if err != nil {
		return fmt.Errorf("saving feedback: %w", err)
	}
	return nil
}

// Get retrieves feedback by ID.
func (s *FeedbackStore) Get(ctx context.Context, id string) (*Feedback, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, query_id, rating, comment, submitted_at FROM feedback WHERE id = ?
	`, id)

	var fb Feedback
	if err := row.Scan(&fb.ID, &fb.QueryID, &fb.Rating, &fb.Comment, &fb.SubmittedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning feedback: %w", err)
	}
	return &fb, nil
}

// SaveAnnotations upserts expert annotations in one transaction. Re-loading
// the same annotation overwrites the previous expected output.
func (s *FeedbackStore) SaveAnnotations(ctx context.Context, annotations []Annotation) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO expert_annotations (feedback_id, expected_output, annotated_by, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(feedback_id) DO UPDATE SET
			expected_output = excluded.expected_output,
			annotated_by = excluded.annotated_by
	`)
	if err != nil {
		return fmt.Errorf("preparing annotation insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range annotations {
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, a.FeedbackID, a.ExpectedOutput, a.AnnotatedBy, createdAt); err != nil {
			return fmt.Errorf("saving annotation for feedback %s: %w", a.FeedbackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing annotations: %w", err)
	}
	return nil
}

// LowRated returns feedback with rating at or below maxRating submitted in
// [from, to), joined with any annotation and the trace it rates. Contexts
// are loaded per trace so judges can score faithfulness against them.
func (s *FeedbackStore) LowRated(ctx context.Context, maxRating int, from, to time.Time) ([]AnnotatedFeedback, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT f.id, f.query_id, f.rating, f.comment, f.submitted_at,
		       COALESCE(a.expected_output, ''),
		       t.raw_query, t.rewritten_query, t.language, t.answer_text, t.model, t.created_at
		FROM feedback f
		JOIN query_traces t ON t.query_id = f.query_id
		LEFT JOIN expert_annotations a ON a.feedback_id = f.id
		WHERE f.rating <= ? AND f.submitted_at >= ? AND f.submitted_at < ?
		ORDER BY f.submitted_at
	`, maxRating, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying low-rated feedback: %w", err)
	}
	defer rows.Close()

	var results []AnnotatedFeedback
	for rows.Next() {
		var af AnnotatedFeedback
		if err := rows.Scan(&af.Feedback.ID, &af.Feedback.QueryID, &af.Feedback.Rating,
			&af.Feedback.Comment, &af.Feedback.SubmittedAt,
			&af.ExpectedOutput,
			&af.Trace.RawQuery, &af.Trace.RewrittenQuery, &af.Trace.Language,
			&af.Trace.AnswerText, &af.Trace.Model, &af.Trace.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning low-rated feedback: %w", err)
		}
		af.Trace.QueryID = af.Feedback.QueryID
		results = append(results, af)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating low-rated feedback: %w", err)
	}

	traces := s.store.Traces()
	for i := range results {
		contexts, err := traces.Contexts(ctx, results[i].Feedback.QueryID)
		if err != nil {
			return nil, err
		}
		results[i].Contexts = contexts
	}

	return results, nil
}
