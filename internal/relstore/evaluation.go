package relstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EvaluationStore persists evaluation runs and their per-judge results.
type EvaluationStore struct {
	store *Store
}

// CreateRun records a new run. Models are persisted as JSON so a report is
// self-describing about which judge roster produced it.
func (s *EvaluationStore) CreateRun(ctx context.Context, run *EvaluationRun) error {
	modelsJSON, err := json.Marshal(run.Models)
	if err != nil {
		return fmt.Errorf("marshalling models: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO evaluation_runs
			(id, suite_name, window_start, window_end, models_json, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?)
	`, run.ID, run.SuiteName, run.WindowStart, run.WindowEnd, string(modelsJSON), run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating evaluation run: %w", err)
	}
	return nil
}

// UpdateStatus moves a run to a new lifecycle state.
func (s *EvaluationStore) UpdateStatus(ctx context.Context, runID, status string) error {
	result, err := s.store.db.ExecContext(ctx,
		"UPDATE evaluation_runs SET status = ? WHERE id = ?", status, runID)
	if err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}
	return checkAffected(result)
}

// CompleteRun marks a run completed and stamps completed_at.
func (s *EvaluationStore) CompleteRun(ctx context.Context, runID string) error {
	result, err := s.store.db.ExecContext(ctx, `
		UPDATE evaluation_runs SET status = ?, completed_at = ? WHERE id = ?
	`, RunCompleted, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("completing run: %w", err)
	}
	return checkAffected(result)
}

// FailRun marks a run failed with a reason.
func (s *EvaluationStore) FailRun(ctx context.Context, runID, reason string) error {
	result, err := s.store.db.ExecContext(ctx, `
		UPDATE evaluation_runs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?
	`, RunFailed, reason, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failing run: %w", err)
	}
	return checkAffected(result)
}

// GetRun retrieves a run by ID.
func (s *EvaluationStore) GetRun(ctx context.Context, runID string) (*EvaluationRun, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, suite_name, window_start, window_end, models_json, status, error_message, created_at, completed_at
		FROM evaluation_runs WHERE id = ?
	`, runID)

	var run EvaluationRun
	var modelsJSON string
	var completedAt sql.NullTime
	if err := row.Scan(&run.ID, &run.SuiteName, &run.WindowStart, &run.WindowEnd,
		&modelsJSON, &run.Status, &run.ErrorMessage, &run.CreatedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	if err := json.Unmarshal([]byte(modelsJSON), &run.Models); err != nil {
		return nil, fmt.Errorf("unmarshalling models: %w", err)
	}
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	return &run, nil
}

// SaveResults writes a run's results in one transaction.
func (s *EvaluationStore) SaveResults(ctx context.Context, results []EvaluationResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO evaluation_results (run_id, query_id, feedback_id, model_id, metric_name, score)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, r.RunID, r.QueryID, r.FeedbackID,
			r.ModelID, r.MetricName, r.Score); err != nil {
			return fmt.Errorf("saving result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing results: %w", err)
	}
	return nil
}

// ResultsByRun returns all results for one run.
func (s *EvaluationStore) ResultsByRun(ctx context.Context, runID string) ([]EvaluationResult, error) {
	return s.queryResults(ctx, `
		SELECT run_id, query_id, feedback_id, model_id, metric_name, score
		FROM evaluation_results WHERE run_id = ?
		ORDER BY feedback_id, model_id, metric_name
	`, runID)
}

// ResultsByWindow returns results for runs created in [from, to).
func (s *EvaluationStore) ResultsByWindow(ctx context.Context, from, to time.Time) ([]EvaluationResult, error) {
	return s.queryResults(ctx, `
		SELECT r.run_id, r.query_id, r.feedback_id, r.model_id, r.metric_name, r.score
		FROM evaluation_results r
		JOIN evaluation_runs er ON er.id = r.run_id
		WHERE er.created_at >= ? AND er.created_at < ?
		ORDER BY r.run_id, r.feedback_id, r.model_id, r.metric_name
	`, from, to)
}

func (s *EvaluationStore) queryResults(ctx context.Context, query string, args ...any) ([]EvaluationResult, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var results []EvaluationResult
	for rows.Next() {
		var r EvaluationResult
		if err := rows.Scan(&r.RunID, &r.QueryID, &r.FeedbackID, &r.ModelID, &r.MetricName, &r.Score); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}
