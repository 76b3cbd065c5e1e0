// Package evaluation runs scheduled quality evaluations: low-rated feedback
// is collected over a time window, scored by a roster of judge models, and
// aggregated into a persisted report.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/plantdocs/scada-rag/internal/relstore"
)

// DefaultMaxRating is the highest rating still considered negative enough
// to evaluate.
const DefaultMaxRating = 3

// DefaultJudgeConcurrency caps in-flight judge calls across the fan-out.
const DefaultJudgeConcurrency = 8

// RunRequest describes one evaluation trigger. Explicit DataPoints bypass
// window collection; otherwise feedback from the trailing WindowDays is
// used.
type RunRequest struct {
	SuiteName  string
	Models     []string
	WindowDays int
	DataPoints []DataPoint
}

// Orchestrator drives an evaluation run through its lifecycle:
// scheduled -> collecting -> scoring -> aggregating -> completed | failed.
type Orchestrator struct {
	evals         *relstore.EvaluationStore
	feedback      *relstore.FeedbackStore
	client        *openai.Client
	passThreshold float64
	maxRating     int
	concurrency   int64
	logger        *slog.Logger
}

// NewOrchestrator creates an orchestrator using the given OpenAI client for
// judge calls.
func NewOrchestrator(
	evals *relstore.EvaluationStore,
	feedback *relstore.FeedbackStore,
	client *openai.Client,
	passThreshold float64,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		evals:         evals,
		feedback:      feedback,
		client:        client,
		passThreshold: passThreshold,
		maxRating:     DefaultMaxRating,
		concurrency:   DefaultJudgeConcurrency,
		logger:        logger,
	}
}

// Run executes one evaluation end to end and returns its report. Every
// terminal state is persisted: a failure at any stage marks the run failed
// with the reason before the error is returned.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Report, error) {
	if req.WindowDays <= 0 {
		req.WindowDays = 7
	}
	now := time.Now().UTC()

	run := &relstore.EvaluationRun{
		ID:          uuid.New().String(),
		SuiteName:   req.SuiteName,
		WindowStart: now.AddDate(0, 0, -req.WindowDays),
		WindowEnd:   now,
		Models:      req.Models,
		Status:      relstore.RunScheduled,
	}
	if err := o.evals.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	o.logger.Info("Evaluation run scheduled", "run_id", run.ID, "suite", req.SuiteName, "models", req.Models)

	report, err := o.execute(ctx, run, req)
	if err != nil {
		if failErr := o.evals.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			o.logger.Error("Failed to record run failure", "run_id", run.ID, "error", failErr)
		}
		return nil, err
	}
	return report, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *relstore.EvaluationRun, req RunRequest) (*Report, error) {
	// Collecting
	if err := o.evals.UpdateStatus(ctx, run.ID, relstore.RunCollecting); err != nil {
		return nil, err
	}
	points := req.DataPoints
	if len(points) == 0 {
		var err error
		points, err = o.collect(ctx, run.WindowStart, run.WindowEnd)
		if err != nil {
			return nil, err
		}
	}
	assignSurrogateIDs(points)
	o.logger.Info("Collected data points", "run_id", run.ID, "count", len(points))

	// An empty window is a successful run with nothing to report.
	if len(points) == 0 {
		if err := o.evals.CompleteRun(ctx, run.ID); err != nil {
			return nil, err
		}
		return &Report{RunID: run.ID}, nil
	}

	// Scoring
	if err := o.evals.UpdateStatus(ctx, run.ID, relstore.RunScoring); err != nil {
		return nil, err
	}
	results, missing, err := o.score(ctx, run.ID, points, req.Models)
	if err != nil {
		return nil, err
	}

	// Aggregating
	if err := o.evals.UpdateStatus(ctx, run.ID, relstore.RunAggregating); err != nil {
		return nil, err
	}
	expected := 0
	for i := range points {
		expected += len(points[i].Metrics()) * len(req.Models)
	}
	if len(results)+missing != expected {
		return nil, fmt.Errorf("%w: have %d results and %d recorded misses, expected %d",
			ErrAggregationInconsistency, len(results), missing, expected)
	}

	if err := o.evals.SaveResults(ctx, results); err != nil {
		return nil, err
	}
	report := BuildReport(run.ID, results, o.passThreshold)

	if err := o.evals.CompleteRun(ctx, run.ID); err != nil {
		return nil, err
	}
	o.logger.Info("Evaluation run completed", "run_id", run.ID, "results", len(results))
	return report, nil
}

// assignSurrogateIDs gives data points without a feedback id a synthetic
// one. Result rows key on (run, feedback, model, metric), so two ad-hoc
// points sharing an empty id would collide when the same judge scores the
// same metric on both.
func assignSurrogateIDs(points []DataPoint) {
	for i := range points {
		if points[i].FeedbackID == "" {
			points[i].FeedbackID = "adhoc-" + uuid.New().String()
		}
	}
}

// collect pulls low-rated feedback in the window and converts each record
// into a data point, with the traced contexts and any expected answer.
func (o *Orchestrator) collect(ctx context.Context, from, to time.Time) ([]DataPoint, error) {
	annotated, err := o.feedback.LowRated(ctx, o.maxRating, from, to)
	if err != nil {
		return nil, err
	}

	points := make([]DataPoint, len(annotated))
	for i, af := range annotated {
		contexts := make([]string, len(af.Contexts))
		for j, c := range af.Contexts {
			contexts[j] = c.ChunkText
		}
		points[i] = DataPoint{
			QueryID:        af.Feedback.QueryID,
			FeedbackID:     af.Feedback.ID,
			Query:          af.Trace.RawQuery,
			Answer:         af.Trace.AnswerText,
			Contexts:       contexts,
			ExpectedOutput: af.ExpectedOutput,
		}
	}
	return points, nil
}

// score fans out (data point x judge model) with a bounded ceiling on
// in-flight judge calls. A judge failing on one data point is absorbed as a
// missing score; only cancellation aborts the fan-out. The returned missing
// count is in metric units so the aggregation check can balance the books.
func (o *Orchestrator) score(ctx context.Context, runID string, points []DataPoint, models []string) ([]relstore.EvaluationResult, int, error) {
	sem := semaphore.NewWeighted(o.concurrency)
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var results []relstore.EvaluationResult
	var missing int

	for _, model := range models {
		judge := NewJudge(o.client, model)
		for i := range points {
			dp := &points[i]
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				scores, err := judge.Score(gctx, dp)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					o.logger.Warn("Judge score missing",
						"run_id", runID,
						"model", judge.Model(),
						"feedback_id", dp.FeedbackID,
						"error", err,
					)
					mu.Lock()
					missing += len(dp.Metrics())
					mu.Unlock()
					return nil
				}

				mu.Lock()
				for metric, score := range scores {
					results = append(results, relstore.EvaluationResult{
						RunID:      runID,
						QueryID:    dp.QueryID,
						FeedbackID: dp.FeedbackID,
						ModelID:    judge.Model(),
						MetricName: metric,
						Score:      score,
					})
				}
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return results, missing, nil
}
