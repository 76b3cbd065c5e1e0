package evaluation

import "errors"

var (
	// ErrJudgeScoringFailure means a judge model could not score a data
	// point after retries. The orchestrator records it as a missing score;
	// it never fails the run on its own.
	ErrJudgeScoringFailure = errors.New("judge scoring failed")

	// ErrAggregationInconsistency means the scored result set plus the
	// recorded misses do not match the expected
	// (data point x model x metric) shape.
	ErrAggregationInconsistency = errors.New("aggregation inconsistency")
)
