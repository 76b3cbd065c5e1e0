package relstore

import "time"

// Document status values. A row moves processing -> indexed on success;
// failed rows keep their error message for the status endpoint.
const (
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusFailed     = "failed"
)

// Evaluation run status values, in lifecycle order.
const (
	RunScheduled   = "scheduled"
	RunCollecting  = "collecting"
	RunScoring     = "scoring"
	RunAggregating = "aggregating"
	RunCompleted   = "completed"
	RunFailed      = "failed"
)

// Document is one registered source file. ContentHash is unique across the
// table, which makes the insert the ingestion dedup check.
type Document struct {
	ID           string
	SourcePath   string
	FileName     string
	ContentHash  string
	Language     string
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
	IndexedAt    time.Time
}

// QueryTrace records one query pipeline execution end to end.
type QueryTrace struct {
	QueryID         string
	RawQuery        string
	RewrittenQuery  string
	Language        string
	RewriteDegraded bool
	RerankDegraded  bool
	AnswerText      string
	Model           string
	LatencyMS       int64
	CreatedAt       time.Time
}

// TraceContext is one retrieved candidate within a trace, with the score it
// carried at each stage. Position is the final rank order.
type TraceContext struct {
	QueryID      string
	Position     int
	ChunkID      string
	ChunkText    string
	LexicalScore float64
	VectorScore  float64
	FusedScore   float64
	RerankScore  float64
}

// Feedback is a user rating (1-5) on a traced answer.
type Feedback struct {
	ID          string
	QueryID     string
	Rating      int
	Comment     string
	SubmittedAt time.Time
}

// Annotation is an expert-provided expected answer attached to feedback.
type Annotation struct {
	FeedbackID     string
	ExpectedOutput string
	AnnotatedBy    string
	CreatedAt      time.Time
}

// AnnotatedFeedback joins feedback with its annotation, if any, and the
// trace it rates. This is the unit the evaluation orchestrator collects.
type AnnotatedFeedback struct {
	Feedback       Feedback
	Trace          QueryTrace
	Contexts       []TraceContext
	ExpectedOutput string // empty when no annotation exists
}

// EvaluationRun is one orchestrator execution over a feedback window.
type EvaluationRun struct {
	ID           string
	SuiteName    string
	WindowStart  time.Time
	WindowEnd    time.Time
	Models       []string
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  time.Time
}

// EvaluationResult is one judge score for one data point.
type EvaluationResult struct {
	RunID      string
	QueryID    string
	FeedbackID string
	ModelID    string
	MetricName string
	Score      float64
}
