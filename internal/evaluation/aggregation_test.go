package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantdocs/scada-rag/internal/relstore"
)

func TestBuildReport(t *testing.T) {
	results := []relstore.EvaluationResult{
		{ModelID: "gpt-4o", MetricName: MetricFaithfulness, Score: 0.8},
		{ModelID: "gpt-4o", MetricName: MetricFaithfulness, Score: 0.6},
		{ModelID: "gpt-4o", MetricName: MetricAnswerRelevancy, Score: 0.9},
		{ModelID: "gpt-4o-mini", MetricName: MetricFaithfulness, Score: 0.5},
	}

	report := BuildReport("run-1", results, 0.7)
	require.Len(t, report.Aggregates, 3)

	// Sorted by model then metric.
	assert.Equal(t, "gpt-4o", report.Aggregates[0].ModelID)
	assert.Equal(t, MetricAnswerRelevancy, report.Aggregates[0].MetricName)

	faith := report.Aggregates[1]
	assert.Equal(t, MetricFaithfulness, faith.MetricName)
	assert.InDelta(t, 0.7, faith.Mean, 1e-9)
	assert.InDelta(t, 0.5, faith.PassRate, 1e-9) // 0.8 passes, 0.6 does not
	assert.Equal(t, 2, faith.Count)

	mini := report.Aggregates[2]
	assert.Equal(t, "gpt-4o-mini", mini.ModelID)
	assert.Equal(t, 0.0, mini.PassRate)
	assert.Equal(t, 1, mini.Count)
}

func TestBuildReport_Empty(t *testing.T) {
	report := BuildReport("run-1", nil, 0.7)
	assert.Equal(t, "run-1", report.RunID)
	assert.Empty(t, report.Aggregates)
}

func TestDataPoint_Metrics(t *testing.T) {
	plain := DataPoint{Query: "q", Answer: "a"}
	assert.Equal(t, []string{MetricAnswerRelevancy, MetricFaithfulness}, plain.Metrics())

	annotated := DataPoint{Query: "q", Answer: "a", ExpectedOutput: "expected"}
	assert.Equal(t, []string{MetricAnswerRelevancy, MetricFaithfulness, MetricCorrectness}, annotated.Metrics())
}

func TestJudge_BuildPrompt(t *testing.T) {
	j := NewJudge(nil, "gpt-4o")

	plain := &DataPoint{
		Query:    "how to reset the breaker",
		Answer:   "Turn the handle to off, then on.",
		Contexts: []string{"breaker reset procedure"},
	}
	prompt := j.buildPrompt(plain)
	assert.Contains(t, prompt, "how to reset the breaker")
	assert.Contains(t, prompt, "breaker reset procedure")
	assert.NotContains(t, prompt, "correctness")

	annotated := &DataPoint{
		Query:          "how to reset the breaker",
		Answer:         "Turn the handle to off, then on.",
		ExpectedOutput: "Move handle fully to reset position first.",
	}
	prompt = j.buildPrompt(annotated)
	assert.Contains(t, prompt, "correctness")
	assert.Contains(t, prompt, "Move handle fully to reset position first.")
}
