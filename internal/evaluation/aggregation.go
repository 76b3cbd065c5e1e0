package evaluation

import (
	"sort"

	"github.com/plantdocs/scada-rag/internal/relstore"
)

// Aggregate is the rollup of one (model, metric) pair across a run.
type Aggregate struct {
	ModelID    string
	MetricName string
	Mean       float64
	PassRate   float64
	Count      int
}

// Report summarizes a completed run.
type Report struct {
	RunID      string
	Aggregates []Aggregate
}

// BuildReport computes per-(model, metric) mean and pass-rate over a run's
// results. passThreshold is the score at or above which a result counts as
// passing. Output is sorted by model then metric for stable reporting.
func BuildReport(runID string, results []relstore.EvaluationResult, passThreshold float64) *Report {
	type key struct{ model, metric string }
	type acc struct {
		sum    float64
		passed int
		count  int
	}

	accs := make(map[key]*acc)
	for _, r := range results {
		k := key{r.ModelID, r.MetricName}
		a, ok := accs[k]
		if !ok {
			a = &acc{}
			accs[k] = a
		}
		a.sum += r.Score
		a.count++
		if r.Score >= passThreshold {
			a.passed++
		}
	}

	report := &Report{RunID: runID}
	for k, a := range accs {
		report.Aggregates = append(report.Aggregates, Aggregate{
			ModelID:    k.model,
			MetricName: k.metric,
			Mean:       a.sum / float64(a.count),
			PassRate:   float64(a.passed) / float64(a.count),
			Count:      a.count,
		})
	}

	sort.Slice(report.Aggregates, func(i, j int) bool {
		a, b := report.Aggregates[i], report.Aggregates[j]
		if a.ModelID != b.ModelID {
			return a.ModelID < b.ModelID
		}
		return a.MetricName < b.MetricName
	})
	return report
}
