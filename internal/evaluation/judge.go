package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// Metric names. Relevancy and faithfulness apply to every data point;
// correctness only when an expert annotation supplies an expected answer.
const (
	MetricAnswerRelevancy = "answer_relevancy"
	MetricFaithfulness    = "faithfulness"
	MetricCorrectness     = "correctness"
)

// DataPoint is one answer under evaluation: the traced query/answer pair,
// the contexts it was generated from, and an optional expected answer.
type DataPoint struct {
	QueryID        string
	FeedbackID     string
	Query          string
	Answer         string
	Contexts       []string
	ExpectedOutput string
}

// Metrics returns the metric names applicable to this data point.
func (dp *DataPoint) Metrics() []string {
	metrics := []string{MetricAnswerRelevancy, MetricFaithfulness}
	if dp.ExpectedOutput != "" {
		metrics = append(metrics, MetricCorrectness)
	}
	return metrics
}

// Judge scores data points with one chat model in JSON mode.
type Judge struct {
	client *openai.Client
	model  string
}

// NewJudge creates a judge backed by the given model.
func NewJudge(client *openai.Client, model string) *Judge {
	return &Judge{client: client, model: model}
}

// Model returns the judge's model identifier.
func (j *Judge) Model() string {
	return j.model
}

type judgeScores struct {
	AnswerRelevancy float64 `json:"answer_relevancy"`
	Faithfulness    float64 `json:"faithfulness"`
	Correctness     float64 `json:"correctness"`
}

// Score evaluates one data point and returns a score per applicable
// metric, each in [0,1]. Rate limits retry with backoff; a malformed or
// out-of-range response is permanent.
func (j *Judge) Score(ctx context.Context, dp *DataPoint) (map[string]float64, error) {
	prompt := j.buildPrompt(dp)

	var scores judgeScores
	operation := func() error {
		resp, err := j.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model: j.model,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &openai.ResponseFormatJSONObjectParam{
					Type: "json_object",
				},
			},
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("judge returned no choices"))
		}
		if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &scores); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to parse judge response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", ErrJudgeScoringFailure, j.model, err)
	}

	out := map[string]float64{
		MetricAnswerRelevancy: scores.AnswerRelevancy,
		MetricFaithfulness:    scores.Faithfulness,
	}
	if dp.ExpectedOutput != "" {
		out[MetricCorrectness] = scores.Correctness
	}

	for name, score := range out {
		if score < 0 || score > 1 {
			return nil, fmt.Errorf("%w: model %s returned %s=%v outside [0,1]",
				ErrJudgeScoringFailure, j.model, name, score)
		}
	}
	return out, nil
}

func (j *Judge) buildPrompt(dp *DataPoint) string {
	var sb strings.Builder
	sb.WriteString(`Evaluate this question-answering result. Score each metric from 0.0 to 1.0:
- answer_relevancy: does the answer address the question?
- faithfulness: is every claim in the answer supported by the context passages?
`)
	if dp.ExpectedOutput != "" {
		sb.WriteString("- correctness: does the answer agree with the expected answer?\n")
	}

	fmt.Fprintf(&sb, "\nQuestion:\n%s\n\nAnswer:\n%s\n\nContext passages:\n", dp.Query, dp.Answer)
	for i, c := range dp.Contexts {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, c)
	}
	if dp.ExpectedOutput != "" {
		fmt.Fprintf(&sb, "\nExpected answer:\n%s\n", dp.ExpectedOutput)
	}

	sb.WriteString("\nRespond in JSON format: {\"answer_relevancy\": 0.0, \"faithfulness\": 0.0")
	if dp.ExpectedOutput != "" {
		sb.WriteString(", \"correctness\": 0.0")
	}
	sb.WriteString("}")
	return sb.String()
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
