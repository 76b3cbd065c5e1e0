package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Scorer scores each text's relevance to a query. Implementations return
// one score per input text, in order.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// CrossEncoderClient calls an external cross-encoder scoring service over
// HTTP. The service takes {query, documents} and returns {scores}.
type CrossEncoderClient struct {
	endpoint string
	client   *http.Client
}

// NewCrossEncoderClient creates a client for the given endpoint.
func NewCrossEncoderClient(endpoint string, timeout time.Duration) *CrossEncoderClient {
	return &CrossEncoderClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Score posts the query/document pairs and returns the service's scores,
// retrying transient failures with backoff.
func (c *CrossEncoderClient) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	var scores []float64
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("rerank service returned %d", resp.StatusCode)
			}
			return backoff.Permanent(fmt.Errorf("rerank service returned %d", resp.StatusCode))
		}

		var out rerankResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode rerank response: %w", err))
		}
		if len(out.Scores) != len(texts) {
			return backoff.Permanent(fmt.Errorf("rerank returned %d scores for %d documents", len(out.Scores), len(texts)))
		}
		scores = out.Scores
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return scores, nil
}

// Reranker reorders a candidate pool by cross-encoder relevance and
// truncates it to the final context size.
type Reranker struct {
	scorer Scorer
	m      int
	logger *slog.Logger
}

// NewReranker creates a reranker. A nil scorer disables reranking: every
// call passes the fused order through as degraded.
func NewReranker(scorer Scorer, m int, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, m: m, logger: logger}
}

// Rerank scores the candidates and returns the top m by rerank score. The
// sort is stable, so ties keep their fused order. If the scorer is absent
// or fails, the fused order passes through unchanged and degraded is true.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []*Candidate) ([]*Candidate, bool) {
	if len(candidates) == 0 {
		return candidates, false
	}

	if r.scorer == nil {
		return truncate(candidates, r.m), true
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Text
	}

	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil {
		r.logger.Warn("Reranking failed, passing fused order through", "error", err)
		return truncate(candidates, r.m), true
	}

	reranked := make([]*Candidate, len(candidates))
	copy(reranked, candidates)
	for i := range reranked {
		reranked[i].RerankScore = scores[i]
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RerankScore > reranked[j].RerankScore
	})

	return truncate(reranked, r.m), false
}

func truncate(candidates []*Candidate, m int) []*Candidate {
	if len(candidates) > m {
		return candidates[:m]
	}
	return candidates
}
