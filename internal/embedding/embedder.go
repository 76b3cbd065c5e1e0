// Package embedding generates chunk and query vectors through the OpenAI
// embeddings API, batching requests and backing off on rate limits.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate
// limits. OpenAI accepts up to 2048 texts per batch; smaller batches reduce
// TPM pressure.
const DefaultBatchSize = 500

// Embedder generates fixed-dimension embeddings for text.
type Embedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
}

// NewEmbedder creates an Embedder for the given model and dimension.
// If batchSize is 0, DefaultBatchSize is used.
func NewEmbedder(client *Client, model string, dimension, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{
		client:    client,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}
}

// Dimension returns the vector dimension this embedder produces.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// GenerateEmbeddings embeds the given texts in batches, retrying each batch
// with exponential backoff on rate limit errors.
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	var allEmbeddings [][]float32

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry embeds a single batch. Rate limit errors (HTTP 429)
// retry with backoff; other errors are permanent and fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: e.model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			if len(data.Embedding) != e.dimension {
				return backoff.Permanent(fmt.Errorf(
					"embedding %d has %d dimensions, expected %d", i, len(data.Embedding), e.dimension))
			}
			embeddings[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

// isRateLimitError checks for HTTP 429 from the OpenAI API.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts the API's float64 vectors to float32 for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
