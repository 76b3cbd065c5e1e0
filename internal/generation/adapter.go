// Package generation produces grounded answers from retrieved context via
// chat completions.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// languageNames maps language codes to the name used in the prompt.
var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
}

// Adapter generates answers with an OpenAI chat model.
type Adapter struct {
	client *openai.Client
	model  string
}

// NewAdapter creates a generation adapter for the given model.
func NewAdapter(client *openai.Client, model string) *Adapter {
	return &Adapter{client: client, model: model}
}

// Model returns the configured model identifier, recorded in traces.
func (a *Adapter) Model() string {
	return a.model
}

// Generate answers the query in the target language using only the supplied
// context passages. Rate limits retry with backoff; an exhausted budget
// returns ErrGenerationUnavailable.
func (a *Adapter) Generate(ctx context.Context, query, language string, contexts []string) (string, error) {
	langName, ok := languageNames[language]
	if !ok {
		langName = languageNames["en"]
	}

	system := fmt.Sprintf(`You are a technical assistant for industrial plant operators.
Answer strictly from the provided manual excerpts. If the excerpts do not
contain the answer, say so. Answer in %s.`, langName)

	var sb strings.Builder
	for i, c := range contexts {
		fmt.Fprintf(&sb, "[Excerpt %d]\n%s\n\n", i+1, c)
	}
	user := fmt.Sprintf("Manual excerpts:\n\n%sQuestion: %s", sb.String(), query)

	var answer string
	operation := func() error {
		resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			Model: a.model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("completion returned no choices"))
		}
		answer = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	return answer, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
