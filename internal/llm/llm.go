// Package llm adapts a Genkit generative model to the pipeline's Generator
// contract.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ErrModel indicates the generation backend failed.
var ErrModel = errors.New("generation model failure")

// Service produces completions from a provider-qualified model
// (e.g. "googleai/gemini-2.5-flash", "ollama/llama3.3").
// Safe for concurrent use.
type Service struct {
	g     *genkit.Genkit
	model string
}

// New creates a Service bound to one model.
func New(g *genkit.Genkit, model string) *Service {
	return &Service{g: g, model: model}
}

// Complete generates text for the user prompt under the system prompt.
// The call blocks until the backend responds or ctx is canceled; no retries.
func (s *Service) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.model),
		ai.WithSystem(system),
		ai.WithPrompt(user),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModel, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrModel)
	}
	return text, nil
}
