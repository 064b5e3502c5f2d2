// Package llm constructs any-llm-go providers for the tutoring pipeline.
//
// Each pipeline role (classifier, subject specialists, guardrail rewriter)
// is configured independently as "<provider>/<model>", so a deployment can
// mix vendors, e.g. a small Anthropic model for classification and an
// OpenAI model for the English specialist.
package llm

import (
	"context"
	"fmt"
	"strings"

	anyllm "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// Client pairs an any-llm-go provider with the model it should be asked for.
type Client struct {
	Provider anyllm.Provider
	Model    string
}

// New creates a Client from a "provider/model" spec, e.g.
// "anthropic/claude-haiku-4-5" or "openai/gpt-4o". Without an explicit API
// key option the provider falls back to its usual environment variable
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func New(spec string, opts ...anyllm.Option) (*Client, error) {
	name, model, ok := strings.Cut(strings.TrimSpace(spec), "/")
	if !ok || name == "" || model == "" {
		return nil, fmt.Errorf("llm: spec %q must be provider/model", spec)
	}

	backend, err := newBackend(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: create %q backend: %w", name, err)
	}
	return &Client{Provider: backend, Model: model}, nil
}

func newBackend(name string, opts ...anyllm.Option) (anyllm.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama", name)
	}
}

// Complete runs a single non-streaming completion and returns the assistant
// text. Used by the classifier and the guardrail rewriter, which both need
// one short deterministic answer.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	params := anyllm.CompletionParams{
		Model: c.Model,
		Messages: []anyllm.Message{
			{Role: anyllm.RoleSystem, Content: system},
			{Role: anyllm.RoleUser, Content: user},
		},
	}
	if temperature != 0 {
		t := temperature
		params.Temperature = &t
	}
	if maxTokens > 0 {
		mt := maxTokens
		params.MaxTokens = &mt
	}

	resp, err := c.Provider.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// StreamText runs a streaming completion and adapts the any-llm-go chunk
// stream to a plain text-chunk channel plus a one-shot error channel. The
// text channel is closed at end of generation; the error channel then
// yields nil or the terminal error. Cancelling ctx stops generation.
func (c *Client) StreamText(ctx context.Context, system, user string, maxTokens int) (<-chan string, <-chan error) {
	params := anyllm.CompletionParams{
		Model: c.Model,
		Messages: []anyllm.Message{
			{Role: anyllm.RoleSystem, Content: system},
			{Role: anyllm.RoleUser, Content: user},
		},
	}
	if maxTokens > 0 {
		mt := maxTokens
		params.MaxTokens = &mt
	}

	out := make(chan string, 32)
	errc := make(chan error, 1)

	chunks, errs := c.Provider.CompletionStream(ctx, params)
	go func() {
		defer close(out)
		for chunk := range chunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- delta:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		errc <- <-errs
	}()

	return out, errc
}
