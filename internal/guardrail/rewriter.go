package guardrail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/minerva/internal/llm"
)

const rewriterSystemPrompt = "You are a content safety editor for an educational AI tutor. " +
	"Rewrite content to be safe while preserving educational value."

const (
	rewriterTemperature = 0.1
	rewriterMaxTokens   = 500
	rewriterTimeout     = 20 * time.Second
)

var _ Rewriter = (*LLMRewriter)(nil)

// LLMRewriter rewrites flagged text with a chat model at low temperature.
type LLMRewriter struct {
	client *llm.Client
}

func NewLLMRewriter(client *llm.Client) *LLMRewriter {
	return &LLMRewriter{client: client}
}

func (r *LLMRewriter) Rewrite(ctx context.Context, text string, categories []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, rewriterTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"The following educational AI response was flagged for: %s.\n"+
			"Rewrite it to be completely safe and appropriate for students, "+
			"while keeping the educational value:\n\n%s",
		strings.Join(categories, ", "), text,
	)

	out, err := r.client.Complete(ctx, rewriterSystemPrompt, prompt, rewriterTemperature, rewriterMaxTokens)
	if err != nil {
		return "", fmt.Errorf("guardrail: rewrite: %w", err)
	}
	return strings.TrimSpace(out), nil
}
