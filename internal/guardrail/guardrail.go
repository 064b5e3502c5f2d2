// Package guardrail moderates specialist output before it reaches speech
// synthesis. Text flows through a sentence-aligned streaming filter; each
// sentence is checked and, when flagged, rewritten to a safe version.
package guardrail

import (
	"context"
	"log/slog"
)

// Result is the outcome of checking one piece of text.
type Result struct {
	Flagged    bool     `json:"flagged"`
	Categories []string `json:"categories,omitempty"`
	Original   string   `json:"original"`
	Rewritten  string   `json:"rewritten,omitempty"`
	Confidence float64  `json:"confidence"`
}

// SafeText returns the rewritten text when the input was flagged and a
// rewrite exists, otherwise the original.
func (r Result) SafeText() string {
	if r.Flagged && r.Rewritten != "" {
		return r.Rewritten
	}
	return r.Original
}

// Moderator classifies text as flagged/clean.
type Moderator interface {
	Moderate(ctx context.Context, text string) (Result, error)
}

// Rewriter produces a safe version of flagged text.
type Rewriter interface {
	Rewrite(ctx context.Context, text string, categories []string) (string, error)
}

// Checker is the port the sentence filter and the orchestrator consume.
type Checker interface {
	CheckAndRewrite(ctx context.Context, text string) (Result, error)
}

// rewriteFallback is spoken when flagged content cannot be rewritten.
const rewriteFallback = "I apologize, but I cannot answer that question in the way you've asked. Please try rephrasing."

// Service combines a Moderator and a Rewriter with the availability policy:
// moderation outages fail open (text passes, logged for monitoring), rewrite
// outages fall back to a fixed apology so flagged text never passes.
type Service struct {
	moderator Moderator
	rewriter  Rewriter
}

func NewService(moderator Moderator, rewriter Rewriter) *Service {
	return &Service{moderator: moderator, rewriter: rewriter}
}

// Check moderates text. On moderation failure it returns an unflagged result
// carrying the original text, so an outage never silences the tutor.
func (s *Service) Check(ctx context.Context, text string) Result {
	res, err := s.moderator.Moderate(ctx, text)
	if err != nil {
		slog.Warn("moderation check failed, passing text through", "err", err)
		return Result{Flagged: false, Original: text}
	}
	return res
}

// CheckAndRewrite implements Checker: moderate, and rewrite when flagged.
func (s *Service) CheckAndRewrite(ctx context.Context, text string) (Result, error) {
	res := s.Check(ctx, text)
	if !res.Flagged {
		return res, nil
	}

	safe, err := s.rewriter.Rewrite(ctx, text, res.Categories)
	if err != nil || safe == "" {
		slog.Warn("content rewrite failed, using fallback", "err", err)
		safe = rewriteFallback
	}
	res.Rewritten = safe
	slog.Warn("content flagged and rewritten", "categories", res.Categories)
	return res, nil
}
