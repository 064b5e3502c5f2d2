package routing

import (
	"context"
	"log/slog"
	"time"

	"github.com/antoniostano/minerva/internal/llm"
)

const classifierSystemPrompt = `You are a question classifier for an AI tutoring system.
Classify the student's question into exactly one category:

- math: arithmetic, algebra, geometry, calculus, statistics, any math topic
- history: historical events, dates, people, civilizations, wars, politics
- english: grammar, writing, literature, reading comprehension, language
- escalate: inappropriate content, safety concerns, or topics outside math/history/english

Respond with ONLY the single word: math, history, english, or escalate.
No explanation, no punctuation, just the single classification word.`

const (
	classifierTemperature = 0.1
	classifierMaxTokens   = 10
	classifierTimeout     = 10 * time.Second
)

// LLMRouter classifies with a small, cheap model at low temperature.
type LLMRouter struct {
	client *llm.Client
}

func NewLLMRouter(client *llm.Client) *LLMRouter {
	return &LLMRouter{client: client}
}

// Route asks the model for a single route token and maps the answer through
// ParseSubject. A model or transport failure is fail-open: the student still
// gets an answer, from the english specialist, at fallback confidence.
func (r *LLMRouter) Route(ctx context.Context, utterance string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, classifierTimeout)
	defer cancel()

	raw, err := r.client.Complete(ctx, classifierSystemPrompt, utterance, classifierTemperature, classifierMaxTokens)
	if err != nil {
		slog.Warn("classifier failed, defaulting to english", "err", err)
		return Result{Subject: SubjectEnglish, Confidence: ConfidenceFallback, Raw: ""}, nil
	}
	return ParseSubject(raw), nil
}
