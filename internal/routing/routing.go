// Package routing classifies student utterances into subject routes.
package routing

import (
	"context"
	"strings"
)

// Subject is the closed set of routes the orchestrator dispatches on.
// Downstream code must switch on these constants, never on raw model text.
type Subject string

const (
	SubjectMath     Subject = "math"
	SubjectHistory  Subject = "history"
	SubjectEnglish  Subject = "english"
	SubjectEscalate Subject = "escalate"
)

// Confidence levels are discrete by design: the classifier either answered
// with exactly one route token, answered with extra text around one, or
// failed and fell back.
const (
	ConfidenceExact    = 1.0
	ConfidencePartial  = 0.8
	ConfidenceFallback = 0.5
)

// Result is the outcome of one classification.
type Result struct {
	Subject    Subject `json:"subject"`
	Confidence float64 `json:"confidence"`
	Raw        string  `json:"raw"`
}

// Router maps a student utterance to a subject route.
type Router interface {
	Route(ctx context.Context, utterance string) (Result, error)
}

var subjects = []Subject{SubjectMath, SubjectHistory, SubjectEnglish, SubjectEscalate}

// ParseSubject normalizes a classifier answer into a Result.
//
// Exact single-token answers are trusted (confidence 1.0). A route token
// buried in longer text is not a routing decision; the result falls back to
// english at confidence 0.8. Anything else is the english fallback at 0.5.
func ParseSubject(raw string) Result {
	norm := strings.ToLower(strings.TrimSpace(raw))

	for _, s := range subjects {
		if norm == string(s) {
			return Result{Subject: s, Confidence: ConfidenceExact, Raw: raw}
		}
	}

	hits := 0
	for _, s := range subjects {
		if strings.Contains(norm, string(s)) {
			hits++
		}
	}
	if hits == 1 {
		return Result{Subject: SubjectEnglish, Confidence: ConfidencePartial, Raw: raw}
	}
	return Result{Subject: SubjectEnglish, Confidence: ConfidenceFallback, Raw: raw}
}

// Valid reports whether s is one of the four known routes.
func Valid(s Subject) bool {
	switch s {
	case SubjectMath, SubjectHistory, SubjectEnglish, SubjectEscalate:
		return true
	}
	return false
}
