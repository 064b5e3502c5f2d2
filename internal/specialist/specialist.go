// Package specialist maps subject routes to streaming answer generators.
package specialist

import (
	"context"

	"github.com/antoniostano/minerva/internal/routing"
)

// EscalationMessage is spoken while a human teacher is being attached.
const EscalationMessage = "I'm connecting you with a teacher who can help with this."

// Streamer produces a cold, finite stream of text chunks for one question.
// The chunk channel closes at end of generation; the error channel then
// yields nil or the terminal error. Cancelling ctx cancels generation.
type Streamer interface {
	Stream(ctx context.Context, question string) (<-chan string, <-chan error)
}

// Registry owns the subject → generator mapping. Dispatch is a switch over
// the closed route enum; unknown subjects fall back to english.
type Registry struct {
	math    Streamer
	history Streamer
	english Streamer
}

func NewRegistry(math, history, english Streamer) *Registry {
	return &Registry{math: math, history: history, english: english}
}

// Open starts a new generation for the given subject. Escalation opens a
// synthetic one-chunk stream so the student hears a handoff message while
// the teacher is notified out of band.
func (r *Registry) Open(ctx context.Context, subject routing.Subject, question string) (<-chan string, <-chan error) {
	switch subject {
	case routing.SubjectMath:
		return r.math.Stream(ctx, question)
	case routing.SubjectHistory:
		return r.history.Stream(ctx, question)
	case routing.SubjectEscalate:
		return staticStream(ctx, EscalationMessage)
	default:
		return r.english.Stream(ctx, question)
	}
}

func staticStream(ctx context.Context, text string) (<-chan string, <-chan error) {
	out := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		select {
		case out <- text:
			errc <- nil
		case <-ctx.Done():
			errc <- ctx.Err()
		}
	}()
	return out, errc
}
