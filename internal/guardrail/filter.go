package guardrail

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// sentenceEnd matches a run of sentence terminators plus trailing whitespace.
var sentenceEnd = regexp.MustCompile(`[.!?]+\s*`)

// SentenceFilter re-aligns an arbitrarily chunked text stream to sentence
// boundaries and applies the checker once per sentence. It never emits
// mid-word and never drops residual text: whatever remains in the buffer
// when the input closes is checked and emitted as a final sentence.
type SentenceFilter struct {
	checker Checker
}

func NewSentenceFilter(checker Checker) *SentenceFilter {
	return &SentenceFilter{checker: checker}
}

// Filter consumes in and returns a channel of safety-approved sentences.
// Complete sentences are emitted with a single trailing space; the residual
// flush is emitted as the checker returned it. Output order matches input
// order. A checker error passes the sentence through unchanged.
//
// The output channel is closed when in is closed and the residual has been
// flushed, or when ctx is cancelled.
func (f *SentenceFilter) Filter(ctx context.Context, in <-chan string) <-chan string {
	out := make(chan string, 8)

	go func() {
		defer close(out)
		var buffer string

		emit := func(sentence string, residual bool) bool {
			safe := f.checkSentence(ctx, sentence)
			if safe == "" {
				return true
			}
			if !residual {
				safe += " "
			}
			select {
			case out <- safe:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-in:
				if !ok {
					// End of stream: the residual flush is mandatory.
					if tail := strings.TrimSpace(buffer); tail != "" {
						emit(tail, true)
					}
					return
				}
				buffer += chunk

				for {
					loc := sentenceEnd.FindStringIndex(buffer)
					if loc == nil {
						break
					}
					sentence := strings.TrimSpace(buffer[:loc[1]])
					buffer = buffer[loc[1]:]
					if sentence == "" {
						continue
					}
					if !emit(sentence, false) {
						return
					}
				}
			}
		}
	}()

	return out
}

func (f *SentenceFilter) checkSentence(ctx context.Context, sentence string) string {
	res, err := f.checker.CheckAndRewrite(ctx, sentence)
	if err != nil {
		slog.Warn("sentence check failed, emitting original", "err", err)
		return sentence
	}
	return res.SafeText()
}
