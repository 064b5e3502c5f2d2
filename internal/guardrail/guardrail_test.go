package guardrail

import (
	"context"
	"errors"
	"testing"
)

type stubModerator struct {
	result Result
	err    error
}

func (m stubModerator) Moderate(_ context.Context, text string) (Result, error) {
	if m.err != nil {
		return Result{}, m.err
	}
	res := m.result
	res.Original = text
	return res, nil
}

type stubRewriter struct {
	out string
	err error
}

func (r stubRewriter) Rewrite(_ context.Context, _ string, _ []string) (string, error) {
	return r.out, r.err
}

func TestResultSafeText(t *testing.T) {
	clean := Result{Flagged: false, Original: "hello"}
	if clean.SafeText() != "hello" {
		t.Fatalf("SafeText() = %q, want original", clean.SafeText())
	}

	flagged := Result{Flagged: true, Original: "bad", Rewritten: "good"}
	if flagged.SafeText() != "good" {
		t.Fatalf("SafeText() = %q, want rewritten", flagged.SafeText())
	}

	flaggedNoRewrite := Result{Flagged: true, Original: "bad"}
	if flaggedNoRewrite.SafeText() != "bad" {
		t.Fatalf("SafeText() = %q, want original when no rewrite exists", flaggedNoRewrite.SafeText())
	}
}

func TestServiceCheckFailsOpen(t *testing.T) {
	svc := NewService(stubModerator{err: errors.New("api down")}, stubRewriter{})

	res := svc.Check(context.Background(), "some text")
	if res.Flagged {
		t.Fatalf("Check() flagged on moderator error, want fail-open")
	}
	if res.Original != "some text" {
		t.Fatalf("Original = %q, want input preserved", res.Original)
	}
}

func TestServiceCheckAndRewriteCleanText(t *testing.T) {
	svc := NewService(stubModerator{result: Result{Flagged: false}}, stubRewriter{out: "should not be used"})

	res, err := svc.CheckAndRewrite(context.Background(), "clean")
	if err != nil {
		t.Fatalf("CheckAndRewrite() error = %v", err)
	}
	if res.Rewritten != "" {
		t.Fatalf("Rewritten = %q, want empty for clean text", res.Rewritten)
	}
	if res.SafeText() != "clean" {
		t.Fatalf("SafeText() = %q, want original", res.SafeText())
	}
}

func TestServiceCheckAndRewriteFlaggedText(t *testing.T) {
	svc := NewService(
		stubModerator{result: Result{Flagged: true, Categories: []string{"violence"}, Confidence: 0.92}},
		stubRewriter{out: "Safe content."},
	)

	res, err := svc.CheckAndRewrite(context.Background(), "Harmful content.")
	if err != nil {
		t.Fatalf("CheckAndRewrite() error = %v", err)
	}
	if !res.Flagged {
		t.Fatalf("Flagged = false, want true")
	}
	if res.SafeText() != "Safe content." {
		t.Fatalf("SafeText() = %q, want rewritten text", res.SafeText())
	}
	if res.Original != "Harmful content." {
		t.Fatalf("Original = %q, want untouched input", res.Original)
	}
}

func TestServiceRewriteFailureUsesFallback(t *testing.T) {
	svc := NewService(
		stubModerator{result: Result{Flagged: true, Categories: []string{"hate"}}},
		stubRewriter{err: errors.New("rewrite model down")},
	)

	res, err := svc.CheckAndRewrite(context.Background(), "bad text")
	if err != nil {
		t.Fatalf("CheckAndRewrite() error = %v", err)
	}
	if res.Rewritten != rewriteFallback {
		t.Fatalf("Rewritten = %q, want the fixed fallback", res.Rewritten)
	}
	if res.SafeText() == "bad text" {
		t.Fatalf("flagged text leaked through despite rewrite failure")
	}
}
