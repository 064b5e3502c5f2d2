package routing

import "testing"

func TestParseSubjectExactMatch(t *testing.T) {
	for _, want := range []Subject{SubjectMath, SubjectHistory, SubjectEnglish, SubjectEscalate} {
		got := ParseSubject(string(want))
		if got.Subject != want {
			t.Fatalf("ParseSubject(%q).Subject = %q, want %q", want, got.Subject, want)
		}
		if got.Confidence != ConfidenceExact {
			t.Fatalf("ParseSubject(%q).Confidence = %v, want %v", want, got.Confidence, ConfidenceExact)
		}
	}
}

func TestParseSubjectNormalizesCaseAndSpace(t *testing.T) {
	got := ParseSubject("  Math\n")
	if got.Subject != SubjectMath || got.Confidence != ConfidenceExact {
		t.Fatalf("ParseSubject = %+v, want exact math", got)
	}
}

func TestParseSubjectSubstringFallsBackToEnglish(t *testing.T) {
	got := ParseSubject("the subject is math, probably")
	if got.Subject != SubjectEnglish {
		t.Fatalf("Subject = %q, want english (substring hits are not trusted routing)", got.Subject)
	}
	if got.Confidence != ConfidencePartial {
		t.Fatalf("Confidence = %v, want %v", got.Confidence, ConfidencePartial)
	}
}

func TestParseSubjectMultipleTokensIsFallback(t *testing.T) {
	got := ParseSubject("math or history, hard to say")
	if got.Subject != SubjectEnglish || got.Confidence != ConfidenceFallback {
		t.Fatalf("ParseSubject = %+v, want english fallback", got)
	}
}

func TestParseSubjectUnknownIsEnglishFallback(t *testing.T) {
	for _, raw := range []string{"", "chemistry", "I would classify this as science"} {
		got := ParseSubject(raw)
		if got.Subject != SubjectEnglish {
			t.Fatalf("ParseSubject(%q).Subject = %q, want english", raw, got.Subject)
		}
		if got.Confidence != ConfidenceFallback {
			t.Fatalf("ParseSubject(%q).Confidence = %v, want %v", raw, got.Confidence, ConfidenceFallback)
		}
	}
}

func TestParseSubjectKeepsRaw(t *testing.T) {
	got := ParseSubject("History")
	if got.Raw != "History" {
		t.Fatalf("Raw = %q, want original text preserved", got.Raw)
	}
}

func TestValid(t *testing.T) {
	if !Valid(SubjectMath) || Valid(Subject("science")) {
		t.Fatalf("Valid() misclassified route membership")
	}
}
