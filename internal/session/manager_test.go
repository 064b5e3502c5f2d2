package session

import (
	"testing"
	"time"

	"github.com/antoniostano/minerva/internal/routing"
)

func TestManagerOpenGetClose(t *testing.T) {
	m := NewManager()
	s := m.Open()
	if s.ID == "" {
		t.Fatalf("Open() returned empty session ID")
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s {
		t.Fatalf("Get() returned a different state instance")
	}

	sum, err := m.Close(s.ID)
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if sum.SessionID != s.ID {
		t.Fatalf("Close() summary session = %q, want %q", sum.SessionID, s.ID)
	}
	if _, err := m.Get(s.ID); err != ErrNotFound {
		t.Fatalf("Get() after Close error = %v, want ErrNotFound", err)
	}
}

func TestManagerGetOrCreateIsLazy(t *testing.T) {
	m := NewManager()

	s := m.GetOrCreate("student-7")
	if s.ID != "student-7" {
		t.Fatalf("ID = %q, want caller-supplied ID", s.ID)
	}
	if again := m.GetOrCreate("student-7"); again != s {
		t.Fatalf("GetOrCreate created a second state for the same ID")
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}
}

func TestSkipCounterStacks(t *testing.T) {
	s := newState("s1")
	if s.ShouldSkipTurn() {
		t.Fatalf("fresh session should not skip")
	}

	// Two overlapping dispatches each add one skip.
	s.MarkRouting()
	s.MarkRouting()

	s.ConsumeSkip()
	if !s.ShouldSkipTurn() {
		t.Fatalf("one skip consumed, one should remain")
	}
	s.ConsumeSkip()
	if s.ShouldSkipTurn() {
		t.Fatalf("both skips consumed, none should remain")
	}
}

func TestSkipCounterNeverGoesNegative(t *testing.T) {
	s := newState("s1")
	s.ConsumeSkip()
	s.ConsumeSkip()
	if s.ShouldSkipTurn() {
		t.Fatalf("draining an empty counter must leave it at zero")
	}

	s.MarkRouting()
	if !s.ShouldSkipTurn() {
		t.Fatalf("a fresh routing mark must still register one skip")
	}
}

func TestSetSubjectTracksLatestRoute(t *testing.T) {
	s := newState("s1")
	s.SetSubject(routing.SubjectHistory)
	if got := s.CurrentSubject(); got != routing.SubjectHistory {
		t.Fatalf("CurrentSubject() = %q, want history", got)
	}
	s.SetSubject(routing.SubjectMath)
	if got := s.CurrentSubject(); got != routing.SubjectMath {
		t.Fatalf("CurrentSubject() = %q, want math after reroute", got)
	}
}

func TestFillerLadder(t *testing.T) {
	s := newState("s1")

	want := []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond, 3 * time.Second}
	for i, w := range want {
		d, ok := s.NextFillerDelay()
		if !ok || d != w {
			t.Fatalf("level %d: delay = %v ok=%v, want %v", i, d, ok, w)
		}
		s.AdvanceFiller()
	}

	if _, ok := s.NextFillerDelay(); ok {
		t.Fatalf("ladder exhausted, want no further filler")
	}

	// Saturates: advancing past the top does not wrap or grow.
	s.AdvanceFiller()
	if _, ok := s.NextFillerDelay(); ok {
		t.Fatalf("ladder must stay exhausted after extra advances")
	}

	s.ResetFiller()
	if d, ok := s.NextFillerDelay(); !ok || d != want[0] {
		t.Fatalf("after reset: delay = %v ok=%v, want %v", d, ok, want[0])
	}
}

func TestEscalationFlagIsSticky(t *testing.T) {
	s := newState("s1")
	s.MarkEscalated()
	s.MarkRouting()
	s.ResetFiller()
	if !s.Escalated() {
		t.Fatalf("escalation flag must persist across turns")
	}
}

func TestTurnIndexesAreSequential(t *testing.T) {
	s := newState("s1")
	for want := 1; want <= 3; want++ {
		if got := s.NextTurnIndex(); got != want {
			t.Fatalf("NextTurnIndex() = %d, want %d", got, want)
		}
	}
	if s.TurnCount() != 3 {
		t.Fatalf("TurnCount() = %d, want 3", s.TurnCount())
	}
}
