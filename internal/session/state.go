// Package session holds per-student conversation state shared across turns:
// the filler ladder, the filler-skip counter, and the escalation flag.
package session

import (
	"sync"
	"time"

	"github.com/antoniostano/minerva/internal/routing"
)

// fillerDelays is the escalating wait ladder for filler phrases. Past the
// last level no more fillers are scheduled for the turn.
var fillerDelays = []time.Duration{
	500 * time.Millisecond,
	1500 * time.Millisecond,
	3 * time.Second,
}

// State is the mutable per-session record. The skip counter is an integer,
// not a flag: overlapping dispatches each add one skip and each pipeline
// completion consumes exactly one, so concurrent turns cannot clobber each
// other's suppression.
type State struct {
	ID        string
	StartedAt time.Time

	mu             sync.Mutex
	currentSubject routing.Subject
	skipFillers    int
	fillerLevel    int
	escalated      bool
	turnCount      int
	lastActivityAt time.Time
}

func newState(id string) *State {
	now := time.Now().UTC()
	return &State{
		ID:             id,
		StartedAt:      now,
		lastActivityAt: now,
	}
}

// MarkRouting suppresses one upcoming filler turn. Called at dispatch, before
// the subject is known; routings stack when dispatches overlap.
func (s *State) MarkRouting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipFillers++
	s.lastActivityAt = time.Now().UTC()
}

// SetSubject records the classified subject for the current turn.
func (s *State) SetSubject(subject routing.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentSubject = subject
}

// ConsumeSkip spends one suppressed filler turn. The counter never goes
// below zero.
func (s *State) ConsumeSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skipFillers > 0 {
		s.skipFillers--
	}
}

// ShouldSkipTurn reports whether the next filler turn is suppressed.
func (s *State) ShouldSkipTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipFillers > 0
}

// NextFillerDelay returns the wait before the next filler phrase. The second
// return is false once the ladder is exhausted.
func (s *State) NextFillerDelay() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fillerLevel >= len(fillerDelays) {
		return 0, false
	}
	return fillerDelays[s.fillerLevel], true
}

// AdvanceFiller moves one step up the ladder, saturating at the top.
func (s *State) AdvanceFiller() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fillerLevel < len(fillerDelays) {
		s.fillerLevel++
	}
}

// ResetFiller rewinds the ladder for the next turn.
func (s *State) ResetFiller() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fillerLevel = 0
}

// MarkEscalated flags the session as handed off to a human teacher. The
// flag is sticky for the life of the session.
func (s *State) MarkEscalated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalated = true
	s.lastActivityAt = time.Now().UTC()
}

func (s *State) Escalated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escalated
}

func (s *State) CurrentSubject() routing.Subject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSubject
}

// NextTurnIndex increments and returns the turn counter. Indexes start at 1.
func (s *State) NextTurnIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnCount++
	return s.turnCount
}

func (s *State) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// Summary is a point-in-time view of a session used by close reports and
// observer handshakes.
type Summary struct {
	SessionID      string          `json:"session_id"`
	CurrentSubject routing.Subject `json:"current_subject,omitempty"`
	Escalated      bool            `json:"escalated"`
	TurnCount      int             `json:"turn_count"`
	StartedAt      time.Time       `json:"started_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

func (s *State) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		SessionID:      s.ID,
		CurrentSubject: s.currentSubject,
		Escalated:      s.escalated,
		TurnCount:      s.turnCount,
		StartedAt:      s.StartedAt,
		LastActivityAt: s.lastActivityAt,
	}
}
