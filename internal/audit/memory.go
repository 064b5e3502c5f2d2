package audit

import (
	"context"
	"sync"
	"time"
)

// MemorySink keeps the audit trail in process memory. It backs tests and
// deployments without a database.
type MemorySink struct {
	mu          sync.Mutex
	opened      map[string]time.Time
	closed      map[string]time.Time
	Routing     []RoutingDecision
	Safety      []SafetyEvent
	Transcript  []TranscriptTurn
	Escalations []Escalation
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		opened: make(map[string]time.Time),
		closed: make(map[string]time.Time),
	}
}

func (m *MemorySink) OpenSession(_ context.Context, sessionID string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened[sessionID] = startedAt
	return nil
}

func (m *MemorySink) CloseSession(_ context.Context, sessionID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed[sessionID] = endedAt
	return nil
}

func (m *MemorySink) RecordRouting(_ context.Context, d RoutingDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Routing = append(m.Routing, d)
	return nil
}

func (m *MemorySink) RecordSafety(_ context.Context, e SafetyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Safety = append(m.Safety, e)
	return nil
}

func (m *MemorySink) RecordTranscript(_ context.Context, turn TranscriptTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transcript = append(m.Transcript, turn)
	return nil
}

func (m *MemorySink) RecordEscalation(_ context.Context, e Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Escalations = append(m.Escalations, e)
	return nil
}

func (m *MemorySink) BuildSessionReport(_ context.Context, sessionID string) (SessionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := SessionReport{
		SessionID:    sessionID,
		SubjectTurns: make(map[string]int),
		StartedAt:    m.opened[sessionID],
		EndedAt:      m.closed[sessionID],
	}
	// Student and tutor rows share a turn index; the report counts turns,
	// not rows.
	turns := make(map[int]struct{})
	for _, t := range m.Transcript {
		if t.SessionID != sessionID {
			continue
		}
		turns[t.TurnIndex] = struct{}{}
		if t.Subject != "" {
			report.SubjectTurns[string(t.Subject)]++
		}
	}
	report.TurnCount = len(turns)
	for _, e := range m.Safety {
		if e.SessionID == sessionID && e.Flagged {
			report.FlaggedCount++
		}
	}
	for _, e := range m.Escalations {
		if e.SessionID == sessionID {
			report.Escalated = true
			break
		}
	}
	return report, nil
}

// TranscriptFor returns the turns for one session in insertion order.
func (m *MemorySink) TranscriptFor(sessionID string) []TranscriptTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TranscriptTurn
	for _, t := range m.Transcript {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out
}
