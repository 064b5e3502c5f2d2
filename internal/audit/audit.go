// Package audit persists the decision trail of the tutoring pipeline:
// routing outcomes, guardrail events, transcript turns and escalations.
// Every write is best effort; the pipeline never blocks on the trail.
package audit

import (
	"context"
	"time"

	"github.com/antoniostano/minerva/internal/routing"
)

// RoutingDecision records one classifier outcome.
type RoutingDecision struct {
	SessionID  string          `json:"session_id"`
	JobID      string          `json:"job_id"`
	Utterance  string          `json:"utterance"`
	Subject    routing.Subject `json:"subject"`
	Confidence float64         `json:"confidence"`
	RawLabel   string          `json:"raw_label,omitempty"`
	LatencyMS  int64           `json:"latency_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SafetyEvent records one guardrail intervention or pass.
type SafetyEvent struct {
	SessionID  string    `json:"session_id"`
	JobID      string    `json:"job_id"`
	Stage      string    `json:"stage"`
	Flagged    bool      `json:"flagged"`
	Categories []string  `json:"categories,omitempty"`
	Original   string    `json:"original"`
	Rewritten  string    `json:"rewritten,omitempty"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// TranscriptTurn is one student or tutor utterance in session order.
type TranscriptTurn struct {
	SessionID string          `json:"session_id"`
	JobID     string          `json:"job_id"`
	TurnIndex int             `json:"turn_index"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Subject   routing.Subject `json:"subject,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Escalation records a handoff to a human teacher.
type Escalation struct {
	SessionID   string    `json:"session_id"`
	JobID       string    `json:"job_id,omitempty"`
	Reason      string    `json:"reason"`
	ObserverURL string    `json:"observer_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionReport aggregates a closed session for review.
type SessionReport struct {
	SessionID    string         `json:"session_id"`
	TurnCount    int            `json:"turn_count"`
	SubjectTurns map[string]int `json:"subject_turns,omitempty"`
	FlaggedCount int            `json:"flagged_count"`
	Escalated    bool           `json:"escalated"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      time.Time      `json:"ended_at"`
}

// Sink receives audit records. Implementations must tolerate concurrent
// writers.
type Sink interface {
	OpenSession(ctx context.Context, sessionID string, startedAt time.Time) error
	CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error
	RecordRouting(ctx context.Context, d RoutingDecision) error
	RecordSafety(ctx context.Context, e SafetyEvent) error
	RecordTranscript(ctx context.Context, turn TranscriptTurn) error
	RecordEscalation(ctx context.Context, e Escalation) error
	BuildSessionReport(ctx context.Context, sessionID string) (SessionReport, error)
}

// NopSink discards everything. Used when no database is configured.
type NopSink struct{}

func (NopSink) OpenSession(context.Context, string, time.Time) error  { return nil }
func (NopSink) CloseSession(context.Context, string, time.Time) error { return nil }
func (NopSink) RecordRouting(context.Context, RoutingDecision) error  { return nil }
func (NopSink) RecordSafety(context.Context, SafetyEvent) error       { return nil }
func (NopSink) RecordTranscript(context.Context, TranscriptTurn) error {
	return nil
}
func (NopSink) RecordEscalation(context.Context, Escalation) error { return nil }
func (NopSink) BuildSessionReport(_ context.Context, sessionID string) (SessionReport, error) {
	return SessionReport{SessionID: sessionID}, nil
}
