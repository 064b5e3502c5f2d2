// Package escalation fans session events out to connected teacher
// observers and mints the observer URL handed back on a handoff request.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/minerva/internal/audit"
)

// Event types pushed to teacher observers.
const (
	EventEscalation  = "escalation"
	EventTranscript  = "transcript"
	EventTeacherHint = "teacher_hint"
)

// Event is one observer notification. Payload must be JSON-marshalable.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Bus routes events to per-session observer subscriptions. Slow observers
// lose events rather than stall the pipeline.
type Bus struct {
	wsBaseURL string
	sink      audit.Sink

	mu          sync.Mutex
	subscribers map[string]map[int]chan Event
	nextSubID   int
}

// NewBus builds a bus that mints observer URLs under wsBaseURL, for example
// "ws://localhost:8080". Escalations are mirrored to sink best effort.
func NewBus(wsBaseURL string, sink audit.Sink) *Bus {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Bus{
		wsBaseURL:   strings.TrimRight(wsBaseURL, "/"),
		sink:        sink,
		subscribers: make(map[string]map[int]chan Event),
	}
}

// Subscribe registers an observer for one session. The returned cancel
// closes the channel and drops the registration.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, func()) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 64)
	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	if _, ok := b.subscribers[sessionID]; !ok {
		b.subscribers[sessionID] = make(map[int]chan Event)
	}
	b.subscribers[sessionID][id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[sessionID]
		if subs == nil {
			return
		}
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
		if len(subs) == 0 {
			delete(b.subscribers, sessionID)
		}
	}
}

// Broadcast delivers evt to every observer of the session. Full observer
// buffers drop the event.
func (b *Bus) Broadcast(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[evt.SessionID]
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ObserverCount reports how many observers watch the session.
func (b *Bus) ObserverCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[sessionID])
}

// ObserverURL is where a teacher connects to watch the session.
func (b *Bus) ObserverURL(sessionID string) string {
	return fmt.Sprintf("%s/ws/teacher/%s", b.wsBaseURL, sessionID)
}

// Notify records the handoff and pushes an escalation event to observers.
// It returns the observer URL for the requesting client. The audit write is
// best effort; a sink failure never blocks the handoff.
func (b *Bus) Notify(ctx context.Context, sessionID, jobID, reason string) string {
	url := b.ObserverURL(sessionID)

	if err := b.sink.RecordEscalation(ctx, audit.Escalation{
		SessionID:   sessionID,
		JobID:       jobID,
		Reason:      reason,
		ObserverURL: url,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		slog.Warn("escalation audit write failed", "session_id", sessionID, "error", err)
	}

	b.Broadcast(Event{
		Type:      EventEscalation,
		SessionID: sessionID,
		Payload:   map[string]string{"reason": reason, "job_id": jobID},
	})
	return url
}
