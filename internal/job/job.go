// Package job tracks the unit of work for one student turn: dispatched
// immediately, processed in the background, polled or awaited by transports.
package job

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/minerva/internal/routing"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Job is the central entity of the pipeline. Identity fields are immutable
// after construction; state advances one way along
// pending → processing → (complete | error) and never revisits a state.
type Job struct {
	ID           string
	SessionID    string
	StudentText  string
	DispatchedAt time.Time

	mu           sync.Mutex
	status       Status
	subject      routing.Subject
	classifiedAt time.Time
	rawText      string
	safeText     string
	ttsReady     bool
	errorMessage string
	completedAt  time.Time

	done chan struct{}
}

// Snapshot is an immutable view of a job for pollers and waiters.
type Snapshot struct {
	JobID        string          `json:"job_id"`
	SessionID    string          `json:"session_id"`
	Status       Status          `json:"status"`
	Subject      routing.Subject `json:"subject,omitempty"`
	SafeText     string          `json:"safe_text,omitempty"`
	RawText      string          `json:"-"`
	TTSReady     bool            `json:"tts_ready"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DispatchedAt time.Time       `json:"dispatched_at"`
	CompletedAt  time.Time       `json:"-"`
}

// New constructs a pending job with an armed completion signal.
func New(sessionID, studentText string) *Job {
	return &Job{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		StudentText:  studentText,
		DispatchedAt: time.Now().UTC(),
		status:       StatusPending,
		done:         make(chan struct{}),
	}
}

// MarkProcessing records the classification outcome. It is a no-op on a job
// that already left the pending state.
func (j *Job) MarkProcessing(subject routing.Subject) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return
	}
	j.status = StatusProcessing
	j.subject = subject
	j.classifiedAt = time.Now().UTC()
}

// MarkComplete publishes the final text and fires the completion signal.
// No-op if the job is already terminal.
func (j *Job) MarkComplete(safeText, rawText string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = StatusComplete
	j.safeText = safeText
	j.rawText = rawText
	j.ttsReady = true
	j.completedAt = time.Now().UTC()
	close(j.done)
}

// MarkError moves the job to the error state and fires the completion
// signal. No-op if the job is already terminal.
func (j *Job) MarkError(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = StatusError
	j.errorMessage = message
	j.completedAt = time.Now().UTC()
	close(j.done)
}

// Await blocks until the job reaches a terminal state or the timeout
// elapses. A non-positive timeout polls without blocking. All waiters
// observe the same terminal snapshot once the signal fires.
func (j *Job) Await(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-j.done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-j.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done exposes the one-shot completion signal.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Snapshot returns a consistent copy of the job state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		JobID:        j.ID,
		SessionID:    j.SessionID,
		Status:       j.status,
		Subject:      j.subject,
		SafeText:     j.safeText,
		RawText:      j.rawText,
		TTSReady:     j.ttsReady,
		ErrorMessage: j.errorMessage,
		DispatchedAt: j.DispatchedAt,
		CompletedAt:  j.completedAt,
	}
}

// Status returns the current state without copying the text fields.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// CompletedAt returns the terminal timestamp, zero while running.
func (j *Job) CompletedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completedAt
}
