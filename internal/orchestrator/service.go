// Package orchestrator drives one student turn end to end: classify the
// utterance, stream the specialist answer through the sentence filter, and
// publish the completed text artifact for speech synthesis.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/antoniostano/minerva/internal/audit"
	"github.com/antoniostano/minerva/internal/escalation"
	"github.com/antoniostano/minerva/internal/guardrail"
	"github.com/antoniostano/minerva/internal/job"
	"github.com/antoniostano/minerva/internal/observability"
	"github.com/antoniostano/minerva/internal/routing"
	"github.com/antoniostano/minerva/internal/session"
)

// Specialists opens a subject-matched answer stream.
type Specialists interface {
	Open(ctx context.Context, subject routing.Subject, question string) (<-chan string, <-chan error)
}

// Filter re-aligns a chunk stream to safety-approved sentences.
type Filter interface {
	Filter(ctx context.Context, in <-chan string) <-chan string
}

// Safety is the single-shot check used to annotate altered responses.
type Safety interface {
	Check(ctx context.Context, text string) guardrail.Result
}

// Service wires the turn pipeline to its collaborators. All public methods
// are safe for concurrent use.
type Service struct {
	router   routing.Router
	registry Specialists
	filter   Filter
	safety   Safety
	jobs     *job.Store
	sessions *session.Manager
	sink     audit.Sink
	bus      *escalation.Bus
	metrics  *observability.Metrics
	window   *observability.PipelineWindow
	maxWait  time.Duration
}

type Options struct {
	Router      routing.Router
	Specialists Specialists
	Filter      Filter
	Safety      Safety
	Jobs        *job.Store
	Sessions    *session.Manager
	Sink        audit.Sink
	Bus         *escalation.Bus
	Metrics     *observability.Metrics
	Window      *observability.PipelineWindow
	MaxWait     time.Duration
}

func New(opts Options) *Service {
	if opts.Sink == nil {
		opts.Sink = audit.NopSink{}
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Second
	}
	return &Service{
		router:   opts.Router,
		registry: opts.Specialists,
		filter:   opts.Filter,
		safety:   opts.Safety,
		jobs:     opts.Jobs,
		sessions: opts.Sessions,
		sink:     opts.Sink,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		window:   opts.Window,
		maxWait:  opts.MaxWait,
	}
}

// Dispatch accepts one student utterance and returns the job ID without
// waiting on any collaborator. The pipeline runs as a detached task; caller
// disconnects do not abort it.
func (s *Service) Dispatch(sessionID, text string) string {
	state := s.sessions.GetOrCreate(sessionID)
	j := job.New(state.ID, text)
	s.jobs.Put(j)
	turn := state.NextTurnIndex()
	state.MarkRouting()
	if s.metrics != nil {
		s.metrics.JobsDispatched.Inc()
	}

	go s.runPipeline(context.Background(), j, state, turn)
	return j.ID
}

// Status returns the current job snapshot.
func (s *Service) Status(jobID string) (job.Snapshot, error) {
	j, err := s.jobs.Get(jobID)
	if err != nil {
		return job.Snapshot{}, err
	}
	return j.Snapshot(), nil
}

// Wait blocks until the job is terminal or the timeout elapses. Timeouts are
// clamped to the configured maximum; a zero or negative timeout polls
// without blocking. The second return is false on timeout; the job keeps
// running.
func (s *Service) Wait(jobID string, timeout time.Duration) (job.Snapshot, bool, error) {
	j, err := s.jobs.Get(jobID)
	if err != nil {
		return job.Snapshot{}, false, err
	}
	if timeout > s.maxWait {
		timeout = s.maxWait
	}
	completed := j.Await(timeout)
	return j.Snapshot(), completed, nil
}

// OpenSession registers a session and returns its summary. A caller-supplied
// ID makes the call idempotent; re-opening a live session is a no-op. An
// empty ID allocates a fresh session.
func (s *Service) OpenSession(ctx context.Context, sessionID string) session.Summary {
	if sessionID != "" {
		if state, err := s.sessions.Get(sessionID); err == nil {
			return state.Summary()
		}
	}

	var state *session.State
	if sessionID == "" {
		state = s.sessions.Open()
	} else {
		state = s.sessions.GetOrCreate(sessionID)
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	s.auditWrite("session_open", s.sink.OpenSession(ctx, state.ID, state.StartedAt))
	return state.Summary()
}

// CloseSession ends the session and returns its report. An unknown session
// still produces a close marker and a (possibly empty) report, so repeated
// closes are harmless.
func (s *Service) CloseSession(ctx context.Context, sessionID string) audit.SessionReport {
	summary, err := s.sessions.Close(sessionID)
	if err == nil && s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}

	s.auditWrite("session_close", s.sink.CloseSession(ctx, sessionID, time.Now().UTC()))

	report, rerr := s.sink.BuildSessionReport(ctx, sessionID)
	if rerr != nil {
		s.auditWrite("session_report", rerr)
		report = audit.SessionReport{SessionID: sessionID}
	}
	if err == nil {
		if report.TurnCount == 0 {
			report.TurnCount = summary.TurnCount
		}
		if !report.Escalated {
			report.Escalated = summary.Escalated
		}
		if report.StartedAt.IsZero() {
			report.StartedAt = summary.StartedAt
		}
	}
	return report
}

// Escalate hands the session to a human teacher and returns the observer
// URL the teacher should connect to.
func (s *Service) Escalate(ctx context.Context, sessionID, reason string) string {
	state := s.sessions.GetOrCreate(sessionID)
	state.MarkEscalated()
	if s.metrics != nil {
		s.metrics.Escalations.Inc()
	}
	return s.bus.Notify(ctx, state.ID, "", reason)
}

// PushHint forwards a teacher note to every observer of the session and
// records it on the transcript.
func (s *Service) PushHint(ctx context.Context, sessionID, text string) {
	state := s.sessions.GetOrCreate(sessionID)
	turn := state.NextTurnIndex()

	s.auditWrite("transcript", s.sink.RecordTranscript(ctx, audit.TranscriptTurn{
		SessionID: state.ID,
		TurnIndex: turn,
		Role:      "teacher",
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}))
	s.bus.Broadcast(escalation.Event{
		Type:      escalation.EventTeacherHint,
		SessionID: state.ID,
		Payload:   map[string]string{"text": text},
	})
}

// SessionSummary returns the live view used by the observer handshake.
func (s *Service) SessionSummary(sessionID string) (session.Summary, error) {
	state, err := s.sessions.Get(sessionID)
	if err != nil {
		return session.Summary{}, err
	}
	return state.Summary(), nil
}

// FillerDecision tells the transport whether to stall-speak while a job is
// running. It returns no delay when the turn is suppressed or the ladder is
// exhausted; otherwise it returns the next delay and advances the ladder.
func (s *Service) FillerDecision(sessionID string) (time.Duration, bool) {
	state, err := s.sessions.Get(sessionID)
	if err != nil {
		return 0, false
	}
	if state.ShouldSkipTurn() {
		return 0, false
	}
	d, ok := state.NextFillerDelay()
	if !ok {
		return 0, false
	}
	state.AdvanceFiller()
	return d, true
}

func (s *Service) auditWrite(kind string, err error) {
	if err == nil {
		return
	}
	slog.Warn("audit write failed", "kind", kind, "error", err)
	if s.metrics != nil {
		s.metrics.AuditErrors.WithLabelValues(kind).Inc()
	}
}
