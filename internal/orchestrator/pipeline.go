package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/minerva/internal/audit"
	"github.com/antoniostano/minerva/internal/escalation"
	"github.com/antoniostano/minerva/internal/job"
	"github.com/antoniostano/minerva/internal/observability"
	"github.com/antoniostano/minerva/internal/routing"
	"github.com/antoniostano/minerva/internal/session"
)

var errEmptyResponse = errors.New("specialist produced no text")

// runPipeline executes one turn. Ordering is load-bearing: classify, audit
// the route, stream through the filter, complete the job, then settle the
// session counters and write the transcript. Each audit write is guarded
// independently so one failure cannot stop the rest.
func (s *Service) runPipeline(ctx context.Context, j *job.Job, state *session.State, turn int) {
	routeStart := time.Now()
	res, err := s.router.Route(ctx, j.StudentText)
	routeLatency := time.Since(routeStart)
	s.window.Observe(observability.StageClassify, routeLatency)
	if err != nil {
		// Classifier outages degrade to the general tutor, never to a
		// dead turn.
		res = routing.Result{Subject: routing.SubjectEnglish, Confidence: routing.ConfidenceFallback}
		s.window.ObserveIndicator(observability.IndicatorClassifierFallback)
	}

	j.MarkProcessing(res.Subject)
	state.SetSubject(res.Subject)
	if s.metrics != nil {
		s.metrics.RoutingDecisions.WithLabelValues(string(res.Subject)).Inc()
		s.metrics.ObserveRoutingLatency(routeLatency)
	}

	s.auditWrite("routing", s.sink.RecordRouting(ctx, audit.RoutingDecision{
		SessionID:  state.ID,
		JobID:      j.ID,
		Utterance:  j.StudentText,
		Subject:    res.Subject,
		Confidence: res.Confidence,
		RawLabel:   res.Raw,
		LatencyMS:  routeLatency.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}))

	if res.Subject == routing.SubjectEscalate {
		state.MarkEscalated()
		if s.metrics != nil {
			s.metrics.Escalations.Inc()
		}
		// Observers learn about the handoff before the spoken handoff
		// line finishes rendering.
		s.bus.Notify(ctx, state.ID, j.ID, "classifier routed to escalate")
	}

	streamStart := time.Now()
	safeText, rawText, err := s.streamAndFilter(ctx, res.Subject, j.StudentText)
	s.window.Observe(observability.StageStream, time.Since(streamStart))
	if err == nil && safeText == "" {
		// Completion requires speakable text.
		err = errEmptyResponse
	}
	if err != nil {
		s.window.ObserveIndicator(observability.IndicatorStreamError)
		j.MarkError(err.Error())
		state.ConsumeSkip()
		s.finishMetrics(j, "error")
		return
	}

	if safeText != rawText {
		// The texts can differ on whitespace alone, so only the check
		// outcome decides whether an intervention is counted.
		check := s.safety.Check(ctx, rawText)
		if check.Flagged && s.metrics != nil {
			s.metrics.GuardrailFlags.WithLabelValues("response").Inc()
		}
		s.auditWrite("safety", s.sink.RecordSafety(ctx, audit.SafetyEvent{
			SessionID:  state.ID,
			JobID:      j.ID,
			Stage:      "response",
			Flagged:    check.Flagged,
			Categories: check.Categories,
			Original:   rawText,
			Rewritten:  safeText,
			Confidence: check.Confidence,
			CreatedAt:  time.Now().UTC(),
		}))
	}

	j.MarkComplete(safeText, rawText)
	state.ResetFiller()
	state.ConsumeSkip()
	s.finishMetrics(j, "complete")

	s.writeTranscript(ctx, j, state, res.Subject, turn, safeText)
}

// streamAndFilter opens the specialist stream and tees it: raw chunks are
// captured verbatim while the same chunks flow through the sentence filter.
// A stream error fails the whole turn; partial text is never published.
func (s *Service) streamAndFilter(ctx context.Context, subject routing.Subject, question string) (safeText, rawText string, err error) {
	chunks, errs := s.registry.Open(ctx, subject, question)

	var raw, safe strings.Builder
	tee := make(chan string, 16)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(tee)
		for chunk := range chunks {
			raw.WriteString(chunk)
			select {
			case tee <- chunk:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return <-errs
	})

	filtered := s.filter.Filter(gctx, tee)
	g.Go(func() error {
		for sentence := range filtered {
			safe.WriteString(sentence)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(safe.String()), strings.TrimSpace(raw.String()), nil
}

func (s *Service) writeTranscript(ctx context.Context, j *job.Job, state *session.State, subject routing.Subject, turn int, safeText string) {
	now := time.Now().UTC()
	rows := []audit.TranscriptTurn{
		{
			SessionID: state.ID,
			JobID:     j.ID,
			TurnIndex: turn,
			Role:      "student",
			Content:   j.StudentText,
			CreatedAt: now,
		},
		{
			SessionID: state.ID,
			JobID:     j.ID,
			TurnIndex: turn,
			Role:      "tutor",
			Content:   safeText,
			Subject:   subject,
			CreatedAt: now,
		},
	}
	for _, row := range rows {
		s.auditWrite("transcript", s.sink.RecordTranscript(ctx, row))
		s.bus.Broadcast(escalation.Event{
			Type:      escalation.EventTranscript,
			SessionID: state.ID,
			Payload:   row,
		})
	}
}

func (s *Service) finishMetrics(j *job.Job, status string) {
	s.window.Observe(observability.StageJobTotal, j.CompletedAt().Sub(j.DispatchedAt))
	if s.metrics == nil {
		return
	}
	s.metrics.JobsFinished.WithLabelValues(status).Inc()
	s.metrics.ObserveJobDuration(j.CompletedAt().Sub(j.DispatchedAt))
}
