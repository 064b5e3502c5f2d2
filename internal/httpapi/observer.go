package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/minerva/internal/audit"
	"github.com/antoniostano/minerva/internal/escalation"
	"github.com/antoniostano/minerva/internal/protocol"
)

// ObserverBus is the subscription surface teacher observers attach to.
type ObserverBus interface {
	Subscribe(sessionID string) (<-chan escalation.Event, func())
}

// handleObserverWS attaches a teacher to a live session. The observer
// receives a connected ack, then transcript/escalation/hint events as they
// happen, and may send hints and pings back.
func (s *Server) handleObserverWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	summary, err := s.svc.SessionSummary(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.bus.Subscribe(sessionID)
	defer unsubscribe()

	outbound := make(chan any, 64)
	outbound <- protocol.Connected{
		Type:      protocol.TypeConnected,
		SessionID: sessionID,
		Escalated: summary.Escalated,
		TurnCount: summary.TurnCount,
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				s.countObserverMessage("outbound", msg)
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					cancel()
					return
				}
				msg, ok := observerMessage(evt)
				if !ok {
					continue
				}
				select {
				case outbound <- msg:
				default:
					// Writes are single-threaded; drop when saturated.
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseObserverMessage(data)
		if err != nil {
			continue
		}
		s.countObserverMessage("inbound", parsed)

		switch m := parsed.(type) {
		case protocol.Hint:
			s.svc.PushHint(ctx, sessionID, m.Text)
		case protocol.Ping:
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			select {
			case outbound <- protocol.Pong{Type: protocol.TypePong}:
			default:
			}
		}
	}

	cancel()
	<-writerDone
}

// observerMessage converts a bus event into its wire form.
func observerMessage(evt escalation.Event) (any, bool) {
	switch evt.Type {
	case escalation.EventTranscript:
		turn, ok := evt.Payload.(audit.TranscriptTurn)
		if !ok {
			return nil, false
		}
		return protocol.Transcript{
			Type:      protocol.TypeTranscript,
			SessionID: evt.SessionID,
			JobID:     turn.JobID,
			TurnIndex: turn.TurnIndex,
			Role:      turn.Role,
			Content:   turn.Content,
			Subject:   string(turn.Subject),
		}, true
	case escalation.EventEscalation:
		p, _ := evt.Payload.(map[string]string)
		return protocol.Escalation{
			Type:      protocol.TypeEscalation,
			SessionID: evt.SessionID,
			JobID:     p["job_id"],
			Reason:    p["reason"],
		}, true
	case escalation.EventTeacherHint:
		p, _ := evt.Payload.(map[string]string)
		return protocol.TeacherHint{
			Type:      protocol.TypeTeacherHint,
			SessionID: evt.SessionID,
			Text:      p["text"],
		}, true
	default:
		return nil, false
	}
}

func (s *Server) countObserverMessage(direction string, msg any) {
	if s.metrics == nil {
		return
	}
	var t protocol.MessageType
	switch m := msg.(type) {
	case protocol.Connected:
		t = m.Type
	case protocol.Transcript:
		t = m.Type
	case protocol.Escalation:
		t = m.Type
	case protocol.TeacherHint:
		t = m.Type
	case protocol.Pong:
		t = m.Type
	case protocol.Hint:
		t = m.Type
	case protocol.Ping:
		t = m.Type
	default:
		return
	}
	s.metrics.ObserverMessages.WithLabelValues(direction, string(t)).Inc()
}
