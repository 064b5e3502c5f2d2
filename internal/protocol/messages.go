package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies teacher observer websocket payload variants.
type MessageType string

const (
	// Server to observer.
	TypeConnected   MessageType = "connected"
	TypeTranscript  MessageType = "transcript"
	TypeEscalation  MessageType = "escalation"
	TypeTeacherHint MessageType = "teacher_hint"
	TypePong        MessageType = "pong"

	// Observer to server.
	TypeHint MessageType = "hint"
	TypePing MessageType = "ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Connected is the handshake ack sent when an observer attaches.
type Connected struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Escalated bool        `json:"escalated"`
	TurnCount int         `json:"turn_count"`
}

// Transcript mirrors one pipeline turn to the observer.
type Transcript struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	JobID     string      `json:"job_id"`
	TurnIndex int         `json:"turn_index"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Subject   string      `json:"subject,omitempty"`
}

// Escalation tells the observer a handoff was requested.
type Escalation struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	JobID     string      `json:"job_id,omitempty"`
	Reason    string      `json:"reason"`
}

// TeacherHint echoes an accepted hint back to all observers.
type TeacherHint struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type Pong struct {
	Type MessageType `json:"type"`
}

// Hint is an observer-supplied note for the session.
type Hint struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

// ParseObserverMessage decodes an inbound observer frame.
func ParseObserverMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeHint:
		var msg Hint
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("invalid hint")
		}
		return msg, nil
	case TypePing:
		return Ping{Type: TypePing}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
