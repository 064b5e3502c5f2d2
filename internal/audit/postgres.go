package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists the audit trail in PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresSink{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS learning_sessions (
			session_id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS transcript_turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			turn_index INT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			subject TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_session_turn ON transcript_turns (session_id, turn_index);`,
		`CREATE TABLE IF NOT EXISTS routing_decisions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			utterance TEXT NOT NULL,
			subject TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			raw_label TEXT,
			latency_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS guardrail_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			flagged BOOLEAN NOT NULL,
			categories TEXT[],
			original TEXT NOT NULL,
			rewritten TEXT,
			confidence DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS escalation_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			job_id TEXT,
			reason TEXT NOT NULL,
			observer_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresSink) OpenSession(ctx context.Context, sessionID string, startedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO learning_sessions (session_id, started_at) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, startedAt,
	)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	return nil
}

func (s *PostgresSink) CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE learning_sessions SET ended_at=$2 WHERE session_id=$1`,
		sessionID, endedAt,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (s *PostgresSink) RecordRouting(ctx context.Context, d RoutingDecision) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO routing_decisions (id, session_id, job_id, utterance, subject, confidence, raw_label, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.NewString(), d.SessionID, d.JobID, d.Utterance, string(d.Subject), d.Confidence, d.RawLabel, d.LatencyMS, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record routing: %w", err)
	}
	return nil
}

func (s *PostgresSink) RecordSafety(ctx context.Context, e SafetyEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO guardrail_events (id, session_id, job_id, stage, flagged, categories, original, rewritten, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.NewString(), e.SessionID, e.JobID, e.Stage, e.Flagged, e.Categories, e.Original, e.Rewritten, e.Confidence, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record safety event: %w", err)
	}
	return nil
}

func (s *PostgresSink) RecordTranscript(ctx context.Context, turn TranscriptTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transcript_turns (id, session_id, job_id, turn_index, role, content, subject, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), turn.SessionID, turn.JobID, turn.TurnIndex, turn.Role, turn.Content, string(turn.Subject), turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record transcript turn: %w", err)
	}
	return nil
}

func (s *PostgresSink) RecordEscalation(ctx context.Context, e Escalation) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO escalation_events (id, session_id, job_id, reason, observer_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), e.SessionID, e.JobID, e.Reason, e.ObserverURL, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record escalation: %w", err)
	}
	return nil
}

func (s *PostgresSink) BuildSessionReport(ctx context.Context, sessionID string) (SessionReport, error) {
	report := SessionReport{
		SessionID:    sessionID,
		SubjectTurns: make(map[string]int),
	}

	var started, ended *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT started_at, ended_at FROM learning_sessions WHERE session_id=$1`,
		sessionID,
	).Scan(&started, &ended)
	if err == nil {
		if started != nil {
			report.StartedAt = *started
		}
		if ended != nil {
			report.EndedAt = *ended
		}
	}

	// Student and tutor rows share a turn index; the report counts turns,
	// not rows.
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT turn_index) FROM transcript_turns WHERE session_id=$1`,
		sessionID,
	).Scan(&report.TurnCount)
	if err != nil {
		return report, fmt.Errorf("count transcript turns: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT subject, COUNT(*) FROM transcript_turns
		 WHERE session_id=$1 AND subject IS NOT NULL AND subject <> ''
		 GROUP BY subject`,
		sessionID,
	)
	if err != nil {
		return report, fmt.Errorf("query transcript summary: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var subject string
		var count int
		if err := rows.Scan(&subject, &count); err != nil {
			return report, fmt.Errorf("scan transcript summary: %w", err)
		}
		report.SubjectTurns[subject] = count
	}
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("iterate transcript summary: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM guardrail_events WHERE session_id=$1 AND flagged`,
		sessionID,
	).Scan(&report.FlaggedCount)
	if err != nil {
		return report, fmt.Errorf("count guardrail events: %w", err)
	}

	var escalations int
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM escalation_events WHERE session_id=$1`,
		sessionID,
	).Scan(&escalations)
	if err != nil {
		return report, fmt.Errorf("count escalations: %w", err)
	}
	report.Escalated = escalations > 0

	return report, nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
