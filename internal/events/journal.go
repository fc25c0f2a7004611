// Package events journals engagement lifecycle transitions DB-first and
// streams them out (Kafka) with an object-storage archive (S3). The journal
// row is the source of truth for retries; the stream and archive are
// downstream copies.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("event not found")

// Event types appended by the lifecycle engine.
const (
	TypeEngagementCreated   = "engagement.created"
	TypeEngagementCompleted = "engagement.completed"
	TypePaymentConfirmed    = "engagement.payment_confirmed"
	TypeEngagementRated     = "engagement.rated"
)

// Event is one journaled lifecycle transition.
type Event struct {
	ID           uuid.UUID       `json:"id"`
	Type         string          `json:"type"`
	EngagementID uuid.UUID       `json:"engagementId"`
	Payload      json.RawMessage `json:"payload"`
	Ts           time.Time       `json:"ts"`

	// Stream bookkeeping, not part of the envelope.
	Attempts    int     `json:"-"`
	ArchivedKey *string `json:"-"`
}

// Journal is the persistence contract for the event stream worker.
type Journal interface {
	Append(ctx context.Context, ev *Event) error
	FetchPendingForStreaming(ctx context.Context, limit int) ([]*Event, error)
	MarkStreamResult(ctx context.Context, id uuid.UUID, archivedKey sql.NullString, ok bool, streamErr sql.NullString) error
}

// PGJournal stores events in Postgres.
//
// Expected schema:
//
//	engagement_events (id uuid PK, event_type text, engagement_id uuid,
//	                   payload jsonb, ts timestamptz DEFAULT now(),
//	                   stream_status text DEFAULT 'pending', attempts int DEFAULT 0,
//	                   archived_key text, last_stream_error text)
type PGJournal struct {
	db *sql.DB
}

func NewPGJournal(db *sql.DB) *PGJournal {
	return &PGJournal{db: db}
}

func (j *PGJournal) Append(ctx context.Context, ev *Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}
	payload := ev.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	q := `
		INSERT INTO engagement_events (id, event_type, engagement_id, payload, ts)
		VALUES ($1,$2,$3,$4,$5)
	`
	if _, err := j.db.ExecContext(ctx, q, ev.ID, ev.Type, ev.EngagementID, payload, ev.Ts); err != nil {
		return fmt.Errorf("insert engagement event: %w", err)
	}
	return nil
}

// FetchPendingForStreaming claims up to limit pending rows. SKIP LOCKED lets
// several streamer instances share the table without stepping on each other;
// claimed rows move to in_progress so a crashed worker's rows can be swept
// back to pending by an operator.
func (j *PGJournal) FetchPendingForStreaming(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 10
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	q := `
		SELECT id, event_type, engagement_id, payload, ts, attempts
		FROM engagement_events
		WHERE stream_status = 'pending'
		ORDER BY ts ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}

	var events []*Event
	for rows.Next() {
		var (
			ev      Event
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.EngagementID, &payload, &ev.Ts, &ev.Attempts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		ev.Payload = append(json.RawMessage(nil), payload...)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("pending events rows err: %w", err)
	}
	rows.Close()

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, `
			UPDATE engagement_events
			SET stream_status = 'in_progress', attempts = attempts + 1
			WHERE id = $1
		`, ev.ID); err != nil {
			return nil, fmt.Errorf("claim event %s: %w", ev.ID, err)
		}
		ev.Attempts++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return events, nil
}

// MarkStreamResult records the outcome of one produce+archive attempt. On
// failure the row returns to pending so the next poll retries it.
func (j *PGJournal) MarkStreamResult(ctx context.Context, id uuid.UUID, archivedKey sql.NullString, ok bool, streamErr sql.NullString) error {
	var q string
	var args []interface{}
	if ok {
		q = `
			UPDATE engagement_events
			SET stream_status = 'done', archived_key = $1, last_stream_error = NULL
			WHERE id = $2
		`
		args = []interface{}{archivedKey, id}
	} else {
		q = `
			UPDATE engagement_events
			SET stream_status = 'pending', last_stream_error = $1
			WHERE id = $2
		`
		args = []interface{}{streamErr, id}
	}
	res, err := j.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("mark stream result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark stream result rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Envelope is the JSON shape produced to Kafka and archived to S3.
func (e *Event) Envelope() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event envelope: %w", err)
	}
	return b, nil
}
