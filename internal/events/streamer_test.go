package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

// fakeProducer implements the minimal Producer interface for tests.
type fakeProducer struct {
	produceFunc func(ctx context.Context, key []byte, value []byte) (time.Time, error)
}

func (f *fakeProducer) Produce(ctx context.Context, key []byte, value []byte) (time.Time, error) {
	if f.produceFunc != nil {
		return f.produceFunc(ctx, key, value)
	}
	return time.Now().UTC(), nil
}

func (f *fakeProducer) Close() error { return nil }

// fakeArchiver implements Archiver for tests.
type fakeArchiver struct {
	archiveFunc func(ctx context.Context, ev *Event) (string, error)
}

func (f *fakeArchiver) ArchiveEvent(ctx context.Context, ev *Event) (string, error) {
	if f.archiveFunc != nil {
		return f.archiveFunc(ctx, ev)
	}
	return "events/engagements/2026/08/28/" + ev.ID.String() + ".json", nil
}

func sampleEvent() *Event {
	return &Event{
		ID:           uuid.New(),
		Type:         TypeEngagementCreated,
		EngagementID: uuid.New(),
		Payload:      json.RawMessage(`{"paymentMode":"cash_on_delivery"}`),
		Ts:           time.Now().UTC(),
	}
}

func TestProcessEvent_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	journal := NewPGJournal(db)
	ev := sampleEvent()

	var producedKey []byte
	prod := &fakeProducer{
		produceFunc: func(ctx context.Context, key []byte, value []byte) (time.Time, error) {
			producedKey = key
			var envelope Event
			if err := json.Unmarshal(value, &envelope); err != nil {
				t.Fatalf("envelope not valid JSON: %v", err)
			}
			if envelope.ID != ev.ID || envelope.Type != TypeEngagementCreated {
				t.Fatalf("unexpected envelope %+v", envelope)
			}
			return time.Now().UTC(), nil
		},
	}
	arch := &fakeArchiver{}

	streamer := NewStreamer(journal, prod, arch, StreamerConfig{
		BatchSize:      1,
		MaxConcurrency: 1,
		PollInterval:   time.Second,
	})

	// Success path: stream_status moves to done with the archive key.
	mock.ExpectExec("UPDATE\\s+engagement_events").
		WithArgs(sqlmock.AnyArg(), ev.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := streamer.processEvent(context.Background(), ev); err != nil {
		t.Fatalf("processEvent error: %v", err)
	}
	if string(producedKey) != ev.EngagementID.String() {
		t.Fatalf("messages must be keyed by engagement id, got %q", producedKey)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessEvent_ProducerFail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	journal := NewPGJournal(db)
	ev := sampleEvent()

	prod := &fakeProducer{
		produceFunc: func(ctx context.Context, key []byte, value []byte) (time.Time, error) {
			return time.Time{}, errors.New("producer failure")
		},
	}
	arch := &fakeArchiver{
		archiveFunc: func(ctx context.Context, ev *Event) (string, error) {
			t.Fatalf("archiver must not run when produce fails")
			return "", nil
		},
	}

	streamer := NewStreamer(journal, prod, arch, StreamerConfig{
		BatchSize:      1,
		MaxConcurrency: 1,
		PollInterval:   time.Second,
	})

	// Failure path: the row goes back to pending with the error recorded.
	mock.ExpectExec("UPDATE\\s+engagement_events").
		WithArgs(sqlmock.AnyArg(), ev.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := streamer.processEvent(context.Background(), ev); err == nil {
		t.Fatalf("expected error from processEvent due to producer failure, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessEvent_NoArchiver(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	journal := NewPGJournal(db)
	ev := sampleEvent()

	streamer := NewStreamer(journal, &fakeProducer{}, nil, StreamerConfig{
		BatchSize:      1,
		MaxConcurrency: 1,
		PollInterval:   time.Second,
	})

	mock.ExpectExec("UPDATE\\s+engagement_events").
		WithArgs(sqlmock.AnyArg(), ev.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := streamer.processEvent(context.Background(), ev); err != nil {
		t.Fatalf("produce-only mode must still mark success: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestJournalAppendDefaultsIDAndPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	journal := NewPGJournal(db)
	ev := &Event{Type: TypeEngagementCompleted, EngagementID: uuid.New()}

	mock.ExpectExec("INSERT INTO engagement_events").
		WithArgs(sqlmock.AnyArg(), TypeEngagementCompleted, ev.EngagementID, []byte("{}"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := journal.Append(context.Background(), ev); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ev.ID == uuid.Nil || ev.Ts.IsZero() {
		t.Fatalf("Append must default id and timestamp, got %+v", ev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
