package events

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"
)

// Producer is the small subset of Kafka producer behavior the streamer needs.
type Producer interface {
	Produce(ctx context.Context, key []byte, value []byte) (producedAt time.Time, err error)
	Close() error
}

// StreamerConfig configures the durable DB-first streamer.
type StreamerConfig struct {
	// How many events to claim per poll.
	BatchSize int

	// PollInterval when there is no work (or after a batch).
	PollInterval time.Duration

	// MaxConcurrency bounds concurrent processing of claimed events.
	MaxConcurrency int
}

// Streamer drains the engagement event journal: it claims pending rows,
// produces each envelope to Kafka, archives it to S3, and marks the row so
// the journal stays the source of truth for retries. The archiver may be nil
// when no bucket is configured; produce-only mode still marks success.
type Streamer struct {
	journal  Journal
	producer Producer
	archiver Archiver
	cfg      StreamerConfig

	wg sync.WaitGroup
}

func NewStreamer(journal Journal, producer Producer, archiver Archiver, cfg StreamerConfig) *Streamer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	return &Streamer{
		journal:  journal,
		producer: producer,
		archiver: archiver,
		cfg:      cfg,
	}
}

// Run polls until ctx is cancelled. Safe to run in a goroutine.
func (s *Streamer) Run(ctx context.Context) error {
	log.Printf("[events.streamer] starting (batch=%d, concurrency=%d)", s.cfg.BatchSize, s.cfg.MaxConcurrency)
	defer log.Printf("[events.streamer] stopped")

	sem := make(chan struct{}, s.cfg.MaxConcurrency)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			if s.producer != nil {
				_ = s.producer.Close()
			}
			return ctx.Err()
		default:
		}

		batch, err := s.journal.FetchPendingForStreaming(ctx, s.cfg.BatchSize)
		if err != nil {
			log.Printf("[events.streamer] fetch pending: %v", err)
			time.Sleep(s.cfg.PollInterval)
			continue
		}
		if len(batch) == 0 {
			time.Sleep(s.cfg.PollInterval)
			continue
		}

		for _, ev := range batch {
			sem <- struct{}{}
			s.wg.Add(1)
			go func(ev *Event) {
				defer func() {
					<-sem
					s.wg.Done()
				}()
				if err := s.processEvent(ctx, ev); err != nil {
					// processEvent already recorded the journal result.
					log.Printf("[events.streamer] process event %s: %v", ev.ID, err)
				}
			}(ev)
		}

		// Drain the batch before claiming more; keeps per-poll work bounded.
		for i := 0; i < s.cfg.MaxConcurrency; i++ {
			sem <- struct{}{}
		}
		for i := 0; i < s.cfg.MaxConcurrency; i++ {
			<-sem
		}
	}
}

// processEvent performs produce -> archive for one event and records the
// outcome in the journal.
func (s *Streamer) processEvent(parentCtx context.Context, ev *Event) error {
	ctx, cancel := context.WithTimeout(parentCtx, 30*time.Second)
	defer cancel()

	envelope, err := ev.Envelope()
	if err != nil {
		s.markFailure(parentCtx, ev, fmt.Sprintf("build envelope: %v", err))
		return err
	}

	if _, err := s.producer.Produce(ctx, []byte(ev.EngagementID.String()), envelope); err != nil {
		s.markFailure(parentCtx, ev, fmt.Sprintf("kafka produce: %v", err))
		return fmt.Errorf("kafka produce: %w", err)
	}

	archivedKey := sql.NullString{}
	if s.archiver != nil {
		key, err := s.archiver.ArchiveEvent(ctx, ev)
		if err != nil {
			s.markFailure(parentCtx, ev, fmt.Sprintf("s3 archive: %v", err))
			return fmt.Errorf("s3 archive: %w", err)
		}
		archivedKey = sql.NullString{String: key, Valid: true}
	}

	if err := s.journal.MarkStreamResult(parentCtx, ev.ID, archivedKey, true, sql.NullString{}); err != nil {
		return fmt.Errorf("mark event stream success: %w", err)
	}
	return nil
}

func (s *Streamer) markFailure(ctx context.Context, ev *Event, msg string) {
	errMsg := sql.NullString{String: msg, Valid: true}
	if err := s.journal.MarkStreamResult(ctx, ev.ID, sql.NullString{}, false, errMsg); err != nil {
		log.Printf("[events.streamer] mark failure for %s: %v", ev.ID, err)
	}
}
