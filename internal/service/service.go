// Package service implements the engagement brokering core: the work item
// store operations, the application ledger, the engagement lifecycle engine,
// and the reputation aggregator.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/crafthub/engage/internal/events"
	"github.com/crafthub/engage/internal/identity"
	"github.com/crafthub/engage/internal/models"
	"github.com/crafthub/engage/internal/notify"
	"github.com/crafthub/engage/internal/payment"
	"github.com/crafthub/engage/internal/store"
)

var (
	// ErrValidation marks malformed or missing input. Never retried.
	ErrValidation = errors.New("invalid input")

	// ErrUnauthorized marks an actor acting on an entity it does not own.
	ErrUnauthorized = errors.New("not authorized")

	// ErrInvalidState marks an operation invalid for the entity's current
	// lifecycle state, e.g. rating a pending engagement.
	ErrInvalidState = errors.New("invalid lifecycle state")

	// ErrPaymentPending means the collaborator has not yet confirmed the
	// intent. It is retryable by polling ConfirmPayment again; it is not a
	// payment failure.
	ErrPaymentPending = errors.New("payment not yet confirmed")
)

// Config carries the tunables the engine needs.
type Config struct {
	// Currency for payment intents, e.g. "usd".
	Currency string
}

// Service wires the core against its collaborators. The journal may be nil;
// lifecycle events are then skipped entirely.
type Service struct {
	store     store.Store
	directory identity.Directory
	payments  payment.Client
	notifier  *notify.Notifier
	journal   events.Journal
	currency  string
}

func New(st store.Store, dir identity.Directory, pay payment.Client, notifier *notify.Notifier, journal events.Journal, cfg Config) *Service {
	currency := cfg.Currency
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		store:     st,
		directory: dir,
		payments:  pay,
		notifier:  notifier,
		journal:   journal,
		currency:  currency,
	}
}

// recordEvent journals a lifecycle transition, best effort. The primary
// state change has already committed by the time this runs; a journal
// failure is logged and never surfaced to the caller.
func (s *Service) recordEvent(ctx context.Context, eventType string, e models.Engagement, extra map[string]interface{}) {
	if s.journal == nil {
		return
	}
	payload := map[string]interface{}{
		"workItemId":  e.WorkItemID,
		"sourceKind":  e.SourceKind,
		"provider":    e.Provider,
		"owner":       e.Owner,
		"paymentMode": e.PaymentMode,
		"status":      e.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[service] marshal %s payload for %s: %v", eventType, e.ID, err)
		return
	}
	ev := &events.Event{
		Type:         eventType,
		EngagementID: e.ID,
		Payload:      raw,
	}
	if err := s.journal.Append(ctx, ev); err != nil {
		log.Printf("[service] journal %s for %s failed (dropped): %v", eventType, e.ID, err)
	}
}
