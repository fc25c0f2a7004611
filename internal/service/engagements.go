package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/events"
	"github.com/crafthub/engage/internal/models"
	"github.com/crafthub/engage/internal/payment"
)

// CompletionResult is what CompleteEngagement hands back. For cash
// settlement the engagement is completed and Continuation is nil; for online
// settlement the engagement stays open awaiting confirmation and
// Continuation carries the client's payment handoff.
type CompletionResult struct {
	Engagement   models.Engagement
	Continuation *payment.Intent
}

// CompleteEngagement is the owner's completion action. Cash engagements
// complete synchronously. Online engagements open a payment intent with the
// collaborator, move to awaiting_payment, and stay there until a
// ConfirmPayment call succeeds.
func (s *Service) CompleteEngagement(ctx context.Context, id uuid.UUID, actor models.ActorRef, amountMinorUnits int64, methodHint string) (CompletionResult, error) {
	e, err := s.store.GetEngagement(ctx, id)
	if err != nil {
		return CompletionResult{}, err
	}
	if e.Owner.ID != actor.ID {
		return CompletionResult{}, fmt.Errorf("%w: only the owner may complete an engagement", ErrUnauthorized)
	}
	if e.Status == models.EngagementCompleted {
		return CompletionResult{}, fmt.Errorf("%w: engagement already completed", ErrInvalidState)
	}

	if e.PaymentMode == models.PaymentModeCash {
		updated, err := s.store.CompleteEngagement(ctx, id, nil)
		if err != nil {
			return CompletionResult{}, err
		}
		s.recordEvent(ctx, events.TypeEngagementCompleted, updated, map[string]interface{}{
			"settlement": "cash_on_delivery",
		})
		return CompletionResult{Engagement: updated}, nil
	}

	if amountMinorUnits <= 0 {
		return CompletionResult{}, fmt.Errorf("%w: a positive amount is required for online settlement", ErrValidation)
	}

	intent, err := s.payments.CreateIntent(ctx, amountMinorUnits, s.currency, methodHint)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("create payment intent: %w", err)
	}

	updated, err := s.store.MarkEngagementAwaitingPayment(ctx, id, intent.ID)
	if err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{Engagement: updated, Continuation: &intent}, nil
}

// ConfirmPayment finishes an online engagement once the collaborator reports
// the intent succeeded. It is idempotent against webhook-style redelivery:
// re-confirming a completed engagement with the same intent id is a no-op
// success. A collaborator status that is neither success nor definitive
// failure leaves the engagement awaiting payment, retryable.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, intentID string) (models.Engagement, error) {
	if intentID == "" {
		return models.Engagement{}, fmt.Errorf("%w: payment intent id required", ErrValidation)
	}
	e, err := s.store.GetEngagement(ctx, id)
	if err != nil {
		return models.Engagement{}, err
	}

	if e.Status == models.EngagementCompleted {
		if e.PaymentIntentID != nil && *e.PaymentIntentID == intentID {
			return e, nil
		}
		return models.Engagement{}, fmt.Errorf("%w: engagement already completed with a different intent", ErrInvalidState)
	}
	if e.Status != models.EngagementAwaitingPayment {
		return models.Engagement{}, fmt.Errorf("%w: engagement is not awaiting payment", ErrInvalidState)
	}
	if e.PaymentIntentID != nil && *e.PaymentIntentID != intentID {
		return models.Engagement{}, fmt.Errorf("%w: payment intent does not match this engagement", ErrValidation)
	}

	status, err := s.payments.RetrieveIntent(ctx, intentID)
	if err != nil {
		return models.Engagement{}, fmt.Errorf("retrieve payment intent: %w", err)
	}
	switch {
	case status == payment.IntentSucceeded:
		// fall through to completion
	case status.DefinitiveFailure():
		return models.Engagement{}, fmt.Errorf("intent %s reported %s: %w", intentID, status, payment.ErrPaymentFailed)
	default:
		return models.Engagement{}, fmt.Errorf("intent %s is %s: %w", intentID, status, ErrPaymentPending)
	}

	updated, err := s.store.CompleteEngagement(ctx, id, &intentID)
	if err != nil {
		return models.Engagement{}, err
	}
	s.recordEvent(ctx, events.TypePaymentConfirmed, updated, map[string]interface{}{
		"paymentIntentId": intentID,
	})
	return updated, nil
}

// ListEngagements returns the engagements an actor participates in, as owner
// or provider, optionally filtered by status.
func (s *Service) ListEngagements(ctx context.Context, actor models.ActorRef, status models.EngagementStatus) ([]models.Engagement, error) {
	if status != "" &&
		status != models.EngagementPending &&
		status != models.EngagementAwaitingPayment &&
		status != models.EngagementCompleted {
		return nil, fmt.Errorf("%w: unknown engagement status %q", ErrValidation, status)
	}
	return s.store.ListEngagementsForActor(ctx, actor.ID, status)
}

// GetEngagement returns one engagement if the actor participates in it.
func (s *Service) GetEngagement(ctx context.Context, id uuid.UUID, actor models.ActorRef) (models.Engagement, error) {
	e, err := s.store.GetEngagement(ctx, id)
	if err != nil {
		return models.Engagement{}, err
	}
	if e.Owner.ID != actor.ID && e.Provider != actor.ID {
		return models.Engagement{}, fmt.Errorf("%w: engagement belongs to other actors", ErrUnauthorized)
	}
	return e, nil
}
