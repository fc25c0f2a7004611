package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/events"
	"github.com/crafthub/engage/internal/identity"
	"github.com/crafthub/engage/internal/models"
	"github.com/crafthub/engage/internal/notify"
	"github.com/crafthub/engage/internal/store"
)

func itemNoun(kind models.WorkItemKind) string {
	if kind == models.WorkItemKindJob {
		return "job"
	}
	return "service request"
}

// SubmitApplication records a provider's bid on an open work item. The
// provider's display attributes are snapshotted from the directory at this
// moment; later profile edits do not reach the pending application.
func (s *Service) SubmitApplication(ctx context.Context, itemID, providerID uuid.UUID) (models.Application, error) {
	item, err := s.store.GetWorkItem(ctx, itemID)
	if err != nil {
		return models.Application{}, err
	}
	if item.Status != models.WorkItemOpen {
		return models.Application{}, fmt.Errorf("%w: applications for this item are closed", store.ErrItemClosed)
	}

	provider, err := s.directory.Resolve(ctx, providerID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return models.Application{}, fmt.Errorf("provider %s: %w", providerID, store.ErrNotFound)
		}
		return models.Application{}, err
	}
	if provider.Kind != models.ActorKindProvider {
		return models.Application{}, fmt.Errorf("provider %s: %w", providerID, store.ErrNotFound)
	}

	app, err := s.store.CreateApplication(ctx, store.ApplicationInput{
		WorkItemID:         item.ID,
		WorkItemKind:       item.Kind,
		Provider:           provider.ID,
		ProviderName:       provider.DisplayName,
		ProviderContact:    provider.Contact,
		ProviderExperience: provider.Experience,
	})
	if err != nil {
		return models.Application{}, err
	}

	s.notifier.Notify(ctx, item.Owner.ID,
		fmt.Sprintf("%s has applied for your %s %q.", provider.DisplayName, itemNoun(item.Kind), item.Title),
		notify.Context{WorkItemID: &item.ID})

	return app, nil
}

// ListIncomingApplications returns the pending bids across all of an owner's
// work items, oldest first.
func (s *Service) ListIncomingApplications(ctx context.Context, owner models.ActorRef) ([]models.Application, error) {
	return s.store.ListPendingApplicationsForOwner(ctx, owner.ID)
}

// AcceptApplication converts a bid into an engagement. The store performs
// the flag flip, work item closure, and engagement creation in one atomic
// step; this is first-come acceptance, and siblings on the same item are
// left pending.
func (s *Service) AcceptApplication(ctx context.Context, applicationID uuid.UUID, actor models.ActorRef) (models.Engagement, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return models.Engagement{}, err
	}
	item, err := s.store.GetWorkItem(ctx, app.WorkItemID)
	if err != nil {
		return models.Engagement{}, err
	}
	if item.Owner.ID != actor.ID {
		return models.Engagement{}, fmt.Errorf("%w: only the item owner may accept an application", ErrUnauthorized)
	}

	// item.Owner carries the kind tag recorded at posting time, so the
	// engagement stores an explicit owner-kind discriminator.
	engagement, err := s.store.AcceptApplication(ctx, applicationID, item.Owner)
	if err != nil {
		return models.Engagement{}, err
	}

	s.notifier.Notify(ctx, app.Provider,
		fmt.Sprintf("Your application for the %s %q has been accepted.", itemNoun(item.Kind), item.Title),
		notify.Context{WorkItemID: &item.ID, EngagementID: &engagement.ID})

	s.recordEvent(ctx, events.TypeEngagementCreated, engagement, map[string]interface{}{
		"applicationId": applicationID,
	})

	return engagement, nil
}

// RejectApplication deletes a pending bid and tells the provider.
func (s *Service) RejectApplication(ctx context.Context, applicationID uuid.UUID, actor models.ActorRef) error {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	item, err := s.store.GetWorkItem(ctx, app.WorkItemID)
	if err != nil {
		return err
	}
	if item.Owner.ID != actor.ID {
		return fmt.Errorf("%w: only the item owner may reject an application", ErrUnauthorized)
	}
	if err := s.store.DeleteApplication(ctx, applicationID); err != nil {
		return err
	}

	s.notifier.Notify(ctx, app.Provider,
		fmt.Sprintf("Your application for the %s %q has been rejected.", itemNoun(item.Kind), item.Title),
		notify.Context{WorkItemID: &item.ID})

	return nil
}

// WithdrawApplication removes a bid on request of either the bidding
// provider or the item owner.
func (s *Service) WithdrawApplication(ctx context.Context, applicationID uuid.UUID, actor models.ActorRef) error {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Provider != actor.ID {
		item, err := s.store.GetWorkItem(ctx, app.WorkItemID)
		if err != nil {
			return err
		}
		if item.Owner.ID != actor.ID {
			return fmt.Errorf("%w: only the provider or the item owner may withdraw an application", ErrUnauthorized)
		}
	}
	return s.store.DeleteApplication(ctx, applicationID)
}
