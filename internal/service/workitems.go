package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/models"
	"github.com/crafthub/engage/internal/notify"
	"github.com/crafthub/engage/internal/store"
)

// PostWorkItemInput is the caller-supplied payload for a new posting.
type PostWorkItemInput struct {
	Kind        models.WorkItemKind
	Title       string
	Description string
	Category    string
	Location    string
	PaymentMode models.PaymentMode
}

// PostWorkItem creates an open work item owned by the posting actor and fans
// a best-effort notification out to every provider in the directory.
func (s *Service) PostWorkItem(ctx context.Context, owner models.ActorRef, in PostWorkItemInput) (models.WorkItem, error) {
	if !owner.Kind.Valid() || owner.ID == uuid.Nil {
		return models.WorkItem{}, fmt.Errorf("%w: owner reference required", ErrValidation)
	}
	if in.Title == "" {
		return models.WorkItem{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	switch in.Kind {
	case models.WorkItemKindJob:
		if in.Description == "" {
			return models.WorkItem{}, fmt.Errorf("%w: description is required for a job", ErrValidation)
		}
		if in.Category == "" {
			return models.WorkItem{}, fmt.Errorf("%w: category is required for a job", ErrValidation)
		}
		if in.PaymentMode != models.PaymentModeCash && in.PaymentMode != models.PaymentModeOnline {
			return models.WorkItem{}, fmt.Errorf("%w: payment mode is required for a job", ErrValidation)
		}
	case models.WorkItemKindServiceRequest:
		// Service requests always settle cash on delivery.
		in.PaymentMode = models.PaymentModeCash
	default:
		return models.WorkItem{}, fmt.Errorf("%w: unknown work item kind %q", ErrValidation, in.Kind)
	}

	item, err := s.store.CreateWorkItem(ctx, store.WorkItemInput{
		Kind:        in.Kind,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
		Owner:       owner,
		PaymentMode: in.PaymentMode,
	})
	if err != nil {
		return models.WorkItem{}, err
	}

	s.announceWorkItem(ctx, item)
	return item, nil
}

// announceWorkItem tells every provider about a fresh posting. Directory or
// notification failures are logged inside the notifier and never propagate.
func (s *Service) announceWorkItem(ctx context.Context, item models.WorkItem) {
	providers, err := s.directory.ListProviderIDs(ctx)
	if err != nil {
		return
	}
	var message string
	if item.Kind == models.WorkItemKindJob {
		message = fmt.Sprintf("A new job %q has been posted.", item.Title)
	} else {
		message = fmt.Sprintf("New service request posted: %q.", item.Title)
	}
	s.notifier.NotifyAll(ctx, providers, message, notify.Context{WorkItemID: &item.ID})
}

// ListOpenWorkItems returns items still accepting bids: open status and no
// accepted application, evaluated per read by the store.
func (s *Service) ListOpenWorkItems(ctx context.Context) ([]models.WorkItem, error) {
	return s.store.ListOpenWorkItems(ctx)
}

// ListWorkItemsByOwner returns everything an actor has posted, open or not.
func (s *Service) ListWorkItemsByOwner(ctx context.Context, owner models.ActorRef) ([]models.WorkItem, error) {
	return s.store.ListWorkItemsByOwner(ctx, owner.ID)
}

// DeleteWorkItem removes an item the requester owns. The store cascades the
// delete to the item's applications so none are left dangling.
func (s *Service) DeleteWorkItem(ctx context.Context, id uuid.UUID, requester models.ActorRef) error {
	item, err := s.store.GetWorkItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Owner.ID != requester.ID {
		return fmt.Errorf("%w: only the owner may delete a work item", ErrUnauthorized)
	}
	return s.store.DeleteWorkItem(ctx, id)
}
