package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a provider bids twice on the same item.
	ErrConflict = errors.New("duplicate application")

	// ErrAlreadyAccepted guards double-accept of a single application.
	ErrAlreadyAccepted = errors.New("application already accepted")

	// ErrItemClosed guards accepting a sibling application after the item
	// has been spoken for, and bidding on a closed item.
	ErrItemClosed = errors.New("work item closed")
)

// Store is the persistence contract for work items, applications,
// engagements, and notifications.
//
// AcceptApplication is the serialization point of the whole system: it must
// flip the accepted flag, close the work item, and create the engagement in
// one atomic step, so that at most one engagement ever exists per application
// and per work item even under concurrent accept calls.
type Store interface {
	CreateWorkItem(ctx context.Context, in WorkItemInput) (models.WorkItem, error)
	GetWorkItem(ctx context.Context, id uuid.UUID) (models.WorkItem, error)
	ListOpenWorkItems(ctx context.Context) ([]models.WorkItem, error)
	ListWorkItemsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.WorkItem, error)
	DeleteWorkItem(ctx context.Context, id uuid.UUID) error

	CreateApplication(ctx context.Context, in ApplicationInput) (models.Application, error)
	GetApplication(ctx context.Context, id uuid.UUID) (models.Application, error)
	ListPendingApplicationsForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Application, error)
	DeleteApplication(ctx context.Context, id uuid.UUID) error
	AcceptApplication(ctx context.Context, applicationID uuid.UUID, owner models.ActorRef) (models.Engagement, error)

	GetEngagement(ctx context.Context, id uuid.UUID) (models.Engagement, error)
	ListEngagementsForActor(ctx context.Context, actorID uuid.UUID, status models.EngagementStatus) ([]models.Engagement, error)
	CompleteEngagement(ctx context.Context, id uuid.UUID, intentID *string) (models.Engagement, error)
	MarkEngagementAwaitingPayment(ctx context.Context, id uuid.UUID, intentID string) (models.Engagement, error)
	SetEngagementRating(ctx context.Context, id uuid.UUID, rating int) (models.Engagement, error)
	ListProviderRatings(ctx context.Context, providerID uuid.UUID) ([]int, error)

	CreateNotification(ctx context.Context, in NotificationInput) (models.Notification, error)
	GetNotification(ctx context.Context, id uuid.UUID) (models.Notification, error)
	ListNotifications(ctx context.Context, recipient uuid.UUID) ([]models.Notification, error)
	DeleteNotification(ctx context.Context, id uuid.UUID) error

	Ping(ctx context.Context) error
}

type WorkItemInput struct {
	ID          uuid.UUID
	Kind        models.WorkItemKind
	Title       string
	Description string
	Category    string
	Location    string
	Owner       models.ActorRef
	PaymentMode models.PaymentMode
}

type ApplicationInput struct {
	ID                 uuid.UUID
	WorkItemID         uuid.UUID
	WorkItemKind       models.WorkItemKind
	Provider           uuid.UUID
	ProviderName       string
	ProviderContact    string
	ProviderExperience string
}

type NotificationInput struct {
	ID           uuid.UUID
	Recipient    uuid.UUID
	Message      string
	WorkItemID   *uuid.UUID
	EngagementID *uuid.UUID
}
