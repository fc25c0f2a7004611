package models

import (
	"time"

	"github.com/google/uuid"
)

// ActorKind discriminates the two actor populations. It is stored explicitly
// wherever an actor reference appears; callers never infer it by probing.
type ActorKind string

const (
	ActorKindRequester ActorKind = "requester"
	ActorKindProvider  ActorKind = "provider"
)

func (k ActorKind) Valid() bool {
	return k == ActorKindRequester || k == ActorKindProvider
}

// ActorRef is a tagged actor reference: id plus kind.
type ActorRef struct {
	Kind ActorKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// WorkItemKind selects the posting variant.
type WorkItemKind string

const (
	WorkItemKindJob            WorkItemKind = "job"
	WorkItemKindServiceRequest WorkItemKind = "service_request"
)

// PaymentMode is how the resulting engagement settles.
type PaymentMode string

const (
	PaymentModeCash   PaymentMode = "cash_on_delivery"
	PaymentModeOnline PaymentMode = "online"
)

type WorkItemStatus string

const (
	WorkItemOpen   WorkItemStatus = "open"
	WorkItemClosed WorkItemStatus = "closed"
)

// WorkItem is a postable unit of work. Jobs carry a description and category;
// service requests are title-only and always settle cash on delivery.
// Status moves open -> closed exactly once, when a bid is accepted.
type WorkItem struct {
	ID          uuid.UUID      `json:"id"`
	Kind        WorkItemKind   `json:"kind"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category,omitempty"`
	Location    string         `json:"location,omitempty"`
	Owner       ActorRef       `json:"owner"`
	PaymentMode PaymentMode    `json:"paymentMode"`
	Status      WorkItemStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Application is one provider's bid on one work item. The provider's display
// attributes are snapshotted at submission time; later profile edits do not
// flow back into pending applications.
type Application struct {
	ID                 uuid.UUID    `json:"id"`
	WorkItemID         uuid.UUID    `json:"workItemId"`
	WorkItemKind       WorkItemKind `json:"workItemKind"`
	Provider           uuid.UUID    `json:"provider"`
	ProviderName       string       `json:"providerName"`
	ProviderContact    string       `json:"providerContact"`
	ProviderExperience string       `json:"providerExperience"`
	Accepted           bool         `json:"accepted"`
	SubmittedAt        time.Time    `json:"submittedAt"`
}

type EngagementStatus string

const (
	EngagementPending         EngagementStatus = "pending"
	EngagementAwaitingPayment EngagementStatus = "awaiting_payment"
	EngagementCompleted       EngagementStatus = "completed"
)

// Engagement is the binding contract created when an application is accepted.
// Owner carries an explicit kind tag: a job's poster may itself be a
// provider-kind actor acting as a requester. Engagements are never deleted.
type Engagement struct {
	ID              uuid.UUID        `json:"id"`
	SourceKind      WorkItemKind     `json:"sourceKind"`
	WorkItemID      uuid.UUID        `json:"workItemId"`
	Provider        uuid.UUID        `json:"provider"`
	Owner           ActorRef         `json:"owner"`
	PaymentMode     PaymentMode      `json:"paymentMode"`
	Status          EngagementStatus `json:"status"`
	PaymentIntentID *string          `json:"paymentIntentId,omitempty"`
	Rating          *int             `json:"rating,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Notification is a durably stored, pull-delivered message for one recipient.
// The write is the delivery; there is no push channel.
type Notification struct {
	ID           uuid.UUID  `json:"id"`
	Recipient    uuid.UUID  `json:"recipient"`
	Message      string     `json:"message"`
	WorkItemID   *uuid.UUID `json:"workItemId,omitempty"`
	EngagementID *uuid.UUID `json:"engagementId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
