package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/models"
	"github.com/crafthub/engage/internal/store"
)

// Sink is the durable notification write the fan-out needs from storage.
type Sink interface {
	CreateNotification(ctx context.Context, in store.NotificationInput) (models.Notification, error)
}

// Context ties a notification to the work item or engagement it is about, so
// recipients can filter on read.
type Context struct {
	WorkItemID   *uuid.UUID
	EngagementID *uuid.UUID
}

// Notifier persists notifications for pull-based delivery. The durable write
// is the delivery: there is no push channel and no retry queue. A failed
// write is logged and dropped; it must never fail the lifecycle transition
// that triggered it.
type Notifier struct {
	sink    Sink
	timeout time.Duration
}

func New(sink Sink, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{sink: sink, timeout: timeout}
}

// Notify writes one notification, best effort.
func (n *Notifier) Notify(ctx context.Context, recipient uuid.UUID, message string, about Context) {
	writeCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	_, err := n.sink.CreateNotification(writeCtx, store.NotificationInput{
		Recipient:    recipient,
		Message:      message,
		WorkItemID:   about.WorkItemID,
		EngagementID: about.EngagementID,
	})
	if err != nil {
		log.Printf("[notify] persist for %s failed (dropped): %v", recipient, err)
	}
}

// NotifyAll fans a message out to many recipients, best effort per recipient.
func (n *Notifier) NotifyAll(ctx context.Context, recipients []uuid.UUID, message string, about Context) {
	for _, r := range recipients {
		n.Notify(ctx, r, message, about)
	}
}
