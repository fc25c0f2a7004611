package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/models"
)

// ListNotifications returns an actor's stored notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, actor models.ActorRef) ([]models.Notification, error) {
	return s.store.ListNotifications(ctx, actor.ID)
}

// DeleteNotification removes a notification its recipient has read.
func (s *Service) DeleteNotification(ctx context.Context, id uuid.UUID, actor models.ActorRef) error {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.Recipient != actor.ID {
		return fmt.Errorf("%w: notification belongs to another recipient", ErrUnauthorized)
	}
	return s.store.DeleteNotification(ctx, id)
}
