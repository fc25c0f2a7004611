package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/events"
	"github.com/crafthub/engage/internal/models"
)

// RateEngagement stores the owner's rating on a completed engagement and
// recomputes the provider's reputation score. Re-rating overwrites the
// previous value.
//
// The score is the arithmetic mean over ALL of the provider's completed,
// rated engagements — a full recompute on every rating event, never an
// incremental or decaying average.
func (s *Service) RateEngagement(ctx context.Context, id uuid.UUID, actor models.ActorRef, rating int) (float64, error) {
	if rating < 1 || rating > 5 {
		return 0, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	e, err := s.store.GetEngagement(ctx, id)
	if err != nil {
		return 0, err
	}
	if e.Owner.ID != actor.ID {
		return 0, fmt.Errorf("%w: only the owner may rate an engagement", ErrUnauthorized)
	}
	if e.Status != models.EngagementCompleted {
		return 0, fmt.Errorf("%w: only completed engagements can be rated", ErrInvalidState)
	}

	rated, err := s.store.SetEngagementRating(ctx, id, rating)
	if err != nil {
		return 0, err
	}

	score, err := s.recomputeProviderScore(ctx, rated.Provider)
	if err != nil {
		return 0, err
	}

	s.recordEvent(ctx, events.TypeEngagementRated, rated, map[string]interface{}{
		"rating": rating,
		"score":  score,
	})
	return score, nil
}

func (s *Service) recomputeProviderScore(ctx context.Context, providerID uuid.UUID) (float64, error) {
	ratings, err := s.store.ListProviderRatings(ctx, providerID)
	if err != nil {
		return 0, fmt.Errorf("list provider ratings: %w", err)
	}
	if len(ratings) == 0 {
		return 0, nil
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	score := float64(sum) / float64(len(ratings))
	if err := s.directory.UpdateProviderScore(ctx, providerID, score); err != nil {
		return 0, fmt.Errorf("update provider score: %w", err)
	}
	return score, nil
}
