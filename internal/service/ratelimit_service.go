package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lucasmnrd/requestline/internal/models"
	repo "github.com/lucasmnrd/requestline/internal/repository/postgres"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type RateLimitService interface {
	// Check reports whether a submitter may submit to the event right now.
	// It never increments; Increment is called separately, only after the
	// whole admission sequence succeeded.
	Check(ctx context.Context, channelID string, e *models.Event) (models.RateLimitStatus, error)
	Increment(ctx context.Context, channelID string) error
	// PurgeIdle drops counters whose window expired more than maxAge ago.
	PurgeIdle(ctx context.Context, maxAge time.Duration) (int64, error)
}

type rateLimitService struct {
	repo repo.RateLimitRepository
	l    logger.Logger
	now  func() time.Time
}

func NewRateLimitService(repo repo.RateLimitRepository, l logger.Logger) RateLimitService {
	return &rateLimitService{
		repo: repo,
		l:    l,
		now:  time.Now,
	}
}

func (s *rateLimitService) Check(ctx context.Context, channelID string, e *models.Event) (models.RateLimitStatus, error) {
	max := e.RateLimitMax
	window := e.Window()
	now := s.now()

	counter, err := s.repo.Get(ctx, channelID)
	if err != nil {
		return models.RateLimitStatus{}, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if counter == nil {
		counter = &models.RateLimitCounter{
			ChannelID:    channelID,
			RequestCount: 0,
			ResetAt:      now.Add(window),
		}
		if err := s.repo.Create(ctx, counter); err != nil {
			return models.RateLimitStatus{}, fmt.Errorf("failed to create rate limit counter: %w", err)
		}

		return models.RateLimitStatus{
			Allowed:   true,
			Count:     0,
			Max:       max,
			Remaining: max,
		}, nil
	}

	// Lazy window reset: no background sweep advances windows, the next
	// check after expiry does.
	if !now.Before(counter.ResetAt) {
		if err := s.repo.ResetWindow(ctx, channelID, now.Add(window)); err != nil {
			return models.RateLimitStatus{}, fmt.Errorf("failed to reset rate limit window: %w", err)
		}

		return models.RateLimitStatus{
			Allowed:   true,
			Count:     0,
			Max:       max,
			Remaining: max,
		}, nil
	}

	if counter.RequestCount >= max {
		retry := int((counter.ResetAt.Sub(now) + time.Minute - 1) / time.Minute)
		return models.RateLimitStatus{
			Allowed:           false,
			Count:             counter.RequestCount,
			Max:               max,
			RetryAfterMinutes: retry,
		}, nil
	}

	return models.RateLimitStatus{
		Allowed:   true,
		Count:     counter.RequestCount,
		Max:       max,
		Remaining: max - counter.RequestCount,
	}, nil
}

func (s *rateLimitService) Increment(ctx context.Context, channelID string) error {
	if err := s.repo.Increment(ctx, channelID); err != nil {
		return fmt.Errorf("failed to increment rate limit: %w", err)
	}
	return nil
}

func (s *rateLimitService) PurgeIdle(ctx context.Context, maxAge time.Duration) (int64, error) {
	purged, err := s.repo.PurgeIdle(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to purge rate limit counters: %w", err)
	}
	if purged > 0 {
		s.l.Debugf(ctx, "purged %d idle rate limit counters", purged)
	}
	return purged, nil
}
