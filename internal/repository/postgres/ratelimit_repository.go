package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/lucasmnrd/requestline/internal/models"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type RateLimitRepository interface {
	Get(ctx context.Context, channelID string) (*models.RateLimitCounter, error)
	Create(ctx context.Context, c *models.RateLimitCounter) error
	// ResetWindow zeroes the count and advances reset_at to the start of a
	// fresh window.
	ResetWindow(ctx context.Context, channelID string, resetAt time.Time) error
	// Increment bumps the counter by one as a single atomic update.
	Increment(ctx context.Context, channelID string) error
	// PurgeIdle deletes counters whose window expired before the cutoff.
	PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

type pgRateLimitRepository struct {
	db *gorm.DB
	l  logger.Logger
}

func NewRateLimitRepository(db *gorm.DB, l logger.Logger) RateLimitRepository {
	return &pgRateLimitRepository{db: db, l: l}
}

func (r *pgRateLimitRepository) Get(ctx context.Context, channelID string) (*models.RateLimitCounter, error) {
	var c models.RateLimitCounter
	err := r.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.l.Errorf(ctx, "pgRateLimitRepository.Get: %v", err)
		return nil, fmt.Errorf("failed to get rate limit counter: %w", err)
	}
	return &c, nil
}

func (r *pgRateLimitRepository) Create(ctx context.Context, c *models.RateLimitCounter) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		r.l.Errorf(ctx, "pgRateLimitRepository.Create: %v", err)
		return fmt.Errorf("failed to create rate limit counter: %w", err)
	}
	return nil
}

func (r *pgRateLimitRepository) ResetWindow(ctx context.Context, channelID string, resetAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.RateLimitCounter{}).
		Where("channel_id = ?", channelID).
		Updates(map[string]any{
			"request_count": 0,
			"reset_at":      resetAt,
		}).Error
	if err != nil {
		r.l.Errorf(ctx, "pgRateLimitRepository.ResetWindow: %v", err)
		return fmt.Errorf("failed to reset rate limit window: %w", err)
	}
	return nil
}

func (r *pgRateLimitRepository) Increment(ctx context.Context, channelID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.RateLimitCounter{}).
		Where("channel_id = ?", channelID).
		Update("request_count", gorm.Expr("request_count + 1")).Error
	if err != nil {
		r.l.Errorf(ctx, "pgRateLimitRepository.Increment: %v", err)
		return fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return nil
}

func (r *pgRateLimitRepository) PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("reset_at < ?", cutoff).
		Delete(&models.RateLimitCounter{})
	if res.Error != nil {
		r.l.Errorf(ctx, "pgRateLimitRepository.PurgeIdle: %v", res.Error)
		return 0, fmt.Errorf("failed to purge rate limit counters: %w", res.Error)
	}
	return res.RowsAffected, nil
}
