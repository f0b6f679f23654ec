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

// EventSettingsPatch carries partial event policy updates. Nil fields are
// left untouched.
type EventSettingsPatch struct {
	VotesEnabled           *bool
	AutoAcceptEnabled      *bool
	AllowDuplicates        *bool
	RateLimitMax           *int
	RateLimitWindowMinutes *int
}

func (p EventSettingsPatch) IsEmpty() bool {
	return p.VotesEnabled == nil &&
		p.AutoAcceptEnabled == nil &&
		p.AllowDuplicates == nil &&
		p.RateLimitMax == nil &&
		p.RateLimitWindowMinutes == nil
}

type EventRepository interface {
	Create(ctx context.Context, e *models.Event) error
	Get(ctx context.Context, eID string) (*models.Event, error)
	End(ctx context.Context, eID string, at time.Time) error
	UpdateSettings(ctx context.Context, eID string, patch EventSettingsPatch) error
	ListActiveByDJ(ctx context.Context, djID string, limit int) ([]models.Event, error)
	ListEndedByDJ(ctx context.Context, djID string, limit int) ([]models.Event, error)
	Stats(ctx context.Context, eID string) (*models.EventStats, error)
	TopTracks(ctx context.Context, eID string, limit int) ([]models.TopTrack, error)
}

type pgEventRepository struct {
	db *gorm.DB
	l  logger.Logger
}

func NewEventRepository(db *gorm.DB, l logger.Logger) EventRepository {
	return &pgEventRepository{db: db, l: l}
}

func (r *pgEventRepository) Create(ctx context.Context, e *models.Event) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		r.l.Errorf(ctx, "pgEventRepository.Create: %v", err)
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (r *pgEventRepository) Get(ctx context.Context, eID string) (*models.Event, error) {
	var e models.Event
	err := r.db.WithContext(ctx).Where("id = ?", eID).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.l.Errorf(ctx, "pgEventRepository.Get: %v", err)
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &e, nil
}

func (r *pgEventRepository) End(ctx context.Context, eID string, at time.Time) error {
	// One-way transition: never overwrite an existing ended_at.
	err := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ? AND ended_at IS NULL", eID).
		Update("ended_at", at).Error
	if err != nil {
		r.l.Errorf(ctx, "pgEventRepository.End: %v", err)
		return fmt.Errorf("failed to end event: %w", err)
	}
	return nil
}

func (r *pgEventRepository) UpdateSettings(ctx context.Context, eID string, patch EventSettingsPatch) error {
	updates := map[string]any{}
	if patch.VotesEnabled != nil {
		updates["votes_enabled"] = *patch.VotesEnabled
	}
	if patch.AutoAcceptEnabled != nil {
		updates["auto_accept_enabled"] = *patch.AutoAcceptEnabled
	}
	if patch.AllowDuplicates != nil {
		updates["allow_duplicates"] = *patch.AllowDuplicates
	}
	if patch.RateLimitMax != nil {
		updates["rate_limit_max"] = *patch.RateLimitMax
	}
	if patch.RateLimitWindowMinutes != nil {
		updates["rate_limit_window_minutes"] = *patch.RateLimitWindowMinutes
	}
	if len(updates) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", eID).
		Updates(updates).Error
	if err != nil {
		r.l.Errorf(ctx, "pgEventRepository.UpdateSettings: %v", err)
		return fmt.Errorf("failed to update event settings: %w", err)
	}
	return nil
}

func (r *pgEventRepository) ListActiveByDJ(ctx context.Context, djID string, limit int) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).
		Where("dj_id = ? AND ended_at IS NULL", djID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		r.l.Errorf(ctx, "pgEventRepository.ListActiveByDJ: %v", err)
		return nil, fmt.Errorf("failed to list active events: %w", err)
	}
	return events, nil
}

func (r *pgEventRepository) ListEndedByDJ(ctx context.Context, djID string, limit int) ([]models.Event, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).
		Where("dj_id = ? AND ended_at IS NOT NULL", djID).
		Order("ended_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		r.l.Errorf(ctx, "pgEventRepository.ListEndedByDJ: %v", err)
		return nil, fmt.Errorf("failed to list ended events: %w", err)
	}
	return events, nil
}

func (r *pgEventRepository) Stats(ctx context.Context, eID string) (*models.EventStats, error) {
	var stats models.EventStats
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total_requests,
			COUNT(*) FILTER (WHERE status = 'pending')  AS pending_count,
			COUNT(*) FILTER (WHERE status = 'accepted') AS accepted_count,
			COUNT(*) FILTER (WHERE status = 'rejected') AS rejected_count,
			COUNT(*) FILTER (WHERE status = 'played')   AS played_count
		FROM requests
		WHERE event_id = ?`, eID).Scan(&stats).Error
	if err != nil {
		r.l.Errorf(ctx, "pgEventRepository.Stats: %v", err)
		return nil, fmt.Errorf("failed to get event stats: %w", err)
	}
	return &stats, nil
}

func (r *pgEventRepository) TopTracks(ctx context.Context, eID string, limit int) ([]models.TopTrack, error) {
	var tracks []models.TopTrack
	err := r.db.WithContext(ctx).Raw(`
		SELECT track_name, artist, COUNT(*) AS request_count
		FROM requests
		WHERE event_id = ?
		GROUP BY track_name, artist
		ORDER BY request_count DESC, track_name ASC
		LIMIT ?`, eID, limit).Scan(&tracks).Error
	if err != nil {
		r.l.Errorf(ctx, "pgEventRepository.TopTracks: %v", err)
		return nil, fmt.Errorf("failed to get top tracks: %w", err)
	}
	return tracks, nil
}
