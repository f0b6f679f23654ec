package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lucasmnrd/requestline/internal/models"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type DJRepository interface {
	Create(ctx context.Context, dj *models.DJ) error
	Get(ctx context.Context, djID string) (*models.DJ, error)
	GetByEmail(ctx context.Context, email string) (*models.DJ, error)
	Dashboard(ctx context.Context, djID string) (*models.DJDashboard, error)
	// MostVotedPlayed ranks the DJ's played tracks across all of their
	// events by net votes, then upvotes.
	MostVotedPlayed(ctx context.Context, djID string, limit int) ([]models.RequestWithVotes, error)
}

type pgDJRepository struct {
	db *gorm.DB
	l  logger.Logger
}

func NewDJRepository(db *gorm.DB, l logger.Logger) DJRepository {
	return &pgDJRepository{db: db, l: l}
}

func (r *pgDJRepository) Create(ctx context.Context, dj *models.DJ) error {
	if err := r.db.WithContext(ctx).Create(dj).Error; err != nil {
		r.l.Errorf(ctx, "pgDJRepository.Create: %v", err)
		return fmt.Errorf("failed to create dj: %w", err)
	}
	return nil
}

func (r *pgDJRepository) Get(ctx context.Context, djID string) (*models.DJ, error) {
	var dj models.DJ
	err := r.db.WithContext(ctx).Where("id = ?", djID).First(&dj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.l.Errorf(ctx, "pgDJRepository.Get: %v", err)
		return nil, fmt.Errorf("failed to get dj: %w", err)
	}
	return &dj, nil
}

func (r *pgDJRepository) GetByEmail(ctx context.Context, email string) (*models.DJ, error) {
	var dj models.DJ
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&dj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.l.Errorf(ctx, "pgDJRepository.GetByEmail: %v", err)
		return nil, fmt.Errorf("failed to get dj by email: %w", err)
	}
	return &dj, nil
}

func (r *pgDJRepository) Dashboard(ctx context.Context, djID string) (*models.DJDashboard, error) {
	var dash models.DJDashboard
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(DISTINCT e.id) AS total_events,
			COUNT(r.id) FILTER (WHERE r.status = 'played') AS total_songs_played,
			CASE WHEN COUNT(r.id) > 0
				THEN COUNT(r.id) FILTER (WHERE r.status IN ('accepted', 'played'))::float / COUNT(r.id)
				ELSE 0
			END AS accept_rate
		FROM events e
		LEFT JOIN requests r ON r.event_id = e.id
		WHERE e.dj_id = ?`, djID).Scan(&dash).Error
	if err != nil {
		r.l.Errorf(ctx, "pgDJRepository.Dashboard: %v", err)
		return nil, fmt.Errorf("failed to get dj dashboard: %w", err)
	}
	return &dash, nil
}

func (r *pgDJRepository) MostVotedPlayed(ctx context.Context, djID string, limit int) ([]models.RequestWithVotes, error) {
	var rows []models.RequestWithVotes
	err := r.db.WithContext(ctx).Raw(`
		SELECT r.*,
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'up')   AS upvotes,
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'down') AS downvotes,
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'up') -
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'down') AS net_votes
		FROM requests r
		JOIN events e ON e.id = r.event_id
		LEFT JOIN votes v ON v.request_id = r.id
		WHERE e.dj_id = ? AND r.status = 'played'
		GROUP BY r.id
		ORDER BY net_votes DESC, upvotes DESC
		LIMIT ?`, djID, limit).Scan(&rows).Error
	if err != nil {
		r.l.Errorf(ctx, "pgDJRepository.MostVotedPlayed: %v", err)
		return nil, fmt.Errorf("failed to get most voted played tracks: %w", err)
	}
	return rows, nil
}
