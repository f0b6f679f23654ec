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

type RequestRepository interface {
	Create(ctx context.Context, req *models.Request) error
	Get(ctx context.Context, reqID string) (*models.Request, error)
	GetWithVotes(ctx context.Context, reqID string) (*models.RequestWithVotes, error)

	// Accept moves a request to accepted with the given queue position,
	// but only if it is still pending. Returns whether a row changed.
	Accept(ctx context.Context, reqID string, position int) (bool, error)
	// Reject moves a pending request to rejected. Returns whether a row
	// changed.
	Reject(ctx context.Context, reqID string) (bool, error)
	// MarkPlayed moves an accepted request to played, records the play
	// time and clears its position. Returns whether a row changed.
	MarkPlayed(ctx context.Context, reqID string, at time.Time) (bool, error)

	// SetPosition rewrites one accepted request's queue position. Scoped
	// to the event so an id from another event can never be moved here.
	SetPosition(ctx context.Context, eID, reqID string, position int) error
	ListPending(ctx context.Context, eID string) ([]models.Request, error)
	MaxQueuePosition(ctx context.Context, eID string) (int, error)
	FindActiveByTrackURI(ctx context.Context, eID, trackURI string) (*models.Request, error)
	QueueWithVotes(ctx context.Context, eID string) ([]models.RequestWithVotes, error)
}

type pgRequestRepository struct {
	db *gorm.DB
	l  logger.Logger
}

func NewRequestRepository(db *gorm.DB, l logger.Logger) RequestRepository {
	return &pgRequestRepository{db: db, l: l}
}

func (r *pgRequestRepository) Create(ctx context.Context, req *models.Request) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		r.l.Errorf(ctx, "pgRequestRepository.Create: %v", err)
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (r *pgRequestRepository) Get(ctx context.Context, reqID string) (*models.Request, error) {
	var req models.Request
	err := r.db.WithContext(ctx).Where("id = ?", reqID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.l.Errorf(ctx, "pgRequestRepository.Get: %v", err)
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return &req, nil
}

func (r *pgRequestRepository) GetWithVotes(ctx context.Context, reqID string) (*models.RequestWithVotes, error) {
	var rows []models.RequestWithVotes
	err := r.db.WithContext(ctx).Raw(`
		SELECT r.*,
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'up')   AS upvotes,
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'down') AS downvotes,
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'up') -
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'down') AS net_votes
		FROM requests r
		LEFT JOIN votes v ON v.request_id = r.id
		WHERE r.id = ?
		GROUP BY r.id`, reqID).Scan(&rows).Error
	if err != nil {
		r.l.Errorf(ctx, "pgRequestRepository.GetWithVotes: %v", err)
		return nil, fmt.Errorf("failed to get request with votes: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *pgRequestRepository) Accept(ctx context.Context, reqID string, position int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status = ?", reqID, models.RequestStatusPending).
		Updates(map[string]any{
			"status":         models.RequestStatusAccepted,
			"queue_position": position,
		})
	if res.Error != nil {
		r.l.Errorf(ctx, "pgRequestRepository.Accept: %v", res.Error)
		return false, fmt.Errorf("failed to accept request: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *pgRequestRepository) Reject(ctx context.Context, reqID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status = ?", reqID, models.RequestStatusPending).
		Update("status", models.RequestStatusRejected)
	if res.Error != nil {
		r.l.Errorf(ctx, "pgRequestRepository.Reject: %v", res.Error)
		return false, fmt.Errorf("failed to reject request: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *pgRequestRepository) MarkPlayed(ctx context.Context, reqID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status = ?", reqID, models.RequestStatusAccepted).
		Updates(map[string]any{
			"status":         models.RequestStatusPlayed,
			"played_at":      at,
			"queue_position": nil,
		})
	if res.Error != nil {
		r.l.Errorf(ctx, "pgRequestRepository.MarkPlayed: %v", res.Error)
		return false, fmt.Errorf("failed to mark request played: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *pgRequestRepository) SetPosition(ctx context.Context, eID, reqID string, position int) error {
	err := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND event_id = ? AND status = ?", reqID, eID, models.RequestStatusAccepted).
		Update("queue_position", position).Error
	if err != nil {
		r.l.Errorf(ctx, "pgRequestRepository.SetPosition: %v", err)
		return fmt.Errorf("failed to set queue position: %w", err)
	}
	return nil
}

func (r *pgRequestRepository) ListPending(ctx context.Context, eID string) ([]models.Request, error) {
	var reqs []models.Request
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eID, models.RequestStatusPending).
		Order("created_at ASC").
		Find(&reqs).Error
	if err != nil {
		r.l.Errorf(ctx, "pgRequestRepository.ListPending: %v", err)
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	return reqs, nil
}

func (r *pgRequestRepository) MaxQueuePosition(ctx context.Context, eID string) (int, error) {
	var maxPos *int
	err := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Select("MAX(queue_position)").
		Where("event_id = ? AND status = ?", eID, models.RequestStatusAccepted).
		Scan(&maxPos).Error
	if err != nil {
		r.l.Errorf(ctx, "pgRequestRepository.MaxQueuePosition: %v", err)
		return 0, fmt.Errorf("failed to get max queue position: %w", err)
	}
	if maxPos == nil {
		return 0, nil
	}
	return *maxPos, nil
}

func (r *pgRequestRepository) FindActiveByTrackURI(ctx context.Context, eID, trackURI string) (*models.Request, error) {
	var req models.Request
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND uri = ? AND status IN ?",
			eID, trackURI, []models.RequestStatus{models.RequestStatusPending, models.RequestStatusAccepted}).
		Order("created_at ASC").
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.l.Errorf(ctx, "pgRequestRepository.FindActiveByTrackURI: %v", err)
		return nil, fmt.Errorf("failed to look up duplicate: %w", err)
	}
	return &req, nil
}

func (r *pgRequestRepository) QueueWithVotes(ctx context.Context, eID string) ([]models.RequestWithVotes, error) {
	var rows []models.RequestWithVotes
	err := r.db.WithContext(ctx).Raw(`
		SELECT r.*,
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'up')   AS upvotes,
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'down') AS downvotes,
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'up') -
			COUNT(v.request_id) FILTER (WHERE v.vote_type = 'down') AS net_votes
		FROM requests r
		LEFT JOIN votes v ON v.request_id = r.id
		WHERE r.event_id = ? AND r.status = 'accepted'
		GROUP BY r.id
		ORDER BY r.queue_position ASC, r.created_at ASC`, eID).Scan(&rows).Error
	if err != nil {
		r.l.Errorf(ctx, "pgRequestRepository.QueueWithVotes: %v", err)
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	return rows, nil
}
