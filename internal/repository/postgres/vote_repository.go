package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lucasmnrd/requestline/internal/models"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type VoteRepository interface {
	Get(ctx context.Context, reqID, channelID string) (*models.Vote, error)
	Create(ctx context.Context, v *models.Vote) error
	UpdateType(ctx context.Context, reqID, channelID string, t models.VoteType) error
	Delete(ctx context.Context, reqID, channelID string) error
	Counts(ctx context.Context, reqID string) (models.VoteCounts, error)
}

type pgVoteRepository struct {
	db *gorm.DB
	l  logger.Logger
}

func NewVoteRepository(db *gorm.DB, l logger.Logger) VoteRepository {
	return &pgVoteRepository{db: db, l: l}
}

func (r *pgVoteRepository) Get(ctx context.Context, reqID, channelID string) (*models.Vote, error) {
	var v models.Vote
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND channel_id = ?", reqID, channelID).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.l.Errorf(ctx, "pgVoteRepository.Get: %v", err)
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	return &v, nil
}

func (r *pgVoteRepository) Create(ctx context.Context, v *models.Vote) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		r.l.Errorf(ctx, "pgVoteRepository.Create: %v", err)
		return fmt.Errorf("failed to create vote: %w", err)
	}
	return nil
}

func (r *pgVoteRepository) UpdateType(ctx context.Context, reqID, channelID string, t models.VoteType) error {
	err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Where("request_id = ? AND channel_id = ?", reqID, channelID).
		Update("vote_type", t).Error
	if err != nil {
		r.l.Errorf(ctx, "pgVoteRepository.UpdateType: %v", err)
		return fmt.Errorf("failed to update vote: %w", err)
	}
	return nil
}

func (r *pgVoteRepository) Delete(ctx context.Context, reqID, channelID string) error {
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND channel_id = ?", reqID, channelID).
		Delete(&models.Vote{}).Error
	if err != nil {
		r.l.Errorf(ctx, "pgVoteRepository.Delete: %v", err)
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return nil
}

func (r *pgVoteRepository) Counts(ctx context.Context, reqID string) (models.VoteCounts, error) {
	var counts models.VoteCounts
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) FILTER (WHERE vote_type = 'up')   AS upvotes,
			COUNT(*) FILTER (WHERE vote_type = 'down') AS downvotes
		FROM votes
		WHERE request_id = ?`, reqID).Scan(&counts).Error
	if err != nil {
		r.l.Errorf(ctx, "pgVoteRepository.Counts: %v", err)
		return models.VoteCounts{}, fmt.Errorf("failed to count votes: %w", err)
	}
	return counts, nil
}
