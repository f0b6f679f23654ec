package service

import (
	"context"
	"fmt"

	"github.com/lucasmnrd/requestline/internal/broadcast"
	"github.com/lucasmnrd/requestline/internal/models"
	repo "github.com/lucasmnrd/requestline/internal/repository/postgres"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type VoteService interface {
	// Vote applies one voter's toggle on an accepted request: same type
	// twice retracts, the opposite type flips in place, otherwise a new
	// vote is recorded. Fresh aggregates are returned and broadcast.
	Vote(ctx context.Context, reqID, channelID string, t models.VoteType) (models.VoteCounts, error)
}

type voteService struct {
	voteRepo    repo.VoteRepository
	requestRepo repo.RequestRepository
	eventRepo   repo.EventRepository
	gateway     broadcast.Gateway
	locks       *eventLocks
	l           logger.Logger
}

func NewVoteService(
	voteRepo repo.VoteRepository,
	requestRepo repo.RequestRepository,
	eventRepo repo.EventRepository,
	gateway broadcast.Gateway,
	locks *eventLocks,
	l logger.Logger,
) VoteService {
	return &voteService{
		voteRepo:    voteRepo,
		requestRepo: requestRepo,
		eventRepo:   eventRepo,
		gateway:     gateway,
		locks:       locks,
		l:           l,
	}
}

type voteUpdatedPayload struct {
	RequestID string `json:"request_id"`
	Upvotes   int64  `json:"upvotes"`
	Downvotes int64  `json:"downvotes"`
}

func (s *voteService) Vote(ctx context.Context, reqID, channelID string, t models.VoteType) (models.VoteCounts, error) {
	if !t.Valid() {
		return models.VoteCounts{}, ErrInvalidVoteType
	}

	req, err := s.requestRepo.Get(ctx, reqID)
	if err != nil {
		return models.VoteCounts{}, err
	}
	if req == nil {
		return models.VoteCounts{}, ErrRequestNotFound
	}

	event, err := s.eventRepo.Get(ctx, req.EventID)
	if err != nil {
		return models.VoteCounts{}, err
	}
	if event == nil {
		return models.VoteCounts{}, ErrEventNotFound
	}
	if !event.VotesEnabled {
		return models.VoteCounts{}, ErrVotingDisabled
	}

	unlock := s.locks.Lock(event.ID)
	defer unlock()

	// Re-read under the lock: the request may have been played or
	// rejected since the pre-check.
	req, err = s.requestRepo.Get(ctx, reqID)
	if err != nil {
		return models.VoteCounts{}, err
	}
	if req == nil || !req.IsAccepted() {
		return models.VoteCounts{}, ErrInvalidTransition
	}

	existing, err := s.voteRepo.Get(ctx, reqID, channelID)
	if err != nil {
		return models.VoteCounts{}, err
	}

	switch {
	case existing == nil:
		err = s.voteRepo.Create(ctx, &models.Vote{
			RequestID: reqID,
			ChannelID: channelID,
			VoteType:  t,
		})
	case existing.VoteType == t:
		err = s.voteRepo.Delete(ctx, reqID, channelID)
	default:
		err = s.voteRepo.UpdateType(ctx, reqID, channelID, t)
	}
	if err != nil {
		return models.VoteCounts{}, fmt.Errorf("failed to apply vote: %w", err)
	}

	counts, err := s.voteRepo.Counts(ctx, reqID)
	if err != nil {
		return models.VoteCounts{}, err
	}

	if err := s.gateway.Broadcast(ctx, event.ID, broadcast.NameVoteUpdated, voteUpdatedPayload{
		RequestID: reqID,
		Upvotes:   counts.Upvotes,
		Downvotes: counts.Downvotes,
	}); err != nil {
		s.l.Errorf(ctx, "voteService.Vote: %v", err)
	}

	return counts, nil
}
