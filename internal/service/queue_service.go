package service

import (
	"context"
	"fmt"

	"github.com/lucasmnrd/requestline/internal/models"
	repo "github.com/lucasmnrd/requestline/internal/repository/postgres"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

// DuplicateCheck is the duplicate detector's verdict for one track URI.
type DuplicateCheck struct {
	Duplicate bool
	Location  DuplicateLocation
}

type QueueService interface {
	// Queue returns the event's accepted requests with vote aggregates,
	// ascending by queue position. This is the canonical now-playing list
	// read after every mutation.
	Queue(ctx context.Context, eID string) ([]models.RequestWithVotes, error)
	// NextPosition returns max accepted position + 1, treating an empty
	// queue as max 0.
	NextPosition(ctx context.Context, eID string) (int, error)
	// CheckDuplicate scans the event's pending and accepted requests for
	// the track URI. Never a duplicate when the URI is empty or the event
	// allows duplicates.
	CheckDuplicate(ctx context.Context, e *models.Event, trackURI string) (DuplicateCheck, error)
	// ApplyOrder rewrites queue positions as index+1 for the supplied
	// ordering of accepted request ids.
	ApplyOrder(ctx context.Context, eID string, orderedIDs []string) error
}

type queueService struct {
	requestRepo repo.RequestRepository
	l           logger.Logger
}

func NewQueueService(requestRepo repo.RequestRepository, l logger.Logger) QueueService {
	return &queueService{requestRepo: requestRepo, l: l}
}

func (s *queueService) Queue(ctx context.Context, eID string) ([]models.RequestWithVotes, error) {
	queue, err := s.requestRepo.QueueWithVotes(ctx, eID)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	if hasPositionCollision(queue) {
		// A crash or concurrent write mid-reorder can leave two rows on
		// the same position. Positions stay re-derivable: re-index in the
		// current sort order and persist.
		s.l.Warnf(ctx, "queueService.Queue: position collision in event %s, re-indexing", eID)
		for i := range queue {
			pos := i + 1
			if queue[i].QueuePosition == nil || *queue[i].QueuePosition != pos {
				if err := s.requestRepo.SetPosition(ctx, eID, queue[i].ID, pos); err != nil {
					return nil, fmt.Errorf("failed to repair queue positions: %w", err)
				}
				queue[i].QueuePosition = &pos
			}
		}
	}

	return queue, nil
}

func (s *queueService) NextPosition(ctx context.Context, eID string) (int, error) {
	maxPos, err := s.requestRepo.MaxQueuePosition(ctx, eID)
	if err != nil {
		return 0, fmt.Errorf("failed to get next queue position: %w", err)
	}
	return maxPos + 1, nil
}

func (s *queueService) CheckDuplicate(ctx context.Context, e *models.Event, trackURI string) (DuplicateCheck, error) {
	if trackURI == "" || e.AllowDuplicates {
		return DuplicateCheck{}, nil
	}

	match, err := s.requestRepo.FindActiveByTrackURI(ctx, e.ID, trackURI)
	if err != nil {
		return DuplicateCheck{}, fmt.Errorf("failed to check duplicate: %w", err)
	}
	if match == nil {
		return DuplicateCheck{}, nil
	}

	loc := DuplicateLocationPending
	if match.Status == models.RequestStatusAccepted {
		loc = DuplicateLocationQueue
	}

	return DuplicateCheck{Duplicate: true, Location: loc}, nil
}

func (s *queueService) ApplyOrder(ctx context.Context, eID string, orderedIDs []string) error {
	for i, reqID := range orderedIDs {
		if err := s.requestRepo.SetPosition(ctx, eID, reqID, i+1); err != nil {
			return fmt.Errorf("failed to reorder queue: %w", err)
		}
	}
	return nil
}

func hasPositionCollision(queue []models.RequestWithVotes) bool {
	seen := make(map[int]bool, len(queue))
	for i := range queue {
		if queue[i].QueuePosition == nil {
			return true
		}
		pos := *queue[i].QueuePosition
		if seen[pos] {
			return true
		}
		seen[pos] = true
	}
	return false
}
