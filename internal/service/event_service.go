package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lucasmnrd/requestline/internal/models"
	repo "github.com/lucasmnrd/requestline/internal/repository/postgres"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type EventService interface {
	Create(ctx context.Context, name string, djID *string) (*models.Event, error)
	// Get returns the event together with its current queue.
	Get(ctx context.Context, eID string) (*models.Event, []models.RequestWithVotes, error)
	// End terminates the event. One-way: ended events never reopen.
	End(ctx context.Context, eID string, djID *string) error
	Stats(ctx context.Context, eID string) (*models.EventStats, []models.TopTrack, error)
	// Pending lists not-yet-decided requests, oldest first.
	Pending(ctx context.Context, eID string) ([]models.Request, error)
	UpdateRateLimitPolicy(ctx context.Context, eID string, djID *string, max, windowMinutes int) error
	ToggleDuplicates(ctx context.Context, eID string, djID *string) (bool, error)
	SetVotesEnabled(ctx context.Context, eID string, djID *string, enabled bool) error
	SetAutoAccept(ctx context.Context, eID string, djID *string, enabled bool) error
}

type eventService struct {
	eventRepo   repo.EventRepository
	requestRepo repo.RequestRepository
	qSvc        QueueService
	l           logger.Logger
}

func NewEventService(eventRepo repo.EventRepository, requestRepo repo.RequestRepository, qSvc QueueService, l logger.Logger) EventService {
	return &eventService{eventRepo: eventRepo, requestRepo: requestRepo, qSvc: qSvc, l: l}
}

func (s *eventService) Create(ctx context.Context, name string, djID *string) (*models.Event, error) {
	event := &models.Event{
		ID:                     uuid.New().String(),
		Name:                   name,
		DJID:                   djID,
		AllowDuplicates:        false,
		VotesEnabled:           true,
		AutoAcceptEnabled:      false,
		RateLimitMax:           3,
		RateLimitWindowMinutes: 15,
		CreatedAt:              time.Now(),
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, err
	}

	s.l.Infof(ctx, "event %s created: %s", event.ID, event.Name)

	return event, nil
}

func (s *eventService) Get(ctx context.Context, eID string) (*models.Event, []models.RequestWithVotes, error) {
	event, err := s.eventRepo.Get(ctx, eID)
	if err != nil {
		return nil, nil, err
	}
	if event == nil {
		return nil, nil, ErrEventNotFound
	}

	queue, err := s.qSvc.Queue(ctx, eID)
	if err != nil {
		return nil, nil, err
	}

	return event, queue, nil
}

func (s *eventService) End(ctx context.Context, eID string, djID *string) error {
	event, err := s.authorize(ctx, eID, djID)
	if err != nil {
		return err
	}
	if event.IsEnded() {
		return nil
	}

	if err := s.eventRepo.End(ctx, eID, time.Now()); err != nil {
		return err
	}

	s.l.Infof(ctx, "event %s ended", eID)

	return nil
}

func (s *eventService) Stats(ctx context.Context, eID string) (*models.EventStats, []models.TopTrack, error) {
	event, err := s.eventRepo.Get(ctx, eID)
	if err != nil {
		return nil, nil, err
	}
	if event == nil {
		return nil, nil, ErrEventNotFound
	}

	stats, err := s.eventRepo.Stats(ctx, eID)
	if err != nil {
		return nil, nil, err
	}

	top, err := s.eventRepo.TopTracks(ctx, eID, 10)
	if err != nil {
		return nil, nil, err
	}

	return stats, top, nil
}

func (s *eventService) Pending(ctx context.Context, eID string) ([]models.Request, error) {
	event, err := s.eventRepo.Get(ctx, eID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	return s.requestRepo.ListPending(ctx, eID)
}

func (s *eventService) UpdateRateLimitPolicy(ctx context.Context, eID string, djID *string, max, windowMinutes int) error {
	if max <= 0 || windowMinutes <= 0 {
		return fmt.Errorf("rate limit policy values must be positive")
	}

	if _, err := s.authorize(ctx, eID, djID); err != nil {
		return err
	}

	return s.eventRepo.UpdateSettings(ctx, eID, repo.EventSettingsPatch{
		RateLimitMax:           &max,
		RateLimitWindowMinutes: &windowMinutes,
	})
}

func (s *eventService) ToggleDuplicates(ctx context.Context, eID string, djID *string) (bool, error) {
	event, err := s.authorize(ctx, eID, djID)
	if err != nil {
		return false, err
	}

	flipped := !event.AllowDuplicates
	err = s.eventRepo.UpdateSettings(ctx, eID, repo.EventSettingsPatch{AllowDuplicates: &flipped})
	if err != nil {
		return false, err
	}

	return flipped, nil
}

func (s *eventService) SetVotesEnabled(ctx context.Context, eID string, djID *string, enabled bool) error {
	if _, err := s.authorize(ctx, eID, djID); err != nil {
		return err
	}
	return s.eventRepo.UpdateSettings(ctx, eID, repo.EventSettingsPatch{VotesEnabled: &enabled})
}

func (s *eventService) SetAutoAccept(ctx context.Context, eID string, djID *string, enabled bool) error {
	if _, err := s.authorize(ctx, eID, djID); err != nil {
		return err
	}
	return s.eventRepo.UpdateSettings(ctx, eID, repo.EventSettingsPatch{AutoAcceptEnabled: &enabled})
}

// authorize loads the event and enforces ownership. Events without an
// owner stay publicly manageable, the behavior legacy events rely on.
func (s *eventService) authorize(ctx context.Context, eID string, djID *string) (*models.Event, error) {
	event, err := s.eventRepo.Get(ctx, eID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	if event.DJID != nil {
		if djID == nil || *djID != *event.DJID {
			return nil, ErrNotEventOwner
		}
	}

	return event, nil
}
