package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lucasmnrd/requestline/internal/analytics"
	"github.com/lucasmnrd/requestline/internal/broadcast"
	"github.com/lucasmnrd/requestline/internal/models"
	repo "github.com/lucasmnrd/requestline/internal/repository/postgres"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

const anonymousUserName = "Anonyme"

// AdmissionService is the coordination engine: it decides whether a
// submission enters the system, applies DJ decisions, and keeps queue state
// consistent for every connected viewer. All mutating operations for one
// event run under that event's lock, so rate-limit, duplicate and position
// checks never interleave with a concurrent writer.
type AdmissionService interface {
	Submit(ctx context.Context, in SubmitInput) (*SubmitOutput, error)
	// AddByDJ inserts a track straight into the queue from the booth,
	// bypassing rate limiting and duplicate suppression.
	AddByDJ(ctx context.Context, eID string, track models.Track, userName string) (string, int, error)
	Accept(ctx context.Context, reqID string) error
	Reject(ctx context.Context, reqID string) error
	MarkPlayed(ctx context.Context, reqID string) error
	Reorder(ctx context.Context, eID string, orderedIDs []string) error
	UpdateSettings(ctx context.Context, eID string, patch SettingsPatch) error
	// RateLimitStatus reports a channel's current standing, pushed on join
	// and after each submission.
	RateLimitStatus(ctx context.Context, channelID, eID string) (models.RateLimitStatus, error)
}

type admissionService struct {
	eventRepo   repo.EventRepository
	requestRepo repo.RequestRepository
	rlSvc       RateLimitService
	qSvc        QueueService
	gateway     broadcast.Gateway
	prod        analytics.Producer
	locks       *eventLocks
	l           logger.Logger
	now         func() time.Time
	newID       func() string
}

func NewAdmissionService(
	eventRepo repo.EventRepository,
	requestRepo repo.RequestRepository,
	rlSvc RateLimitService,
	qSvc QueueService,
	gateway broadcast.Gateway,
	prod analytics.Producer,
	locks *eventLocks,
	l logger.Logger,
) AdmissionService {
	return &admissionService{
		eventRepo:   eventRepo,
		requestRepo: requestRepo,
		rlSvc:       rlSvc,
		qSvc:        qSvc,
		gateway:     gateway,
		prod:        prod,
		locks:       locks,
		l:           l,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

func (s *admissionService) Submit(ctx context.Context, in SubmitInput) (*SubmitOutput, error) {
	event, err := s.eventRepo.Get(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	if event.IsEnded() {
		return nil, ErrEventEnded
	}

	unlock := s.locks.Lock(event.ID)
	defer unlock()

	rlStatus, err := s.rlSvc.Check(ctx, in.ChannelID, event)
	if err != nil {
		return nil, err
	}
	if !rlStatus.Allowed {
		return nil, &RateLimitedError{RetryAfterMinutes: rlStatus.RetryAfterMinutes}
	}

	dup, err := s.qSvc.CheckDuplicate(ctx, event, in.Track.URI)
	if err != nil {
		return nil, err
	}
	if dup.Duplicate {
		return nil, &DuplicateError{Location: dup.Location}
	}

	status := models.RequestStatusPending
	var position *int
	if event.AutoAcceptEnabled {
		status = models.RequestStatusAccepted
		pos, err := s.qSvc.NextPosition(ctx, event.ID)
		if err != nil {
			return nil, err
		}
		position = &pos
	}

	userName := in.UserName
	if userName == "" {
		userName = anonymousUserName
	}

	req := &models.Request{
		ID:            s.newID(),
		EventID:       event.ID,
		Track:         in.Track,
		UserName:      userName,
		ChannelID:     in.ChannelID,
		Status:        status,
		QueuePosition: position,
		CreatedAt:     s.now(),
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, err
	}

	// Only the admitted path counts against the limiter.
	if err := s.rlSvc.Increment(ctx, in.ChannelID); err != nil {
		return nil, err
	}

	freshStatus, err := s.rlSvc.Check(ctx, in.ChannelID, event)
	if err != nil {
		return nil, err
	}

	s.notifySubmitted(ctx, event.ID, req)
	s.publishSubmitted(ctx, req)

	s.l.Infof(ctx, "request %s admitted for event %s with status %s", req.ID, event.ID, status)

	return &SubmitOutput{
		RequestID: req.ID,
		Status:    status,
		Position:  position,
		RateLimit: freshStatus,
	}, nil
}

func (s *admissionService) notifySubmitted(ctx context.Context, eID string, req *models.Request) {
	if req.Status == models.RequestStatusAccepted {
		s.notify(ctx, func() error {
			return s.gateway.Unicast(ctx, req.ChannelID, broadcast.NameYourRequestAccepted, requestPositionPayload{
				RequestID: req.ID,
				Position:  *req.QueuePosition,
			})
		})
		s.broadcastQueue(ctx, eID)
		s.notify(ctx, func() error {
			return s.gateway.Broadcast(ctx, eID, broadcast.NameRequestAccepted, requestRefPayload{RequestID: req.ID})
		})
		return
	}

	full, err := s.requestRepo.GetWithVotes(ctx, req.ID)
	if err != nil || full == nil {
		s.l.Errorf(ctx, "admissionService.notifySubmitted: %v", err)
		return
	}
	s.notify(ctx, func() error {
		return s.gateway.Broadcast(ctx, eID, broadcast.NameNewRequest, full)
	})
}

const (
	djUserName  = "DJ"
	djChannelID = "dj-interface"
)

func (s *admissionService) AddByDJ(ctx context.Context, eID string, track models.Track, userName string) (string, int, error) {
	event, err := s.eventRepo.Get(ctx, eID)
	if err != nil {
		return "", 0, err
	}
	if event == nil {
		return "", 0, ErrEventNotFound
	}
	if event.IsEnded() {
		return "", 0, ErrEventEnded
	}

	unlock := s.locks.Lock(eID)
	defer unlock()

	pos, err := s.qSvc.NextPosition(ctx, eID)
	if err != nil {
		return "", 0, err
	}

	if userName == "" {
		userName = djUserName
	}

	req := &models.Request{
		ID:            s.newID(),
		EventID:       eID,
		Track:         track,
		UserName:      userName,
		ChannelID:     djChannelID,
		Status:        models.RequestStatusAccepted,
		QueuePosition: &pos,
		CreatedAt:     s.now(),
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return "", 0, err
	}

	s.broadcastQueue(ctx, eID)
	s.publishSubmitted(ctx, req)

	return req.ID, pos, nil
}

func (s *admissionService) Accept(ctx context.Context, reqID string) error {
	req, err := s.requestRepo.Get(ctx, reqID)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrRequestNotFound
	}

	unlock := s.locks.Lock(req.EventID)
	defer unlock()

	pos, err := s.qSvc.NextPosition(ctx, req.EventID)
	if err != nil {
		return err
	}

	changed, err := s.requestRepo.Accept(ctx, reqID, pos)
	if err != nil {
		return err
	}
	if !changed {
		return ErrInvalidTransition
	}

	s.notify(ctx, func() error {
		return s.gateway.Broadcast(ctx, req.EventID, broadcast.NameRequestAccepted, requestRefPayload{RequestID: reqID})
	})
	s.broadcastQueue(ctx, req.EventID)
	s.notify(ctx, func() error {
		return s.gateway.Unicast(ctx, req.ChannelID, broadcast.NameYourRequestAccepted, requestPositionPayload{
			RequestID: reqID,
			Position:  pos,
		})
	})

	s.publishDecided(ctx, req.EventID, reqID, models.RequestStatusAccepted, pos)

	return nil
}

func (s *admissionService) Reject(ctx context.Context, reqID string) error {
	req, err := s.requestRepo.Get(ctx, reqID)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrRequestNotFound
	}

	unlock := s.locks.Lock(req.EventID)
	defer unlock()

	changed, err := s.requestRepo.Reject(ctx, reqID)
	if err != nil {
		return err
	}
	if !changed {
		return ErrInvalidTransition
	}

	s.notify(ctx, func() error {
		return s.gateway.Broadcast(ctx, req.EventID, broadcast.NameRequestRejected, requestRefPayload{RequestID: reqID})
	})
	s.notify(ctx, func() error {
		return s.gateway.Unicast(ctx, req.ChannelID, broadcast.NameYourRequestRejected, requestRefPayload{RequestID: reqID})
	})

	s.publishDecided(ctx, req.EventID, reqID, models.RequestStatusRejected, 0)

	return nil
}

func (s *admissionService) MarkPlayed(ctx context.Context, reqID string) error {
	req, err := s.requestRepo.Get(ctx, reqID)
	if err != nil {
		return err
	}
	if req == nil {
		return ErrRequestNotFound
	}

	unlock := s.locks.Lock(req.EventID)
	defer unlock()

	playedAt := s.now()
	changed, err := s.requestRepo.MarkPlayed(ctx, reqID, playedAt)
	if err != nil {
		return err
	}
	if !changed {
		return ErrInvalidTransition
	}

	// Remaining positions keep their gaps: queue reads sort by position,
	// not density.
	s.broadcastQueue(ctx, req.EventID)

	s.notify(ctx, func() error {
		return s.prod.PublishRequestPlayed(ctx, analytics.RequestPlayedEvent{
			RequestID: reqID,
			EventID:   req.EventID,
			TrackName: req.Track.Name,
			Artist:    req.Track.Artist,
			PlayedAt:  playedAt,
		})
	})

	return nil
}

func (s *admissionService) Reorder(ctx context.Context, eID string, orderedIDs []string) error {
	event, err := s.eventRepo.Get(ctx, eID)
	if err != nil {
		return err
	}
	if event == nil {
		return ErrEventNotFound
	}

	unlock := s.locks.Lock(eID)
	defer unlock()

	if err := s.qSvc.ApplyOrder(ctx, eID, orderedIDs); err != nil {
		return err
	}

	s.broadcastQueue(ctx, eID)

	return nil
}

func (s *admissionService) UpdateSettings(ctx context.Context, eID string, patch SettingsPatch) error {
	event, err := s.eventRepo.Get(ctx, eID)
	if err != nil {
		return err
	}
	if event == nil {
		return ErrEventNotFound
	}

	if patch.VotesEnabled == nil && patch.AutoAcceptEnabled == nil {
		return nil
	}

	unlock := s.locks.Lock(eID)
	defer unlock()

	err = s.eventRepo.UpdateSettings(ctx, eID, repo.EventSettingsPatch{
		VotesEnabled:      patch.VotesEnabled,
		AutoAcceptEnabled: patch.AutoAcceptEnabled,
	})
	if err != nil {
		return err
	}

	s.notify(ctx, func() error {
		return s.gateway.Broadcast(ctx, eID, broadcast.NameEventSettingsUpdated, patch)
	})

	return nil
}

func (s *admissionService) RateLimitStatus(ctx context.Context, channelID, eID string) (models.RateLimitStatus, error) {
	event, err := s.eventRepo.Get(ctx, eID)
	if err != nil {
		return models.RateLimitStatus{}, err
	}
	if event == nil {
		return models.RateLimitStatus{}, ErrEventNotFound
	}

	return s.rlSvc.Check(ctx, channelID, event)
}

func (s *admissionService) broadcastQueue(ctx context.Context, eID string) {
	queue, err := s.qSvc.Queue(ctx, eID)
	if err != nil {
		s.l.Errorf(ctx, "admissionService.broadcastQueue: %v", err)
		return
	}
	s.notify(ctx, func() error {
		return s.gateway.Broadcast(ctx, eID, broadcast.NameQueueUpdated, queueUpdatedPayload{Queue: queue})
	})
}

// notify runs a broadcast side effect. Delivery is best-effort relative to
// the engine action, so failures are logged, never returned.
func (s *admissionService) notify(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		s.l.Errorf(ctx, "admissionService.notify: %v", err)
	}
}

func (s *admissionService) publishSubmitted(ctx context.Context, req *models.Request) {
	s.notify(ctx, func() error {
		return s.prod.PublishRequestSubmitted(ctx, analytics.RequestSubmittedEvent{
			RequestID: req.ID,
			EventID:   req.EventID,
			TrackName: req.Track.Name,
			Artist:    req.Track.Artist,
			TrackURI:  req.Track.URI,
			Status:    string(req.Status),
		})
	})
}

func (s *admissionService) publishDecided(ctx context.Context, eID, reqID string, status models.RequestStatus, pos int) {
	s.notify(ctx, func() error {
		return s.prod.PublishRequestDecided(ctx, analytics.RequestDecidedEvent{
			RequestID: reqID,
			EventID:   eID,
			Status:    string(status),
			Position:  pos,
		})
	})
}
