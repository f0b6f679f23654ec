package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasmnrd/requestline/internal/analytics"
	"github.com/lucasmnrd/requestline/internal/broadcast"
	"github.com/lucasmnrd/requestline/internal/models"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type engineFixture struct {
	eventRepo   *fakeEventRepo
	requestRepo *fakeRequestRepo
	voteRepo    *fakeVoteRepo
	rlRepo      *fakeRateLimitRepo
	gateway     *fakeGateway
	admission   *admissionService
	votes       VoteService
	queue       QueueService
	clock       *time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	l := logger.InitializeTestZapLogger()
	voteRepo := newFakeVoteRepo()
	requestRepo := newFakeRequestRepo(voteRepo)
	eventRepo := newFakeEventRepo()
	rlRepo := newFakeRateLimitRepo()
	gateway := &fakeGateway{}
	locks := newEventLocks()

	rlSvc, clock := newTestRateLimitService(rlRepo, time.Now())
	qSvc := NewQueueService(requestRepo, l)

	nextID := 0
	adm := NewAdmissionService(eventRepo, requestRepo, rlSvc, qSvc, gateway, analytics.NopProducer{}, locks, l).(*admissionService)
	adm.now = func() time.Time { return *clock }
	adm.newID = func() string {
		nextID++
		return fmt.Sprintf("req-%d", nextID)
	}

	votes := NewVoteService(voteRepo, requestRepo, eventRepo, gateway, locks, l)

	return &engineFixture{
		eventRepo:   eventRepo,
		requestRepo: requestRepo,
		voteRepo:    voteRepo,
		rlRepo:      rlRepo,
		gateway:     gateway,
		admission:   adm,
		votes:       votes,
		queue:       qSvc,
		clock:       clock,
	}
}

func (f *engineFixture) addEvent(t *testing.T, mutate func(*models.Event)) *models.Event {
	t.Helper()
	event := testEvent()
	if mutate != nil {
		mutate(event)
	}
	require.NoError(t, f.eventRepo.Create(context.Background(), event))
	return event
}

func (f *engineFixture) submit(t *testing.T, eID, channelID, uri string) *SubmitOutput {
	t.Helper()
	out, err := f.admission.Submit(context.Background(), SubmitInput{
		EventID:   eID,
		Track:     models.Track{Name: "Song " + uri, Artist: "Artist", URI: uri},
		UserName:  "alice",
		ChannelID: channelID,
	})
	require.NoError(t, err)
	return out
}

func TestSubmitUnknownEvent(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.admission.Submit(context.Background(), SubmitInput{
		EventID:   "nope",
		Track:     models.Track{URI: "spotify:track:1"},
		ChannelID: "chan-1",
	})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestSubmitEndedEvent(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, func(e *models.Event) {
		ended := time.Now()
		e.EndedAt = &ended
	})

	_, err := f.admission.Submit(context.Background(), SubmitInput{
		EventID:   event.ID,
		Track:     models.Track{URI: "spotify:track:1"},
		ChannelID: "chan-1",
	})
	assert.ErrorIs(t, err, ErrEventEnded)
}

func TestSubmitPendingByDefault(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)

	out := f.submit(t, event.ID, "chan-1", "spotify:track:1")

	assert.Equal(t, models.RequestStatusPending, out.Status)
	assert.Nil(t, out.Position)
	assert.Equal(t, 2, out.RateLimit.Remaining)

	req, err := f.requestRepo.Get(context.Background(), out.RequestID)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "alice", req.UserName)
	assert.Equal(t, "chan-1", req.ChannelID)

	assert.Contains(t, f.gateway.names(), broadcast.NameNewRequest)
	assert.NotContains(t, f.gateway.names(), broadcast.NameQueueUpdated)
}

func TestSubmitAnonymousUserName(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)

	out, err := f.admission.Submit(context.Background(), SubmitInput{
		EventID:   event.ID,
		Track:     models.Track{URI: "spotify:track:1"},
		ChannelID: "chan-1",
	})
	require.NoError(t, err)

	req, err := f.requestRepo.Get(context.Background(), out.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "Anonyme", req.UserName)
}

func TestSubmitDuplicateRejected(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)

	f.submit(t, event.ID, "chan-1", "spotify:track:1")

	_, err := f.admission.Submit(context.Background(), SubmitInput{
		EventID:   event.ID,
		Track:     models.Track{URI: "spotify:track:1"},
		ChannelID: "chan-2",
	})

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, DuplicateLocationPending, dup.Location)

	// Rejected submissions never count against the limiter.
	counter, cerr := f.rlRepo.Get(context.Background(), "chan-2")
	require.NoError(t, cerr)
	require.NotNil(t, counter)
	assert.Equal(t, 0, counter.RequestCount)
}

func TestSubmitDuplicateInQueue(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, func(e *models.Event) { e.AutoAcceptEnabled = true })

	f.submit(t, event.ID, "chan-1", "spotify:track:1")

	_, err := f.admission.Submit(context.Background(), SubmitInput{
		EventID:   event.ID,
		Track:     models.Track{URI: "spotify:track:1"},
		ChannelID: "chan-2",
	})

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, DuplicateLocationQueue, dup.Location)
}

func TestSubmitDuplicatesAllowedWhenEnabled(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, func(e *models.Event) { e.AllowDuplicates = true })

	f.submit(t, event.ID, "chan-1", "spotify:track:1")
	out := f.submit(t, event.ID, "chan-2", "spotify:track:1")
	assert.Equal(t, models.RequestStatusPending, out.Status)
}

func TestSubmitRateLimited(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)

	for i := 0; i < 3; i++ {
		f.submit(t, event.ID, "chan-1", fmt.Sprintf("spotify:track:%d", i))
	}

	_, err := f.admission.Submit(context.Background(), SubmitInput{
		EventID:   event.ID,
		Track:     models.Track{URI: "spotify:track:9"},
		ChannelID: "chan-1",
	})

	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.GreaterOrEqual(t, limited.RetryAfterMinutes, 1)
	assert.LessOrEqual(t, limited.RetryAfterMinutes, 15)
}

func TestSubmitAutoAcceptAssignsPositions(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, func(e *models.Event) { e.AutoAcceptEnabled = true })

	first := f.submit(t, event.ID, "chan-1", "spotify:track:1")
	second := f.submit(t, event.ID, "chan-2", "spotify:track:2")

	assert.Equal(t, models.RequestStatusAccepted, first.Status)
	require.NotNil(t, first.Position)
	assert.Equal(t, 1, *first.Position)
	require.NotNil(t, second.Position)
	assert.Equal(t, 2, *second.Position)

	names := f.gateway.names()
	assert.Contains(t, names, broadcast.NameYourRequestAccepted)
	assert.Contains(t, names, broadcast.NameQueueUpdated)
	assert.Contains(t, names, broadcast.NameRequestAccepted)
}

func TestAcceptAssignsNextPosition(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)
	ctx := context.Background()

	out1 := f.submit(t, event.ID, "chan-1", "spotify:track:1")
	out2 := f.submit(t, event.ID, "chan-2", "spotify:track:2")

	require.NoError(t, f.admission.Accept(ctx, out1.RequestID))
	require.NoError(t, f.admission.Accept(ctx, out2.RequestID))

	queue, err := f.queue.Queue(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, out1.RequestID, queue[0].ID)
	assert.Equal(t, 1, *queue[0].QueuePosition)
	assert.Equal(t, out2.RequestID, queue[1].ID)
	assert.Equal(t, 2, *queue[1].QueuePosition)
}

func TestAcceptPositionGreaterThanAllCurrent(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)
	ctx := context.Background()

	out1 := f.submit(t, event.ID, "chan-1", "spotify:track:1")
	out2 := f.submit(t, event.ID, "chan-2", "spotify:track:2")
	out3 := f.submit(t, event.ID, "chan-3", "spotify:track:3")

	require.NoError(t, f.admission.Accept(ctx, out1.RequestID))
	require.NoError(t, f.admission.Accept(ctx, out2.RequestID))

	// Playing the head leaves a gap at position 1; the next accept still
	// lands past the tail, never in the gap.
	require.NoError(t, f.admission.MarkPlayed(ctx, out1.RequestID))
	require.NoError(t, f.admission.Accept(ctx, out3.RequestID))

	req, err := f.requestRepo.Get(ctx, out3.RequestID)
	require.NoError(t, err)
	require.NotNil(t, req.QueuePosition)
	assert.Equal(t, 3, *req.QueuePosition)
}

func TestAcceptTwiceIsInvalidTransition(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)
	ctx := context.Background()

	out := f.submit(t, event.ID, "chan-1", "spotify:track:1")
	require.NoError(t, f.admission.Accept(ctx, out.RequestID))

	err := f.admission.Accept(ctx, out.RequestID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectAfterAcceptIsInvalidTransition(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)
	ctx := context.Background()

	out := f.submit(t, event.ID, "chan-1", "spotify:track:1")
	require.NoError(t, f.admission.Accept(ctx, out.RequestID))

	err := f.admission.Reject(ctx, out.RequestID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The accepted row is untouched.
	req, rerr := f.requestRepo.Get(ctx, out.RequestID)
	require.NoError(t, rerr)
	assert.Equal(t, models.RequestStatusAccepted, req.Status)
}

func TestRejectNotifiesSubmitter(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)
	ctx := context.Background()

	out := f.submit(t, event.ID, "chan-1", "spotify:track:1")
	require.NoError(t, f.admission.Reject(ctx, out.RequestID))

	names := f.gateway.names()
	assert.Contains(t, names, broadcast.NameRequestRejected)
	assert.Contains(t, names, broadcast.NameYourRequestRejected)
}

func TestMarkPlayedRemovesWithoutMovingOthers(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, func(e *models.Event) { e.AutoAcceptEnabled = true })
	ctx := context.Background()

	out1 := f.submit(t, event.ID, "chan-1", "spotify:track:1")
	out2 := f.submit(t, event.ID, "chan-2", "spotify:track:2")
	out3 := f.submit(t, event.ID, "chan-3", "spotify:track:3")

	require.NoError(t, f.admission.MarkPlayed(ctx, out2.RequestID))

	played, err := f.requestRepo.Get(ctx, out2.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPlayed, played.Status)
	assert.Nil(t, played.QueuePosition)
	assert.NotNil(t, played.PlayedAt)

	// Survivors keep their original positions, gap included.
	queue, err := f.queue.Queue(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, out1.RequestID, queue[0].ID)
	assert.Equal(t, 1, *queue[0].QueuePosition)
	assert.Equal(t, out3.RequestID, queue[1].ID)
	assert.Equal(t, 3, *queue[1].QueuePosition)
}

func TestMarkPlayedPendingIsInvalidTransition(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)

	out := f.submit(t, event.ID, "chan-1", "spotify:track:1")
	err := f.admission.MarkPlayed(context.Background(), out.RequestID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReorderRewritesPositions(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, func(e *models.Event) { e.AutoAcceptEnabled = true })
	ctx := context.Background()

	out1 := f.submit(t, event.ID, "chan-1", "spotify:track:1")
	out2 := f.submit(t, event.ID, "chan-2", "spotify:track:2")
	out3 := f.submit(t, event.ID, "chan-3", "spotify:track:3")

	require.NoError(t, f.admission.Reorder(ctx, event.ID, []string{out3.RequestID, out1.RequestID, out2.RequestID}))

	queue, err := f.queue.Queue(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, out3.RequestID, queue[0].ID)
	assert.Equal(t, out1.RequestID, queue[1].ID)
	assert.Equal(t, out2.RequestID, queue[2].ID)
	for i := range queue {
		assert.Equal(t, i+1, *queue[i].QueuePosition)
	}
}

func TestUpdateSettingsBroadcasts(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)
	ctx := context.Background()

	off := false
	require.NoError(t, f.admission.UpdateSettings(ctx, event.ID, SettingsPatch{VotesEnabled: &off}))

	updated, err := f.eventRepo.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.False(t, updated.VotesEnabled)
	assert.Contains(t, f.gateway.names(), broadcast.NameEventSettingsUpdated)
}

func TestUpdateSettingsEmptyPatchIsNoop(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)

	require.NoError(t, f.admission.UpdateSettings(context.Background(), event.ID, SettingsPatch{}))
	assert.Empty(t, f.gateway.names())
}

func TestAddByDJSkipsAdmissionChecks(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)
	ctx := context.Background()

	// Fill the channel-independent checks that would block an attendee:
	// a pending duplicate of the same track.
	f.submit(t, event.ID, "chan-1", "spotify:track:1")

	reqID, pos, err := f.admission.AddByDJ(ctx, event.ID, models.Track{Name: "Encore", URI: "spotify:track:1"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	req, err := f.requestRepo.Get(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, req.Status)
	assert.Equal(t, "DJ", req.UserName)
}

func TestConcurrentSubmitsRespectRateLimit(t *testing.T) {
	f := newEngineFixture(t)
	event := f.addEvent(t, nil)
	ctx := context.Background()

	const workers = 10
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			_, err := f.admission.Submit(ctx, SubmitInput{
				EventID:   event.ID,
				Track:     models.Track{URI: fmt.Sprintf("spotify:track:%d", n)},
				ChannelID: "chan-1",
			})
			results <- err
		}(i)
	}

	admitted := 0
	for i := 0; i < workers; i++ {
		err := <-results
		if err == nil {
			admitted++
			continue
		}
		var limited *RateLimitedError
		require.True(t, errors.As(err, &limited), "unexpected error: %v", err)
	}

	// The per-event lock serializes the check-increment sequence, so the
	// limiter never over-admits.
	assert.Equal(t, 3, admitted)
}
