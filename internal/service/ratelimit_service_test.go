package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasmnrd/requestline/internal/models"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

func testEvent() *models.Event {
	return &models.Event{
		ID:                     "evt-1",
		Name:                   "Test Party",
		VotesEnabled:           true,
		RateLimitMax:           3,
		RateLimitWindowMinutes: 15,
		CreatedAt:              time.Now(),
	}
}

func newTestRateLimitService(repo *fakeRateLimitRepo, now time.Time) (*rateLimitService, *time.Time) {
	clock := now
	svc := NewRateLimitService(repo, logger.InitializeTestZapLogger()).(*rateLimitService)
	svc.now = func() time.Time { return clock }
	return svc, &clock
}

func TestRateLimitCheckFirstContact(t *testing.T) {
	repo := newFakeRateLimitRepo()
	svc, _ := newTestRateLimitService(repo, time.Now())

	status, err := svc.Check(context.Background(), "chan-1", testEvent())
	require.NoError(t, err)

	assert.True(t, status.Allowed)
	assert.Equal(t, 0, status.Count)
	assert.Equal(t, 3, status.Max)
	assert.Equal(t, 3, status.Remaining)

	// The counter row exists now, anchored to a full window.
	counter, err := repo.Get(context.Background(), "chan-1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, 0, counter.RequestCount)
}

func TestRateLimitWindowExhaustion(t *testing.T) {
	repo := newFakeRateLimitRepo()
	now := time.Now()
	svc, _ := newTestRateLimitService(repo, now)
	ctx := context.Background()
	event := testEvent()

	for i := 0; i < 3; i++ {
		status, err := svc.Check(ctx, "chan-1", event)
		require.NoError(t, err)
		assert.True(t, status.Allowed, "submission %d should be allowed", i+1)
		assert.Equal(t, 3-i, status.Remaining)
		require.NoError(t, svc.Increment(ctx, "chan-1"))
	}

	status, err := svc.Check(ctx, "chan-1", event)
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, 3, status.Count)
	assert.GreaterOrEqual(t, status.RetryAfterMinutes, 1)
	assert.LessOrEqual(t, status.RetryAfterMinutes, 15)
}

func TestRateLimitRetryMinutesRoundsUp(t *testing.T) {
	repo := newFakeRateLimitRepo()
	now := time.Now()
	svc, clock := newTestRateLimitService(repo, now)
	ctx := context.Background()
	event := testEvent()

	_, err := svc.Check(ctx, "chan-1", event)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Increment(ctx, "chan-1"))
	}

	// 30 seconds left in the window still reports a full minute.
	*clock = now.Add(15*time.Minute - 30*time.Second)
	status, err := svc.Check(ctx, "chan-1", event)
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, 1, status.RetryAfterMinutes)
}

func TestRateLimitLazyWindowReset(t *testing.T) {
	repo := newFakeRateLimitRepo()
	now := time.Now()
	svc, clock := newTestRateLimitService(repo, now)
	ctx := context.Background()
	event := testEvent()

	_, err := svc.Check(ctx, "chan-1", event)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Increment(ctx, "chan-1"))
	}

	status, err := svc.Check(ctx, "chan-1", event)
	require.NoError(t, err)
	require.False(t, status.Allowed)

	// Nothing sweeps the window; the first check past expiry resets it.
	*clock = now.Add(16 * time.Minute)
	status, err = svc.Check(ctx, "chan-1", event)
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, 0, status.Count)
	assert.Equal(t, 3, status.Remaining)

	// The first submission of the fresh window counts from one.
	require.NoError(t, svc.Increment(ctx, "chan-1"))
	counter, err := repo.Get(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counter.RequestCount)
}

func TestRateLimitCounterIsGlobalAcrossEvents(t *testing.T) {
	repo := newFakeRateLimitRepo()
	svc, _ := newTestRateLimitService(repo, time.Now())
	ctx := context.Background()

	eventA := testEvent()
	eventB := testEvent()
	eventB.ID = "evt-2"

	_, err := svc.Check(ctx, "chan-1", eventA)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Increment(ctx, "chan-1"))
	}

	// The same channel is throttled on a different event too: the counter
	// keys on the channel alone.
	status, err := svc.Check(ctx, "chan-1", eventB)
	require.NoError(t, err)
	assert.False(t, status.Allowed)
}

func TestRateLimitPurgeIdle(t *testing.T) {
	repo := newFakeRateLimitRepo()
	now := time.Now()
	svc, clock := newTestRateLimitService(repo, now)
	ctx := context.Background()

	_, err := svc.Check(ctx, "chan-old", testEvent())
	require.NoError(t, err)

	*clock = now.Add(2 * time.Hour)
	_, err = svc.Check(ctx, "chan-fresh", testEvent())
	require.NoError(t, err)

	purged, err := svc.PurgeIdle(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	old, err := repo.Get(ctx, "chan-old")
	require.NoError(t, err)
	assert.Nil(t, old)

	fresh, err := repo.Get(ctx, "chan-fresh")
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}
