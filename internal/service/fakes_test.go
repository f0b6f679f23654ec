package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lucasmnrd/requestline/internal/models"
	repo "github.com/lucasmnrd/requestline/internal/repository/postgres"
)

// In-memory repository fakes. They mirror the conditional-update semantics
// of the gorm implementations so transition checks behave the same.

type fakeEventRepo struct {
	mu     sync.Mutex
	events map[string]*models.Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*models.Event)}
}

func (f *fakeEventRepo) Create(_ context.Context, e *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.events[e.ID] = &cp
	return nil
}

func (f *fakeEventRepo) Get(_ context.Context, eID string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[eID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEventRepo) End(_ context.Context, eID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.events[eID]; ok && e.EndedAt == nil {
		e.EndedAt = &at
	}
	return nil
}

func (f *fakeEventRepo) UpdateSettings(_ context.Context, eID string, patch repo.EventSettingsPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[eID]
	if !ok {
		return nil
	}
	if patch.VotesEnabled != nil {
		e.VotesEnabled = *patch.VotesEnabled
	}
	if patch.AutoAcceptEnabled != nil {
		e.AutoAcceptEnabled = *patch.AutoAcceptEnabled
	}
	if patch.AllowDuplicates != nil {
		e.AllowDuplicates = *patch.AllowDuplicates
	}
	if patch.RateLimitMax != nil {
		e.RateLimitMax = *patch.RateLimitMax
	}
	if patch.RateLimitWindowMinutes != nil {
		e.RateLimitWindowMinutes = *patch.RateLimitWindowMinutes
	}
	return nil
}

func (f *fakeEventRepo) ListActiveByDJ(_ context.Context, djID string, _ int) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, e := range f.events {
		if e.DJID != nil && *e.DJID == djID && e.EndedAt == nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) ListEndedByDJ(_ context.Context, djID string, _ int) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, e := range f.events {
		if e.DJID != nil && *e.DJID == djID && e.EndedAt != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) Stats(context.Context, string) (*models.EventStats, error) {
	return &models.EventStats{}, nil
}

func (f *fakeEventRepo) TopTracks(context.Context, string, int) ([]models.TopTrack, error) {
	return nil, nil
}

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*models.Request
	votes    *fakeVoteRepo
}

func newFakeRequestRepo(votes *fakeVoteRepo) *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[string]*models.Request), votes: votes}
}

func (f *fakeRequestRepo) Create(_ context.Context, req *models.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *req
	f.requests[req.ID] = &cp
	return nil
}

func (f *fakeRequestRepo) Get(_ context.Context, reqID string) (*models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[reqID]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRequestRepo) GetWithVotes(ctx context.Context, reqID string) (*models.RequestWithVotes, error) {
	req, err := f.Get(ctx, reqID)
	if err != nil || req == nil {
		return nil, err
	}
	counts, _ := f.votes.Counts(ctx, reqID)
	return &models.RequestWithVotes{
		Request:   *req,
		Upvotes:   counts.Upvotes,
		Downvotes: counts.Downvotes,
		NetVotes:  counts.Net(),
	}, nil
}

func (f *fakeRequestRepo) Accept(_ context.Context, reqID string, position int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[reqID]
	if !ok || req.Status != models.RequestStatusPending {
		return false, nil
	}
	req.Status = models.RequestStatusAccepted
	req.QueuePosition = &position
	return true, nil
}

func (f *fakeRequestRepo) Reject(_ context.Context, reqID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[reqID]
	if !ok || req.Status != models.RequestStatusPending {
		return false, nil
	}
	req.Status = models.RequestStatusRejected
	return true, nil
}

func (f *fakeRequestRepo) MarkPlayed(_ context.Context, reqID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[reqID]
	if !ok || req.Status != models.RequestStatusAccepted {
		return false, nil
	}
	req.Status = models.RequestStatusPlayed
	req.PlayedAt = &at
	req.QueuePosition = nil
	return true, nil
}

func (f *fakeRequestRepo) SetPosition(_ context.Context, eID, reqID string, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.requests[reqID]; ok && req.EventID == eID && req.Status == models.RequestStatusAccepted {
		p := position
		req.QueuePosition = &p
	}
	return nil
}

func (f *fakeRequestRepo) ListPending(_ context.Context, eID string) ([]models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Request
	for _, req := range f.requests {
		if req.EventID == eID && req.Status == models.RequestStatusPending {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRequestRepo) MaxQueuePosition(_ context.Context, eID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, req := range f.requests {
		if req.EventID == eID && req.Status == models.RequestStatusAccepted &&
			req.QueuePosition != nil && *req.QueuePosition > max {
			max = *req.QueuePosition
		}
	}
	return max, nil
}

func (f *fakeRequestRepo) FindActiveByTrackURI(_ context.Context, eID, trackURI string) (*models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var match *models.Request
	for _, req := range f.requests {
		if req.EventID != eID || req.Track.URI != trackURI {
			continue
		}
		if req.Status != models.RequestStatusPending && req.Status != models.RequestStatusAccepted {
			continue
		}
		if match == nil || req.CreatedAt.Before(match.CreatedAt) {
			match = req
		}
	}
	if match == nil {
		return nil, nil
	}
	cp := *match
	return &cp, nil
}

func (f *fakeRequestRepo) QueueWithVotes(ctx context.Context, eID string) ([]models.RequestWithVotes, error) {
	f.mu.Lock()
	var accepted []models.Request
	for _, req := range f.requests {
		if req.EventID == eID && req.Status == models.RequestStatusAccepted {
			accepted = append(accepted, *req)
		}
	}
	f.mu.Unlock()

	sort.Slice(accepted, func(i, j int) bool {
		pi, pj := 0, 0
		if accepted[i].QueuePosition != nil {
			pi = *accepted[i].QueuePosition
		}
		if accepted[j].QueuePosition != nil {
			pj = *accepted[j].QueuePosition
		}
		if pi != pj {
			return pi < pj
		}
		return accepted[i].CreatedAt.Before(accepted[j].CreatedAt)
	})

	out := make([]models.RequestWithVotes, 0, len(accepted))
	for _, req := range accepted {
		counts, _ := f.votes.Counts(ctx, req.ID)
		out = append(out, models.RequestWithVotes{
			Request:   req,
			Upvotes:   counts.Upvotes,
			Downvotes: counts.Downvotes,
			NetVotes:  counts.Net(),
		})
	}
	return out, nil
}

type voteKey struct {
	reqID     string
	channelID string
}

type fakeVoteRepo struct {
	mu    sync.Mutex
	votes map[voteKey]models.VoteType
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{votes: make(map[voteKey]models.VoteType)}
}

func (f *fakeVoteRepo) Get(_ context.Context, reqID, channelID string) (*models.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.votes[voteKey{reqID, channelID}]
	if !ok {
		return nil, nil
	}
	return &models.Vote{RequestID: reqID, ChannelID: channelID, VoteType: t}, nil
}

func (f *fakeVoteRepo) Create(_ context.Context, v *models.Vote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes[voteKey{v.RequestID, v.ChannelID}] = v.VoteType
	return nil
}

func (f *fakeVoteRepo) UpdateType(_ context.Context, reqID, channelID string, t models.VoteType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes[voteKey{reqID, channelID}] = t
	return nil
}

func (f *fakeVoteRepo) Delete(_ context.Context, reqID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.votes, voteKey{reqID, channelID})
	return nil
}

func (f *fakeVoteRepo) Counts(_ context.Context, reqID string) (models.VoteCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var counts models.VoteCounts
	for k, t := range f.votes {
		if k.reqID != reqID {
			continue
		}
		if t == models.VoteTypeUp {
			counts.Upvotes++
		} else {
			counts.Downvotes++
		}
	}
	return counts, nil
}

type fakeRateLimitRepo struct {
	mu       sync.Mutex
	counters map[string]*models.RateLimitCounter
}

func newFakeRateLimitRepo() *fakeRateLimitRepo {
	return &fakeRateLimitRepo{counters: make(map[string]*models.RateLimitCounter)}
}

func (f *fakeRateLimitRepo) Get(_ context.Context, channelID string) (*models.RateLimitCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counters[channelID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRateLimitRepo) Create(_ context.Context, c *models.RateLimitCounter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.counters[c.ChannelID] = &cp
	return nil
}

func (f *fakeRateLimitRepo) ResetWindow(_ context.Context, channelID string, resetAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.counters[channelID]; ok {
		c.RequestCount = 0
		c.ResetAt = resetAt
	}
	return nil
}

func (f *fakeRateLimitRepo) Increment(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.counters[channelID]; ok {
		c.RequestCount++
	}
	return nil
}

func (f *fakeRateLimitRepo) PurgeIdle(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var purged int64
	for id, c := range f.counters {
		if c.ResetAt.Before(cutoff) {
			delete(f.counters, id)
			purged++
		}
	}
	return purged, nil
}

// fakeGateway records notifications instead of publishing them.
type sentMessage struct {
	Room    string
	Channel string
	Name    string
	Payload any
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeGateway) Broadcast(_ context.Context, eID, name string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Room: eID, Name: name, Payload: payload})
	return nil
}

func (f *fakeGateway) Unicast(_ context.Context, channelID, name string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Channel: channelID, Name: name, Payload: payload})
	return nil
}

func (f *fakeGateway) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Name)
	}
	return out
}
