package service

import (
	"context"
	"sync"
	"time"

	"github.com/lucasmnrd/requestline/config"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

// Janitor periodically purges rate limit counters whose window expired
// long enough ago that the channel is considered gone.
type Janitor struct {
	rlSvc RateLimitService
	conf  config.JanitorConfig
	l     logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewJanitor(rlSvc RateLimitService, conf config.JanitorConfig, l logger.Logger) *Janitor {
	return &Janitor{
		rlSvc:  rlSvc,
		conf:   conf,
		l:      l,
		stopCh: make(chan struct{}),
	}
}

func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.mu.Unlock()

	j.wg.Add(1)
	go j.run(ctx)
	j.l.Infof(ctx, "Janitor.Start: sweeping every %s", j.conf.SweepInterval)
}

func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stopCh)
	j.mu.Unlock()

	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.conf.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	purged, err := j.rlSvc.PurgeIdle(ctx, j.conf.CounterMaxAge)
	if err != nil {
		j.l.Errorf(ctx, "Janitor.sweep: %v", err)
		return
	}
	if purged > 0 {
		j.l.Infof(ctx, "Janitor.sweep: purged %d idle rate limit counters", purged)
	}
}
