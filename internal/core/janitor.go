package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DraftPruner removes editing sessions that were last touched before a cutoff.
type DraftPruner interface {
	PruneDrafts(ctx context.Context, before time.Time) (int64, error)
}

// Janitor periodically prunes abandoned editing sessions.
type Janitor struct {
	store    DraftPruner
	logger   *slog.Logger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	cron *cron.Cron
	mu   sync.Mutex
	ctx  context.Context
}

// NewJanitor constructs a janitor that drops drafts older than ttl, checking every interval.
func NewJanitor(store DraftPruner, logger *slog.Logger, ttl, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Janitor{
		store:    store,
		logger:   logger,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		cron:     cron.New(),
	}
}

// Start schedules the pruning job. ctx is used for the store calls made by the job.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	j.ctx = ctx
	j.mu.Unlock()
	j.cron.Schedule(cron.Every(j.interval), cron.FuncJob(func() {
		if _, err := j.RunOnce(j.ctxOrBackground()); err != nil {
			j.logger.Error("prune drafts", "err", err)
		}
	}))
	j.cron.Start()
}

// Stop stops the janitor and returns a context that is done once a running job finishes.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

// RunOnce prunes expired drafts immediately.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if j.ttl <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-j.ttl).UTC()
	n, err := j.store.PruneDrafts(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info("pruned stale drafts", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

func (j *Janitor) ctxOrBackground() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.ctx != nil {
		return j.ctx
	}
	return context.Background()
}
