// Package cleanup prunes test sessions that were started and abandoned.
package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionPruner deletes never-completed sessions started before a cutoff
type SessionPruner interface {
	DeleteStaleSessions(ctx context.Context, startedBefore time.Time) (int64, error)
}

// Cleaner periodically removes abandoned sessions
type Cleaner struct {
	store    SessionPruner
	interval time.Duration
	maxAge   time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewCleaner creates a new cleanup worker
func NewCleaner(store SessionPruner, interval, maxAge time.Duration, log *zap.Logger) *Cleaner {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	return &Cleaner{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		log:      log,
		now:      time.Now,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cleaner) run(ctx context.Context) {
	c.log.Info("cleanup worker started",
		zap.Duration("interval", c.interval),
		zap.Duration("max_age", c.maxAge),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			c.log.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.Prune(ctx)
		}
	}
}

// Prune runs one cleanup cycle and returns the number of sessions removed
func (c *Cleaner) Prune(ctx context.Context) int64 {
	cutoff := c.now().Add(-c.maxAge)

	deleted, err := c.store.DeleteStaleSessions(ctx, cutoff)
	if err != nil {
		c.log.Error("failed to delete stale sessions", zap.Error(err))
		return 0
	}

	if deleted > 0 {
		c.log.Info("stale sessions deleted",
			zap.Int64("count", deleted),
			zap.Time("started_before", cutoff),
		)
	}
	return deleted
}
