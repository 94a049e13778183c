// Package maintenance runs periodic background tasks as Go tickers.
// Replaces pg_cron — all scheduled work is driven from Go since it is
// already a persistent, long-running service (required for LISTEN/NOTIFY).
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/config"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/engine"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/store"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	SweepInterval     time.Duration // due-schedule sweep (daily batch + deferred sends)
	ExpiryInterval    time.Duration // transition overdue goals to expired
	RetentionInterval time.Duration // purge old message records and sessions
	RetentionMaxAge   time.Duration
	SweepBatchSize    int
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:     5 * time.Minute,
		ExpiryInterval:    15 * time.Minute,
		RetentionInterval: 24 * time.Hour,
		RetentionMaxAge:   180 * 24 * time.Hour,
		SweepBatchSize:    200,
	}
}

// ConfigFrom builds a maintenance Config from application configuration.
func ConfigFrom(app *config.Config) Config {
	c := DefaultConfig()
	c.SweepInterval = app.SweepInterval
	c.ExpiryInterval = app.ExpiryInterval
	c.RetentionInterval = app.RetentionInterval
	c.RetentionMaxAge = app.RetentionMaxAge
	return c
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, st *store.Store, eng *engine.Engine, cfg Config, logger *slog.Logger) {
	logger.Info("maintenance tickers started",
		"sweep", cfg.SweepInterval,
		"expiry", cfg.ExpiryInterval,
		"retention", cfg.RetentionInterval)

	tickers := make([]*time.Ticker, 0, 3)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Sweep: claim schedules whose next_run_at has arrived — the daily
	// per-user batch at their preferred local time, plus quiet-hours and
	// habit-window deferrals — and enqueue them for evaluation.
	if cfg.SweepInterval > 0 {
		t := time.NewTicker(cfg.SweepInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { sweep(ctx, st, eng, cfg.SweepBatchSize, logger) })
	}

	// Expiry: freeze goals whose window end or deadline has passed.
	if cfg.ExpiryInterval > 0 {
		t := time.NewTicker(cfg.ExpiryInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { expire(ctx, st, logger) })
	}

	// Retention: purge audit rows and session events past the horizon.
	if cfg.RetentionInterval > 0 {
		t := time.NewTicker(cfg.RetentionInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { retention(ctx, st, cfg.RetentionMaxAge, logger) })
	}

	<-ctx.Done()
	logger.Info("maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// sweep claims due schedules and feeds them to the engine queue. The claim
// clears next_run_at under SKIP LOCKED, so overlapping sweepers (multiple
// processes) never double-enqueue; re-evaluation itself is idempotent
// anyway — the guard's conditional claim is what prevents double sends.
func sweep(ctx context.Context, st *store.Store, eng *engine.Engine, batch int, logger *slog.Logger) {
	due, err := st.ClaimDueSchedules(ctx, time.Now(), batch)
	if err != nil {
		logger.Warn("sweep: claim due schedules failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	for _, d := range due {
		if err := eng.Enqueue(ctx, engine.Trigger{Kind: engine.TriggerBatch, GoalID: d.GoalID}); err != nil {
			logger.Warn("sweep: enqueue failed", "goal_id", d.GoalID, "error", err)
			return
		}
	}
	logger.Info("sweep: enqueued due evaluations", "count", len(due))
}

func expire(ctx context.Context, st *store.Store, logger *slog.Logger) {
	n, err := st.ExpireOverdueGoals(ctx, time.Now())
	if err != nil {
		logger.Warn("expiry: failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("expiry: goals expired", "count", n)
	}
}

func retention(ctx context.Context, st *store.Store, maxAge time.Duration, logger *slog.Logger) {
	before := time.Now().Add(-maxAge)

	n, err := st.PurgeOldRecords(ctx, before)
	if err != nil {
		logger.Warn("retention: purge message records failed", "error", err)
	} else if n > 0 {
		logger.Info("retention: purged message records", "count", n)
	}

	n, err = st.PurgeOldEvents(ctx, before)
	if err != nil {
		logger.Warn("retention: purge session events failed", "error", err)
	} else if n > 0 {
		logger.Info("retention: purged session events", "count", n)
	}
}
