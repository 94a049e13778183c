package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/store"
)

// TriggerKind distinguishes the two entry points in logs.
type TriggerKind string

const (
	TriggerSession TriggerKind = "session"
	TriggerBatch   TriggerKind = "batch"
	TriggerManual  TriggerKind = "manual"
)

// Trigger is one unit of evaluation work pulled from the queue.
type Trigger struct {
	Kind   TriggerKind
	GoalID string
}

// Enqueue queues a trigger for the worker pool, blocking when the queue is
// full so producers experience backpressure instead of dropped work.
func (e *Engine) Enqueue(ctx context.Context, t Trigger) error {
	select {
	case e.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleSession ingests a completed session and enqueues evaluation of
// every open goal it could affect. Redelivered sessions are harmless: the
// insert is idempotent and the evaluation is a pure recompute.
func (e *Engine) HandleSession(ctx context.Context, ev *model.SessionEvent) error {
	inserted, err := e.store.InsertSessionEvent(ctx, ev)
	if err != nil {
		return err
	}
	if !inserted {
		e.logger.Debug("session redelivered, already stored", "session_id", ev.SessionID)
	}

	goals, err := e.store.OpenGoalsByUserMetrics(ctx, ev.UserID, affectedMetrics(ev))
	if err != nil {
		return err
	}
	for _, g := range goals {
		if err := e.Enqueue(ctx, Trigger{Kind: TriggerSession, GoalID: g.ID}); err != nil {
			return err
		}
	}
	e.logger.Info("session ingested", "session_id", ev.SessionID,
		"user_id", ev.UserID, "goals_triggered", len(goals))
	return nil
}

// StartWorkers runs the evaluation worker pool. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func (e *Engine) StartWorkers(ctx context.Context) {
	e.logger.Info("evaluation workers started", "workers", e.opts.Workers)

	var eg errgroup.Group
	for i := 0; i < e.opts.Workers; i++ {
		eg.Go(func() error {
			for {
				select {
				case t := <-e.queue:
					e.evaluateTrigger(ctx, t)
				case <-ctx.Done():
					return nil
				}
			}
		})
	}
	_ = eg.Wait()
	e.logger.Info("evaluation workers stopped")
}

// evaluateTrigger runs one evaluation with the per-goal error boundary.
func (e *Engine) evaluateTrigger(ctx context.Context, t Trigger) {
	out, err := e.EvaluateGoal(ctx, t.GoalID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		e.logger.Warn("trigger for unknown goal", "goal_id", t.GoalID, "kind", t.Kind)
	case errors.Is(err, ErrDataGap), errors.Is(err, ErrClockAnomaly):
		// Skipped this cycle; the next trigger or batch retries.
		e.logger.Warn("evaluation skipped", "goal_id", t.GoalID, "kind", t.Kind, "error", err)
	case err != nil:
		e.logger.Error("evaluation failed", "goal_id", t.GoalID, "kind", t.Kind, "error", err)
	case out.Sent:
		// Already logged by the pipeline.
	}
}

// affectedMetrics lists the goal metrics a session event can move. Count
// and time based metrics always move; quantity metrics only when the
// session actually carries the quantity.
func affectedMetrics(ev *model.SessionEvent) []model.Metric {
	metrics := []model.Metric{
		model.MetricSessionCount,
		model.MetricStreakDays,
		model.MetricDurationTotal,
		model.MetricLoadWeightedSessionCount,
	}
	if ev.DistanceKm > 0 {
		metrics = append(metrics, model.MetricDistanceTotal)
	}
	if ev.ElevationGainM > 0 {
		metrics = append(metrics, model.MetricElevationGainTotal)
	}
	if ev.Steps > 0 {
		metrics = append(metrics, model.MetricStepsTotal)
	}
	if ev.PowerPoints > 0 {
		metrics = append(metrics, model.MetricEffortPointsTotal)
	}
	return metrics
}
