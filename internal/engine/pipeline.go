package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/guard"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/progress"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/signal"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/store"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/window"
)

// Outcome reports what one evaluation decided, for logs and the manual
// evaluation endpoint.
type Outcome struct {
	GoalID          string         `json:"goal_id"`
	ProgressPercent float64        `json:"progress_percent"`
	Score           float64        `json:"relevance_score"`
	Category        model.Category `json:"category,omitempty"`
	Sent            bool           `json:"sent"`
	Deferred        bool           `json:"deferred"`
	Reason          string         `json:"reason,omitempty"`
}

// EvaluateGoal runs the full pipeline for one goal. Reentrant and
// commutative with itself: when the event-driven and batch paths race on
// the same goal, the store's conditional claim lets exactly one send win
// and the loser no-ops.
func (e *Engine) EvaluateGoal(ctx context.Context, goalID string) (*Outcome, error) {
	g, err := e.store.GoalByID(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("load goal %s: %w", goalID, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: goal %s: %v", ErrInvalidGoal, g.ID, err)
	}
	now := e.now()

	// Loaded before anything can fail so every blocked or skipped
	// evaluation can re-arm the sweep; a claimed-then-dropped schedule
	// would otherwise never be looked at again.
	sched, err := e.store.ScheduleByGoal(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("load schedule for goal %s: %w", g.ID, err)
	}

	loc, err := window.LoadLocation(g.Timezone)
	if err != nil {
		e.rearm(ctx, g.ID, sched, now, time.UTC)
		return nil, fmt.Errorf("%w: goal %s: %v", ErrClockAnomaly, g.ID, err)
	}

	if g.Status != model.GoalActive {
		// Paused goals stay in the sweep so they resume evaluation on
		// their own once reactivated; terminal goals drop out.
		if !g.Status.Terminal() {
			e.rearm(ctx, g.ID, sched, now, loc)
		}
		return &Outcome{GoalID: g.ID, Reason: "goal not active"}, nil
	}

	// Expiry freezes evaluation; the maintenance ticker also sweeps these.
	if end := g.WindowEnd(); end != nil && now.After(*end) {
		if err := e.store.UpdateGoalStatus(ctx, g.ID, model.GoalExpired); err != nil {
			return nil, fmt.Errorf("expire goal %s: %w", g.ID, err)
		}
		e.logger.Info("goal expired", "goal_id", g.ID)
		return &Outcome{GoalID: g.ID, Reason: "expired"}, nil
	}

	snap, err := progress.Aggregate(ctx, e.store, g, now, loc)
	if err != nil {
		// The next daily batch retries; keep the goal in the sweep.
		e.rearm(ctx, g.ID, sched, now, loc)
		return nil, fmt.Errorf("%w: goal %s: %v", ErrDataGap, g.ID, err)
	}
	if err := e.store.UpsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot for goal %s: %w", g.ID, err)
	}

	latest, err := e.store.LatestRecord(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("load latest record for goal %s: %w", g.ID, err)
	}
	var lastSentAt time.Time
	var lastCategory model.Category
	if latest != nil {
		lastSentAt = latest.SentAt
		lastCategory = latest.Category
	}

	sig, err := signal.Detect(g, snap, sched, snap.LastContributingAt, lastCategory, now, loc, e.opts.Params)
	if err != nil {
		e.rearm(ctx, g.ID, sched, now, loc)
		return nil, fmt.Errorf("%w: goal %s: %v", ErrClockAnomaly, g.ID, err)
	}

	// Completion transition happens regardless of whether the completion
	// message clears the guard this cycle.
	if sig.Completed {
		if err := e.store.UpdateGoalStatus(ctx, g.ID, model.GoalCompleted); err != nil {
			return nil, fmt.Errorf("complete goal %s: %w", g.ID, err)
		}
		e.logger.Info("goal completed", "goal_id", g.ID, "value", snap.CurrentValue)
	}

	sentToday, err := e.store.SentSince(ctx, g.UserID, window.DayStart(now, loc))
	if err != nil {
		return nil, fmt.Errorf("count sends for user %s: %w", g.UserID, err)
	}

	gates := signal.Gates{
		CooldownActive:  guard.CooldownActive(lastSentAt, now, e.opts.Cooldown),
		QuietHours:      sched.QuietHours.Contains(now.In(loc)),
		DailyCapReached: sentToday >= e.opts.DailyCap,
	}
	score := signal.Score(sig, gates, e.opts.Params)

	out := &Outcome{
		GoalID:          g.ID,
		ProgressPercent: snap.ProgressPercent,
		Score:           score,
	}

	cat, ok := signal.Categorize(sig, e.opts.Params)
	if !ok || score < e.opts.Params.ScoreThreshold {
		out.Reason = "below threshold"
		e.rearm(ctx, g.ID, sched, now, loc)
		return out, nil
	}
	out.Category = cat

	severe := sig.DeadlineUrgency >= e.opts.Params.SevereUrgency
	dec := guard.Decide(guard.Input{
		Schedule:   sched,
		LastSentAt: lastSentAt,
		SentToday:  sentToday,
		Now:        now,
		Loc:        loc,
		Cooldown:   e.opts.Cooldown,
		DailyCap:   e.opts.DailyCap,
		Category:   cat,
		Severe:     severe,
		HabitMatch: sig.HabitMatch,
	})

	switch dec.Outcome {
	case guard.Block:
		out.Reason = string(dec.Reason)
		e.rearm(ctx, g.ID, sched, now, loc)
		return out, nil

	case guard.Defer:
		out.Deferred = true
		out.Reason = string(dec.Reason)
		if err := e.store.DeferSchedule(ctx, g.ID, dec.Until, sched.Version); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return out, nil // a concurrent claim superseded the deferral
			}
			return nil, fmt.Errorf("defer goal %s: %w", g.ID, err)
		}
		e.logger.Info("send deferred", "goal_id", g.ID, "category", cat,
			"until", dec.Until, "reason", dec.Reason)
		return out, nil
	}

	claim := store.Claim{
		Record: model.MessageRecord{
			ID:             uuid.NewString(),
			GoalID:         g.ID,
			UserID:         g.UserID,
			Channel:        e.opts.Channel,
			Category:       cat,
			SentAt:         now,
			RelevanceScore: score,
			DedupeKey:      dedupeKey(g.ID, cat, sig, now, loc),
		},
		CooldownUntil:   now.Add(e.opts.Cooldown),
		DailySendCount:  sentToday + 1,
		DailyResetAt:    guard.NextDailyReset(now, loc),
		MilestonesHit:   signal.MilestonesToRecord(cat, sig, g.TargetValue, e.opts.Params),
		UsedQuietBypass: dec.BypassQuiet,
		Version:         sched.Version,
	}
	if err := e.store.ClaimSend(ctx, claim); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost the race to a concurrent evaluator. Normal control
			// flow: no-op, no retry within this cycle.
			e.logger.Debug("send claim lost race", "goal_id", g.ID, "category", cat)
			out.Reason = "claim conflict"
			return out, nil
		}
		return nil, fmt.Errorf("claim send for goal %s: %w", g.ID, err)
	}

	req := model.MessageRequest{
		UserID:            g.UserID,
		GoalID:            g.ID,
		Category:          cat,
		RelevanceScore:    score,
		ComputedVariables: computedVariables(g, snap, sig, now, loc),
	}
	if e.dispatcher != nil {
		// Best-effort delivery: the claim stands even when dispatch fails,
		// so a flaky collaborator cannot cause a retry storm.
		if err := e.dispatcher.Send(ctx, req); err != nil {
			e.logger.Warn("dispatch failed, claim stands",
				"goal_id", g.ID, "category", cat, "error", err)
		}
	}
	out.Sent = true

	e.logger.Info("message sent", "goal_id", g.ID, "user_id", g.UserID,
		"category", cat, "score", score, "progress", snap.ProgressPercent)

	e.rearm(ctx, g.ID, sched, now, loc)
	return out, nil
}

// rearm points next_run_at at the next occurrence of the user's preferred
// evaluation time so the daily batch keeps looking at this goal. Called on
// every path that neither defers nor leaves the goal terminal, including
// blocked sends and skippable errors, since the sweep claim already
// cleared next_run_at.
func (e *Engine) rearm(ctx context.Context, goalID string, sched *model.NotificationSchedule, now time.Time, loc *time.Location) {
	next := sched.PreferredTime.At(now.In(loc))
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	if err := e.store.RearmSchedule(ctx, goalID, next); err != nil {
		e.logger.Warn("rearm schedule failed", "goal_id", goalID, "error", err)
	}
}

// dedupeKey buckets sends so that two evaluators deciding the same message
// in the same cycle collide on the record insert. Milestones key on the
// ladder percentage (never re-notified); completion fires once per goal;
// everything else buckets by user-local day.
func dedupeKey(goalID string, cat model.Category, sig signal.Signals, now time.Time, loc *time.Location) string {
	switch cat {
	case model.CategoryMilestone:
		return fmt.Sprintf("%s:%s:%d", goalID, cat, sig.Milestone)
	case model.CategoryCompletion:
		return fmt.Sprintf("%s:%s", goalID, cat)
	}
	return fmt.Sprintf("%s:%s:%s", goalID, cat, window.DayKey(now, loc))
}

// computedVariables packages the numbers the external text collaborator
// interpolates into copy. Units follow the goal's metric.
func computedVariables(g *model.Goal, snap *model.ProgressSnapshot, sig signal.Signals, now time.Time, loc *time.Location) map[string]any {
	vars := map[string]any{
		"progress_percent":          snap.ProgressPercent,
		"current_value":             snap.CurrentValue,
		"target_value":              g.TargetValue,
		"unit":                      g.Metric.Unit(),
		"expected_progress":         sig.ExpectedProgress,
		"delta":                     sig.Delta,
		"days_remaining":            sig.DaysRemaining,
		"needed_by_next_checkpoint": signal.NextBestAction(g, snap, now, loc),
	}
	if sig.Milestone != 0 {
		vars["milestone"] = sig.Milestone
	}
	return vars
}
