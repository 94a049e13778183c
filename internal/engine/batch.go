package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchResult summarizes one batch run.
type BatchResult struct {
	GoalsEvaluated int
	MessagesSent   int
	Deferred       int
	Errors         []string
	Duration       time.Duration
}

// Summary returns a human-readable one-liner for logs.
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("evaluated=%d sent=%d deferred=%d errors=%d",
		r.GoalsEvaluated, r.MessagesSent, r.Deferred, len(r.Errors))
}

// RunUserBatch evaluates all of a user's open goals — the daily batch entry
// point, also used for deferred re-evaluation. Each goal is isolated: one
// failure is recorded and the rest of the batch continues.
func (e *Engine) RunUserBatch(ctx context.Context, userID string) BatchResult {
	start := e.now()
	var result BatchResult

	goals, err := e.store.OpenGoalsByUser(ctx, userID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		return result
	}

	for _, g := range goals {
		out, err := e.EvaluateGoal(ctx, g.ID)
		result.GoalsEvaluated++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("goal %s: %v", g.ID, err))
			e.logger.Warn("batch evaluation failed", "goal_id", g.ID, "user_id", userID, "error", err)
			continue
		}
		if out.Sent {
			result.MessagesSent++
		}
		if out.Deferred {
			result.Deferred++
		}
	}

	result.Duration = time.Since(start)
	return result
}

// RunUsersBatch fans a batch run out over many users concurrently. Users
// never share mutable state, so the only coordination needed is the
// bounded parallelism.
func (e *Engine) RunUsersBatch(ctx context.Context, userIDs []string, parallelism int) BatchResult {
	start := e.now()
	if parallelism < 1 {
		parallelism = 1
	}

	results := make([]BatchResult, len(userIDs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelism)

	for i, userID := range userIDs {
		i, userID := i, userID
		eg.Go(func() error {
			results[i] = e.RunUserBatch(ctx, userID)
			return nil
		})
	}
	_ = eg.Wait()

	var total BatchResult
	for _, r := range results {
		total.GoalsEvaluated += r.GoalsEvaluated
		total.MessagesSent += r.MessagesSent
		total.Deferred += r.Deferred
		total.Errors = append(total.Errors, r.Errors...)
	}
	total.Duration = time.Since(start)
	return total
}
