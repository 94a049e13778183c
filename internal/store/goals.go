package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

// InsertGoal persists a validated goal and its default notification
// schedule in one transaction. The schedule is armed for the next
// occurrence of its preferred evaluation time.
func (s *Store) InsertGoal(ctx context.Context, g *model.Goal, sched *model.NotificationSchedule, nextRunAt time.Time) error {
	constraints, err := json.Marshal(g.Constraints)
	if err != nil {
		return fmt.Errorf("store: marshal constraints: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin insert goal tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO goals (
			id, user_id, title, description, metric, target_value, unit, "window",
			constraints_json, start_at, end_at, deadline_at, status, timezone
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		g.ID, g.UserID, g.Title, g.Description, g.Metric, g.TargetValue, g.Unit, g.Window,
		constraints, g.StartAt, g.EndAt, g.DeadlineAt, g.Status, g.Timezone,
	)
	if err != nil {
		return fmt.Errorf("store: insert goal: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO notification_schedules (
			goal_id, user_id, daily_count_reset_at,
			quiet_start_minute, quiet_end_minute, preferred_minute, next_run_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sched.GoalID, sched.UserID, sched.DailyCountResetAt,
		int(sched.QuietHours.Start), int(sched.QuietHours.End), int(sched.PreferredTime), nextRunAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert schedule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit insert goal tx: %w", err)
	}
	return nil
}

// GoalByID loads a single goal.
func (s *Store) GoalByID(ctx context.Context, id string) (*model.Goal, error) {
	row := s.pool.QueryRow(ctx, "goal_by_id", id)
	g, err := scanGoal(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: goal by id: %w", err)
	}
	return g, nil
}

// OpenGoalsByUser returns all of a user's active goals.
func (s *Store) OpenGoalsByUser(ctx context.Context, userID string) ([]model.Goal, error) {
	rows, err := s.pool.Query(ctx, "open_goals_by_user", userID)
	if err != nil {
		return nil, fmt.Errorf("store: open goals by user: %w", err)
	}
	defer rows.Close()
	return collectGoals(rows)
}

// OpenGoalsByUserMetrics returns the user's active goals measuring any of
// the given metrics — the set a session event can affect.
func (s *Store) OpenGoalsByUserMetrics(ctx context.Context, userID string, metrics []model.Metric) ([]model.Goal, error) {
	names := make([]string, len(metrics))
	for i, m := range metrics {
		names[i] = string(m)
	}
	rows, err := s.pool.Query(ctx, "open_goals_by_user_metric", userID, names)
	if err != nil {
		return nil, fmt.Errorf("store: open goals by metric: %w", err)
	}
	defer rows.Close()
	return collectGoals(rows)
}

// UpdateGoalStatus applies a lifecycle transition.
func (s *Store) UpdateGoalStatus(ctx context.Context, id string, status model.GoalStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE goals SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("store: update goal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireOverdueGoals marks active goals whose window end or deadline has
// passed as expired. Returns the number of goals transitioned.
func (s *Store) ExpireOverdueGoals(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE goals SET status = 'expired', updated_at = NOW()
		WHERE status = 'active'
		  AND COALESCE(deadline_at, end_at) IS NOT NULL
		  AND COALESCE(deadline_at, end_at) < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("store: expire overdue goals: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --------------------------------------------------------------------------
// Scanning
// --------------------------------------------------------------------------

func scanGoal(row pgx.Row) (*model.Goal, error) {
	var g model.Goal
	var constraints []byte
	err := row.Scan(
		&g.ID, &g.UserID, &g.Title, &g.Description, &g.Metric, &g.TargetValue, &g.Unit, &g.Window,
		&constraints, &g.StartAt, &g.EndAt, &g.DeadlineAt, &g.Status, &g.Timezone, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(constraints) > 0 {
		if err := json.Unmarshal(constraints, &g.Constraints); err != nil {
			return nil, fmt.Errorf("unmarshal constraints for goal %s: %w", g.ID, err)
		}
	}
	return &g, nil
}

func collectGoals(rows pgx.Rows) ([]model.Goal, error) {
	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}
