package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

// UpsertSnapshot overwrites the goal's progress snapshot. One row per goal;
// snapshots are recomputed wholesale, never patched.
func (s *Store) UpsertSnapshot(ctx context.Context, snap *model.ProgressSnapshot) error {
	var lastAt any
	if !snap.LastContributingAt.IsZero() {
		lastAt = snap.LastContributingAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO progress_snapshots (
			goal_id, current_value, progress_percent, last_evaluated_at,
			last_contributing_at, contributing_event_ids
		) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (goal_id) DO UPDATE SET
			current_value = EXCLUDED.current_value,
			progress_percent = EXCLUDED.progress_percent,
			last_evaluated_at = EXCLUDED.last_evaluated_at,
			last_contributing_at = EXCLUDED.last_contributing_at,
			contributing_event_ids = EXCLUDED.contributing_event_ids`,
		snap.GoalID, snap.CurrentValue, snap.ProgressPercent, snap.LastEvaluatedAt,
		lastAt, snap.ContributingEventIDs,
	)
	if err != nil {
		return fmt.Errorf("store: upsert snapshot: %w", err)
	}
	return nil
}

// SnapshotByGoal loads the last computed snapshot for a goal.
func (s *Store) SnapshotByGoal(ctx context.Context, goalID string) (*model.ProgressSnapshot, error) {
	var snap model.ProgressSnapshot
	var lastAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT goal_id, current_value, progress_percent, last_evaluated_at,
			last_contributing_at, contributing_event_ids
		FROM progress_snapshots WHERE goal_id = $1`, goalID,
	).Scan(&snap.GoalID, &snap.CurrentValue, &snap.ProgressPercent, &snap.LastEvaluatedAt,
		&lastAt, &snap.ContributingEventIDs)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: snapshot by goal: %w", err)
	}
	if lastAt != nil {
		snap.LastContributingAt = *lastAt
	}
	return &snap, nil
}
