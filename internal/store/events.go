package store

import (
	"context"
	"fmt"
	"time"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

// InsertSessionEvent persists a completed session. Idempotent on
// session_id: a redelivered event is skipped and reported as not inserted,
// and aggregation recomputes from the log anyway so double-counting is
// impossible by construction.
func (s *Store) InsertSessionEvent(ctx context.Context, ev *model.SessionEvent) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO session_events (
			session_id, user_id, occurred_at, distance_km, duration_minutes,
			elevation_gain_m, steps, load_kg, power_points, tags, timezone
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (session_id) DO NOTHING`,
		ev.SessionID, ev.UserID, ev.OccurredAt, ev.DistanceKm, ev.DurationMinutes,
		ev.ElevationGainM, ev.Steps, ev.LoadKg, ev.PowerPoints, ev.Tags, ev.Timezone,
	)
	if err != nil {
		return false, fmt.Errorf("store: insert session event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// EventsInRange returns a user's sessions with occurred_at in [from, to).
// Implements the aggregator's EventSource.
func (s *Store) EventsInRange(ctx context.Context, userID string, from, to time.Time) ([]model.SessionEvent, error) {
	rows, err := s.pool.Query(ctx, "events_in_range", userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: events in range: %w", err)
	}
	defer rows.Close()

	var events []model.SessionEvent
	for rows.Next() {
		var ev model.SessionEvent
		if err := rows.Scan(
			&ev.SessionID, &ev.UserID, &ev.OccurredAt, &ev.DistanceKm, &ev.DurationMinutes,
			&ev.ElevationGainM, &ev.Steps, &ev.LoadKg, &ev.PowerPoints, &ev.Tags, &ev.Timezone,
		); err != nil {
			return nil, fmt.Errorf("store: scan session event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PurgeOldEvents removes sessions older than the retention horizon. Only
// events outside every possible goal window are eligible, so recomputation
// for open goals is unaffected.
func (s *Store) PurgeOldEvents(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM session_events WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("store: purge old events: %w", err)
	}
	return tag.RowsAffected(), nil
}
