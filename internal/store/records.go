package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

// LatestRecord returns the goal's most recent message record, or nil when
// the goal has never been messaged. The guard derives cooldown state from
// this row, not from the cached schedule column.
func (s *Store) LatestRecord(ctx context.Context, goalID string) (*model.MessageRecord, error) {
	var rec model.MessageRecord
	err := s.pool.QueryRow(ctx, "latest_record_by_goal", goalID).Scan(
		&rec.ID, &rec.GoalID, &rec.UserID, &rec.Channel, &rec.Category,
		&rec.SentAt, &rec.RelevanceScore, &rec.DedupeKey,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest record: %w", err)
	}
	return &rec, nil
}

// SentSince counts a user's message records at or after the given instant.
// Called with the user's local midnight for the daily-cap check.
func (s *Store) SentSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "records_since_by_user", userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: records since: %w", err)
	}
	return n, nil
}

// RecordsByGoal lists a goal's send history newest first, for audit.
func (s *Store) RecordsByGoal(ctx context.Context, goalID string, limit int) ([]model.MessageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, goal_id, user_id, channel, category, sent_at, relevance_score, dedupe_key
		FROM message_records WHERE goal_id = $1
		ORDER BY sent_at DESC LIMIT $2`, goalID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: records by goal: %w", err)
	}
	defer rows.Close()

	var records []model.MessageRecord
	for rows.Next() {
		var rec model.MessageRecord
		if err := rows.Scan(&rec.ID, &rec.GoalID, &rec.UserID, &rec.Channel, &rec.Category,
			&rec.SentAt, &rec.RelevanceScore, &rec.DedupeKey); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PurgeOldRecords removes message records past the audit retention horizon.
func (s *Store) PurgeOldRecords(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM message_records WHERE sent_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("store: purge old records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --------------------------------------------------------------------------
// Claim — the one conditional write per accepted message
// --------------------------------------------------------------------------

// Claim is the cooldown-slot claim for a single send: the record to append
// plus the schedule mutation that goes with it.
type Claim struct {
	Record          model.MessageRecord
	CooldownUntil   time.Time
	DailySendCount  int       // post-send count within the local day
	DailyResetAt    time.Time // next local day boundary
	MilestonesHit   []int     // ladder percentages to retire; empty for none
	UsedQuietBypass bool
	Version         int64 // schedule version the decision was made against
}

// ClaimSend atomically claims the right to send: appends the message record
// (unique dedupe key) and advances the schedule with a compare-and-set on
// its version, in one transaction. Losing either race returns ErrConflict
// and nothing is written — the caller must no-op, not retry, within the
// same evaluation cycle.
func (s *Store) ClaimSend(ctx context.Context, c Claim) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO message_records (
			id, goal_id, user_id, channel, category, sent_at, relevance_score, dedupe_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		c.Record.ID, c.Record.GoalID, c.Record.UserID, c.Record.Channel, c.Record.Category,
		c.Record.SentAt, c.Record.RelevanceScore, c.Record.DedupeKey,
	)
	if err != nil {
		return fmt.Errorf("store: insert message record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	milestones := make([]int32, 0, len(c.MilestonesHit))
	for _, m := range c.MilestonesHit {
		milestones = append(milestones, int32(m))
	}
	tag, err = tx.Exec(ctx, `
		UPDATE notification_schedules SET
			cooldown_until = $2,
			daily_send_count = $3,
			daily_count_reset_at = $4,
			milestones_hit = CASE WHEN cardinality($5::int[]) = 0 THEN milestones_hit
				ELSE ARRAY(SELECT DISTINCT m FROM unnest(milestones_hit || $5::int[]) AS m ORDER BY m) END,
			quiet_bypass_used = quiet_bypass_used OR $6,
			next_run_at = NULL,
			version = version + 1,
			updated_at = NOW()
		WHERE goal_id = $1 AND version = $7`,
		c.Record.GoalID, c.CooldownUntil, c.DailySendCount, c.DailyResetAt,
		milestones, c.UsedQuietBypass, c.Version,
	)
	if err != nil {
		return fmt.Errorf("store: advance schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit claim tx: %w", err)
	}
	return nil
}
