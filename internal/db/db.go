// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers the hot-path statements the
// evaluation engine runs on every trigger. Prepared statements eliminate
// parse overhead on every evaluation; see migrations/schema.sql for DDL.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Goals
		"goal_by_id": `SELECT id, user_id, title, description, metric, target_value, unit, "window",
			constraints_json, start_at, end_at, deadline_at, status, timezone, created_at, updated_at
			FROM goals WHERE id = $1`,
		"open_goals_by_user": `SELECT id, user_id, title, description, metric, target_value, unit, "window",
			constraints_json, start_at, end_at, deadline_at, status, timezone, created_at, updated_at
			FROM goals WHERE user_id = $1 AND status = 'active'`,
		"open_goals_by_user_metric": `SELECT id, user_id, title, description, metric, target_value, unit, "window",
			constraints_json, start_at, end_at, deadline_at, status, timezone, created_at, updated_at
			FROM goals WHERE user_id = $1 AND status = 'active' AND metric = ANY($2)`,

		// Session events (aggregation reads)
		"events_in_range": `SELECT session_id, user_id, occurred_at, distance_km, duration_minutes,
			elevation_gain_m, steps, load_kg, power_points, tags, timezone
			FROM session_events WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
			ORDER BY occurred_at`,

		// Schedule guard lookups — cooldown comes from the latest record,
		// daily cap from the user's records since their local midnight.
		"schedule_by_goal": `SELECT goal_id, user_id, cooldown_until, daily_send_count, daily_count_reset_at,
			quiet_start_minute, quiet_end_minute, preferred_minute, habit_start_minute, habit_end_minute,
			milestones_hit, next_run_at, quiet_bypass_used, version, updated_at
			FROM notification_schedules WHERE goal_id = $1`,
		"latest_record_by_goal": `SELECT id, goal_id, user_id, channel, category, sent_at, relevance_score, dedupe_key
			FROM message_records WHERE goal_id = $1 ORDER BY sent_at DESC LIMIT 1`,
		"records_since_by_user": "SELECT COUNT(*) FROM message_records WHERE user_id = $1 AND sent_at >= $2",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
