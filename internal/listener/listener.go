// Package listener provides a Postgres LISTEN/NOTIFY consumer for the
// event-driven evaluation trigger. It holds a dedicated pgx connection (not
// from the pool) listening on the `session_completed` channel.
//
// When the session pipeline records a completed workout, a trigger fires
// pg_notify and this consumer receives the event and enqueues it on the
// engine's evaluation queue. The queue is pull-based, so a burst of
// sessions backs up here instead of fanning out unbounded goroutines.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/engine"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

const (
	channel          = "session_completed"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Start opens a dedicated connection and listens on the session_completed
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, eng *engine.Engine, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, eng, logger)
		if ctx.Err() != nil {
			logger.Info("session listener stopped (context cancelled)")
			return
		}

		logger.Error("session listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection
// drops or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, eng *engine.Engine, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	logger.Info("session listener connected", "channel", channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		var ev model.SessionEvent
		if err := json.Unmarshal([]byte(notification.Payload), &ev); err != nil {
			logger.Warn("failed to parse session event",
				"payload", notification.Payload, "error", err)
			continue
		}
		if ev.SessionID == "" || ev.UserID == "" {
			logger.Warn("session event missing ids", "payload", notification.Payload)
			continue
		}

		if err := eng.HandleSession(ctx, &ev); err != nil {
			logger.Warn("session event handling failed",
				"session_id", ev.SessionID, "user_id", ev.UserID, "error", err)
		}
	}
}
