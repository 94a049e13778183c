package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

// PushSender forwards message requests to the push pipeline (FCM) for every
// active device of the target user.
// Nil-safe: when not configured, all methods are no-ops.
type PushSender struct {
	pool            *pgxpool.Pool
	credentialsFile string
	logger          *slog.Logger
	// TODO: Add firebase.google.com/go/v4/messaging.Client when FCM
	// dependency is added. For now this is a structured placeholder
	// that logs send attempts.
}

// NewPushSender creates a push sender from a service account credentials
// file. Returns nil if credentialsFile is empty (push delivery disabled).
func NewPushSender(pool *pgxpool.Pool, credentialsFile string, logger *slog.Logger) *PushSender {
	if credentialsFile == "" {
		return nil
	}
	return &PushSender{
		pool:            pool,
		credentialsFile: credentialsFile,
		logger:          logger,
	}
}

// Send resolves the user's device tokens and forwards the structured
// message request. The text collaborator downstream owns the copy; only
// category and computed variables cross this boundary.
func (s *PushSender) Send(ctx context.Context, req model.MessageRequest) error {
	if s == nil {
		return nil // no-op when not configured
	}

	tokens, err := s.deviceTokens(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("resolve device tokens: %w", err)
	}

	// TODO: Replace with actual FCM client call once the messaging client
	// is wired:
	//   msg := &messaging.MulticastMessage{Tokens: tokens, Data: encode(req)}
	//   resp, err := s.client.SendEachForMulticast(ctx, msg)
	s.logger.Info("push send (pending FCM integration)",
		"user_id", req.UserID,
		"goal_id", req.GoalID,
		"category", req.Category,
		"score", req.RelevanceScore,
		"tokens", len(tokens))

	return nil
}

func (s *PushSender) deviceTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token FROM user_devices WHERE user_id = $1 AND is_active = true`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no active tokens for user %s", userID)
	}
	return tokens, rows.Err()
}
