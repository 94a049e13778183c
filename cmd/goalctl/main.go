// Command goalctl is the goal evaluation admin CLI.
//
// Usage:
//
//	goalctl evaluate --goal <goal-id>
//	goalctl batch --user <user-id>
//	goalctl sweep --max 200
//	goalctl expire
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/config"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/db"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/dispatch"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/engine"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "goalctl",
		Short: "Goal evaluation admin CLI",
	}

	root.AddCommand(evaluateCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(expireCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// evaluate command
// --------------------------------------------------------------------------

func evaluateCmd() *cobra.Command {
	var goalID string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the evaluation pipeline for a single goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" {
				return fmt.Errorf("--goal is required")
			}
			return runEval(func(ctx context.Context, _ *store.Store, eng *engine.Engine) error {
				out, err := eng.EvaluateGoal(ctx, goalID)
				if err != nil {
					return err
				}
				logger.Info("evaluation complete",
					"goal_id", out.GoalID,
					"progress_percent", out.ProgressPercent,
					"score", out.Score,
					"category", out.Category,
					"sent", out.Sent,
					"deferred", out.Deferred,
					"reason", out.Reason)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "Goal ID to evaluate")
	return cmd
}

// --------------------------------------------------------------------------
// batch command
// --------------------------------------------------------------------------

func batchCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate all open goals for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			return runEval(func(ctx context.Context, _ *store.Store, eng *engine.Engine) error {
				start := time.Now()
				result := eng.RunUserBatch(ctx, userID)
				logger.Info("batch finished",
					"user_id", userID,
					"duration", time.Since(start).Round(time.Millisecond),
					"summary", result.Summary())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID whose open goals to evaluate")
	return cmd
}

// --------------------------------------------------------------------------
// sweep command
// --------------------------------------------------------------------------

func sweepCmd() *cobra.Command {
	var max int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Claim and evaluate schedules whose next run time has arrived",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(func(ctx context.Context, st *store.Store, eng *engine.Engine) error {
				due, err := st.ClaimDueSchedules(ctx, time.Now().UTC(), max)
				if err != nil {
					return fmt.Errorf("claim due schedules: %w", err)
				}
				logger.Info("claimed due schedules", "count", len(due))
				for _, item := range due {
					if _, err := eng.EvaluateGoal(ctx, item.GoalID); err != nil {
						logger.Error("evaluate failed", "goal_id", item.GoalID, "error", err)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&max, "max", 200, "Maximum schedules to claim")
	return cmd
}

// --------------------------------------------------------------------------
// expire command
// --------------------------------------------------------------------------

func expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Transition overdue active goals to expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(func(ctx context.Context, st *store.Store, _ *engine.Engine) error {
				n, err := st.ExpireOverdueGoals(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				logger.Info("expired overdue goals", "count", n)
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runEval handles config loading, DB connection, engine construction, and
// context cancellation.
func runEval(fn func(ctx context.Context, st *store.Store, eng *engine.Engine) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool.Pool)
	sender := dispatch.NewPushSender(pool.Pool, cfg.FCMCredentialsFile, logger)
	eng := engine.New(st, sender, engine.OptionsFrom(cfg), logger)

	return fn(ctx, st, eng)
}
