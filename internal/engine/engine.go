// Package engine is the evaluation orchestrator: the only component with
// I/O side effects. Both entry points — session-completion triggers pulled
// from a queue, and the daily per-user batch — funnel into one pipeline:
// aggregate progress, detect and score signals, run the schedule guard,
// claim the send, enrich with the next-best-action, and hand the message to
// the dispatch boundary.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/config"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/dispatch"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/signal"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/store"
)

// Error taxonomy. Everything is caught at the per-goal boundary so one
// goal's failure never aborts its siblings.
var (
	// ErrInvalidGoal marks a goal definition this engine refuses to
	// evaluate (unknown metric, non-positive target). The goal is inert.
	ErrInvalidGoal = errors.New("engine: invalid goal definition")

	// ErrDataGap marks a temporarily unavailable event source. The cycle
	// is skipped and the next trigger retries; never treated as zero
	// progress.
	ErrDataGap = errors.New("engine: aggregation data gap")

	// ErrClockAnomaly marks unresolvable timezone or negative elapsed
	// time. Evaluation is deferred one cycle rather than producing a
	// nonsensical score.
	ErrClockAnomaly = errors.New("engine: clock anomaly")
)

// Store is the durable state the engine needs. Implemented by
// internal/store over Postgres; tests substitute a fake.
type Store interface {
	GoalByID(ctx context.Context, id string) (*model.Goal, error)
	OpenGoalsByUser(ctx context.Context, userID string) ([]model.Goal, error)
	OpenGoalsByUserMetrics(ctx context.Context, userID string, metrics []model.Metric) ([]model.Goal, error)
	UpdateGoalStatus(ctx context.Context, id string, status model.GoalStatus) error

	InsertSessionEvent(ctx context.Context, ev *model.SessionEvent) (bool, error)
	EventsInRange(ctx context.Context, userID string, from, to time.Time) ([]model.SessionEvent, error)

	UpsertSnapshot(ctx context.Context, snap *model.ProgressSnapshot) error

	ScheduleByGoal(ctx context.Context, goalID string) (*model.NotificationSchedule, error)
	DeferSchedule(ctx context.Context, goalID string, until time.Time, version int64) error
	RearmSchedule(ctx context.Context, goalID string, at time.Time) error

	LatestRecord(ctx context.Context, goalID string) (*model.MessageRecord, error)
	SentSince(ctx context.Context, userID string, since time.Time) (int, error)
	ClaimSend(ctx context.Context, c store.Claim) error
}

// Options tune one engine instance.
type Options struct {
	Params    signal.Params
	Cooldown  time.Duration
	DailyCap  int
	Channel   string // message channel recorded on sends
	Workers   int
	QueueSize int
}

// OptionsFrom maps service configuration onto engine options.
func OptionsFrom(cfg *config.Config) Options {
	p := signal.DefaultParams()
	p.Weights = signal.Weights{
		Behind:     cfg.WeightBehind,
		Milestone:  cfg.WeightMilestone,
		Inactivity: cfg.WeightInactivity,
		Deadline:   cfg.WeightDeadline,
		Habit:      cfg.WeightHabit,
	}
	p.InactivityAfter = cfg.InactivityAfter
	p.ScoreThreshold = cfg.ScoreThreshold
	p.SmallTargetCutoff = cfg.SmallTargetCutoff

	return Options{
		Params:    p,
		Cooldown:  cfg.CooldownDuration,
		DailyCap:  cfg.DailyCap,
		Channel:   "push",
		Workers:   cfg.EvalWorkers,
		QueueSize: cfg.EvalQueueSize,
	}
}

// Engine is one explicit orchestrator instance with injected storage and
// dispatch. No globals: parallel instances (tests, shadow evaluation) do
// not share state — all cross-instance coordination happens through the
// store's conditional writes.
type Engine struct {
	store      Store
	dispatcher dispatch.Dispatcher
	opts       Options
	logger     *slog.Logger
	queue      chan Trigger

	// now is the clock; replaced in tests.
	now func() time.Time
}

// New creates an engine. A nil dispatcher disables delivery (claims are
// still made, which preserves at-most-one-claim semantics in shadow mode).
func New(st Store, d dispatch.Dispatcher, opts Options, logger *slog.Logger) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.Channel == "" {
		opts.Channel = "push"
	}
	return &Engine{
		store:      st,
		dispatcher: d,
		opts:       opts,
		logger:     logger,
		queue:      make(chan Trigger, opts.QueueSize),
		now:        time.Now,
	}
}
