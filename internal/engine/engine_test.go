package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/signal"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/store"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type fakeStore struct {
	mu        sync.Mutex
	goals     map[string]*model.Goal
	events    []model.SessionEvent
	snapshots map[string]*model.ProgressSnapshot
	schedules map[string]*model.NotificationSchedule
	records   []model.MessageRecord
	deferred  map[string]time.Time
	rearmed   map[string]time.Time
	claimErr  error
	eventsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		goals:     make(map[string]*model.Goal),
		snapshots: make(map[string]*model.ProgressSnapshot),
		schedules: make(map[string]*model.NotificationSchedule),
		deferred:  make(map[string]time.Time),
		rearmed:   make(map[string]time.Time),
	}
}

func (f *fakeStore) GoalByID(_ context.Context, id string) (*model.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.goals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeStore) OpenGoalsByUser(_ context.Context, userID string) ([]model.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Goal
	for _, g := range f.goals {
		if g.UserID == userID && g.Status == model.GoalActive {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeStore) OpenGoalsByUserMetrics(_ context.Context, userID string, metrics []model.Metric) ([]model.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	match := make(map[model.Metric]bool, len(metrics))
	for _, m := range metrics {
		match[m] = true
	}
	var out []model.Goal
	for _, g := range f.goals {
		if g.UserID == userID && g.Status == model.GoalActive && match[g.Metric] {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateGoalStatus(_ context.Context, id string, status model.GoalStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.goals[id]
	if !ok {
		return store.ErrNotFound
	}
	g.Status = status
	return nil
}

func (f *fakeStore) InsertSessionEvent(_ context.Context, ev *model.SessionEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.events {
		if existing.SessionID == ev.SessionID {
			return false, nil
		}
	}
	f.events = append(f.events, *ev)
	return true, nil
}

func (f *fakeStore) EventsInRange(_ context.Context, userID string, from, to time.Time) ([]model.SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	var out []model.SessionEvent
	for _, ev := range f.events {
		if ev.UserID == userID && !ev.OccurredAt.Before(from) && ev.OccurredAt.Before(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertSnapshot(_ context.Context, snap *model.ProgressSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *snap
	f.snapshots[snap.GoalID] = &cp
	return nil
}

func (f *fakeStore) ScheduleByGoal(_ context.Context, goalID string) (*model.NotificationSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[goalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) DeferSchedule(_ context.Context, goalID string, until time.Time, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[goalID]
	if !ok || s.Version != version {
		return store.ErrConflict
	}
	s.Version++
	f.deferred[goalID] = until
	return nil
}

func (f *fakeStore) RearmSchedule(_ context.Context, goalID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rearmed[goalID] = at
	return nil
}

func (f *fakeStore) LatestRecord(_ context.Context, goalID string) (*model.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.MessageRecord
	for i := range f.records {
		r := &f.records[i]
		if r.GoalID == goalID && (latest == nil || r.SentAt.After(latest.SentAt)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeStore) SentSince(_ context.Context, userID string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.UserID == userID && !r.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ClaimSend(_ context.Context, c store.Claim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return f.claimErr
	}
	for _, r := range f.records {
		if r.DedupeKey == c.Record.DedupeKey {
			return store.ErrConflict
		}
	}
	s, ok := f.schedules[c.Record.GoalID]
	if !ok || s.Version != c.Version {
		return store.ErrConflict
	}
	f.records = append(f.records, c.Record)
	s.Version++
	s.CooldownUntil = c.CooldownUntil
	s.DailySendCount = c.DailySendCount
	s.DailyCountResetAt = c.DailyResetAt
	for _, m := range c.MilestonesHit {
		if !s.MilestoneHit(m) {
			s.MilestonesHit = append(s.MilestonesHit, m)
		}
	}
	s.QuietBypassUsed = s.QuietBypassUsed || c.UsedQuietBypass
	s.NextRunAt = nil
	return nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []model.MessageRequest
	err  error
}

func (f *fakeDispatcher) Send(_ context.Context, req model.MessageRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// --------------------------------------------------------------------------
// Fixtures
// --------------------------------------------------------------------------

var goalStart = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

// afternoon on day 10 of the goal, outside default quiet hours.
var evalTime = goalStart.AddDate(0, 0, 10).Add(14 * time.Hour)

func testEngine(st Store, d *fakeDispatcher) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := Options{
		Params:    signal.DefaultParams(),
		Cooldown:  18 * time.Hour,
		DailyCap:  2,
		Channel:   "push",
		Workers:   1,
		QueueSize: 16,
	}
	eng := New(st, d, opts, logger)
	eng.now = func() time.Time { return evalTime }
	return eng
}

// seedGoal installs a 30-day deadline goal with its schedule.
func seedGoal(st *fakeStore, id string, target float64) *model.Goal {
	deadline := goalStart.AddDate(0, 0, 30)
	g := &model.Goal{
		ID:          id,
		UserID:      "u1",
		Metric:      model.MetricDistanceTotal,
		TargetValue: target,
		Window:      model.WindowUntilDeadline,
		StartAt:     goalStart,
		DeadlineAt:  &deadline,
		Status:      model.GoalActive,
	}
	st.goals[id] = g
	st.schedules[id] = model.DefaultSchedule(id, "u1", goalStart)
	return g
}

func addSession(st *fakeStore, id string, at time.Time, km float64) {
	st.events = append(st.events, model.SessionEvent{
		SessionID:  id,
		UserID:     "u1",
		OccurredAt: at,
		DistanceKm: km,
	})
}

// --------------------------------------------------------------------------
// Pipeline
// --------------------------------------------------------------------------

func TestEvaluateGoalSendsWhenSeverelyBehind(t *testing.T) {
	// 5 of 50 at day 10 of 30: 10% progress vs 33% expected. Mid-window
	// the shortfall is pacing feedback, not a deadline emergency.
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	addSession(st, "s1", goalStart.AddDate(0, 0, 1), 5)

	d := &fakeDispatcher{}
	eng := testEngine(st, d)

	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)

	assert.True(t, out.Sent)
	assert.Equal(t, model.CategoryBehindPace, out.Category)
	assert.InDelta(t, 10.0, out.ProgressPercent, 1e-6)
	assert.GreaterOrEqual(t, out.Score, 0.6)

	require.Len(t, st.records, 1)
	rec := st.records[0]
	assert.Equal(t, "g1", rec.GoalID)
	assert.Equal(t, "push", rec.Channel)
	assert.Equal(t, model.CategoryBehindPace, rec.Category)

	require.Equal(t, 1, d.count())
	req := d.sent[0]
	assert.Equal(t, "u1", req.UserID)
	assert.Contains(t, req.ComputedVariables, "needed_by_next_checkpoint")
	assert.Equal(t, "km", req.ComputedVariables["unit"])

	// Snapshot persisted and schedule re-armed for the next preferred time.
	assert.Contains(t, st.snapshots, "g1")
	assert.Contains(t, st.rearmed, "g1")
	next := st.rearmed["g1"]
	assert.Equal(t, 18, next.Hour())
	assert.True(t, next.After(evalTime))
}

func TestEvaluateGoalNearDeadlineEscalatesToUrgent(t *testing.T) {
	// The same shortfall three days before the deadline is an emergency.
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	addSession(st, "s1", goalStart.AddDate(0, 0, 1), 5)

	eng := testEngine(st, &fakeDispatcher{})
	eng.now = func() time.Time { return goalStart.AddDate(0, 0, 27).Add(14 * time.Hour) }

	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)

	assert.True(t, out.Sent)
	assert.Equal(t, model.CategoryDeadlineUrgent, out.Category)
}

func TestEvaluateGoalDailyCapBlockRearms(t *testing.T) {
	// The sweep claim cleared next_run_at; a capped goal must re-enter the
	// sweep instead of silently dropping out of the daily batch.
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	addSession(st, "s1", goalStart.AddDate(0, 0, 1), 5)
	st.records = append(st.records,
		model.MessageRecord{ID: "r1", GoalID: "g9", UserID: "u1", SentAt: evalTime.Add(-2 * time.Hour), DedupeKey: "k1"},
		model.MessageRecord{ID: "r2", GoalID: "g9", UserID: "u1", SentAt: evalTime.Add(-time.Hour), DedupeKey: "k2"},
	)

	eng := testEngine(st, &fakeDispatcher{})
	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)

	assert.False(t, out.Sent)
	assert.Equal(t, "daily_cap_reached", out.Reason)
	assert.Len(t, st.records, 2)
	assert.Empty(t, st.deferred)
	assert.Contains(t, st.rearmed, "g1")
}

func TestEvaluateGoalMilestoneJumpRetiresSkippedSteps(t *testing.T) {
	// A jump straight to 80% announces the 75% milestone and retires the
	// 25/50 marks with it, so they never fire later as stale messages.
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	addSession(st, "s1", goalStart.AddDate(0, 0, 1), 10)
	addSession(st, "s2", goalStart.AddDate(0, 0, 2), 10)
	addSession(st, "s3", goalStart.AddDate(0, 0, 3), 20)

	eng := testEngine(st, &fakeDispatcher{})
	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)

	assert.True(t, out.Sent)
	assert.Equal(t, model.CategoryMilestone, out.Category)
	require.Len(t, st.records, 1)
	assert.Equal(t, "g1:milestone:75", st.records[0].DedupeKey)
	assert.ElementsMatch(t, []int{25, 50, 75}, st.schedules["g1"].MilestonesHit)
}

func TestEvaluateGoalBelowThresholdRearms(t *testing.T) {
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	// On pace: 17 of 50 at day 10 of 30. The 25% milestone is already
	// retired, so nothing scores near the threshold.
	addSession(st, "s1", goalStart.AddDate(0, 0, 9), 17)
	st.schedules["g1"].MilestonesHit = []int{25}

	eng := testEngine(st, &fakeDispatcher{})
	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)

	assert.False(t, out.Sent)
	assert.Equal(t, "below threshold", out.Reason)
	assert.Empty(t, st.records)
	assert.Contains(t, st.rearmed, "g1")
}

func TestEvaluateGoalQuietHoursDefers(t *testing.T) {
	// A rolling-window goal has zero deadline urgency, so a behind_pace
	// message cannot exercise the quiet-hours bypass and must defer.
	st := newFakeStore()
	night := goalStart.AddDate(0, 0, 10).Add(23*time.Hour + 30*time.Minute)
	g := seedGoal(st, "g1", 50)
	g.Window = model.WindowRolling7d
	g.DeadlineAt = nil
	addSession(st, "s1", night.Add(-4*24*time.Hour), 20) // 40%, severely behind a fully elapsed window, 4 days idle

	eng := testEngine(st, &fakeDispatcher{})
	eng.now = func() time.Time { return night }

	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)

	assert.False(t, out.Sent)
	assert.True(t, out.Deferred)
	assert.Empty(t, st.records)

	until, ok := st.deferred["g1"]
	require.True(t, ok)
	assert.Equal(t, 9, until.Hour())
	assert.True(t, until.After(night))
}

func TestEvaluateGoalClaimConflictIsQuietNoOp(t *testing.T) {
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	addSession(st, "s1", goalStart.AddDate(0, 0, 1), 5)
	st.claimErr = store.ErrConflict

	d := &fakeDispatcher{}
	eng := testEngine(st, d)

	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)

	assert.False(t, out.Sent)
	assert.Equal(t, "claim conflict", out.Reason)
	assert.Zero(t, d.count(), "losing the claim race must not dispatch")
}

func TestEvaluateGoalDispatchFailureKeepsClaim(t *testing.T) {
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	addSession(st, "s1", goalStart.AddDate(0, 0, 1), 5)

	d := &fakeDispatcher{err: errors.New("push gateway down")}
	eng := testEngine(st, d)

	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)

	// The claim is the source of truth; a flaky dispatcher cannot trigger
	// a retry storm.
	assert.True(t, out.Sent)
	assert.Len(t, st.records, 1)
}

func TestEvaluateGoalConcurrentClaimsExactlyOneWins(t *testing.T) {
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	addSession(st, "s1", goalStart.AddDate(0, 0, 1), 5)

	d := &fakeDispatcher{}
	eng := testEngine(st, d)

	const racers = 8
	var wg sync.WaitGroup
	sent := make([]bool, racers)
	for i := 0; i < racers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := eng.EvaluateGoal(context.Background(), "g1")
			if err == nil {
				sent[i] = out.Sent
			}
		}()
	}
	wg.Wait()

	wins := 0
	for _, s := range sent {
		if s {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one racer may claim the send")
	assert.Len(t, st.records, 1)
	assert.Equal(t, 1, d.count())
}

func TestEvaluateGoalCompletion(t *testing.T) {
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	addSession(st, "s1", goalStart.AddDate(0, 0, 2), 30)
	addSession(st, "s2", goalStart.AddDate(0, 0, 5), 25)

	eng := testEngine(st, &fakeDispatcher{})
	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, model.CategoryCompletion, out.Category)
	assert.True(t, out.Sent)
	assert.Equal(t, model.GoalCompleted, st.goals["g1"].Status)
	assert.Contains(t, st.schedules["g1"].MilestonesHit, 100)
}

func TestEvaluateGoalExpiry(t *testing.T) {
	st := newFakeStore()
	g := seedGoal(st, "g1", 50)
	past := evalTime.Add(-time.Hour)
	g.DeadlineAt = &past

	eng := testEngine(st, &fakeDispatcher{})
	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, "expired", out.Reason)
	assert.Equal(t, model.GoalExpired, st.goals["g1"].Status)
	assert.Empty(t, st.records)
}

func TestEvaluateGoalSkipsNonActive(t *testing.T) {
	st := newFakeStore()
	g := seedGoal(st, "g1", 50)
	g.Status = model.GoalPaused

	eng := testEngine(st, &fakeDispatcher{})
	out, err := eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "goal not active", out.Reason)
	assert.Empty(t, st.records)
	assert.Contains(t, st.rearmed, "g1", "a paused goal stays in the sweep")

	g.Status = model.GoalCanceled
	delete(st.rearmed, "g1")
	_, err = eng.EvaluateGoal(context.Background(), "g1")
	require.NoError(t, err)
	assert.NotContains(t, st.rearmed, "g1", "terminal goals drop out of the sweep")
}

func TestEvaluateGoalInvalidGoal(t *testing.T) {
	st := newFakeStore()
	g := seedGoal(st, "g1", 50)
	g.Metric = "vertical_leap"

	eng := testEngine(st, &fakeDispatcher{})
	_, err := eng.EvaluateGoal(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrInvalidGoal)
}

func TestEvaluateGoalDataGap(t *testing.T) {
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	st.eventsErr = errors.New("connection reset")

	eng := testEngine(st, &fakeDispatcher{})
	_, err := eng.EvaluateGoal(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrDataGap)
	assert.NotContains(t, st.snapshots, "g1", "a data gap must not produce a zero-progress snapshot")
	assert.Contains(t, st.rearmed, "g1", "the next daily batch retries a data gap")
}

func TestEvaluateGoalUnknownTimezone(t *testing.T) {
	st := newFakeStore()
	g := seedGoal(st, "g1", 50)
	g.Timezone = "Mars/Olympus_Mons"

	eng := testEngine(st, &fakeDispatcher{})
	_, err := eng.EvaluateGoal(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrClockAnomaly)
	assert.Contains(t, st.rearmed, "g1")
}

func TestEvaluateGoalNotFound(t *testing.T) {
	eng := testEngine(newFakeStore(), &fakeDispatcher{})
	_, err := eng.EvaluateGoal(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --------------------------------------------------------------------------
// Session handling and batches
// --------------------------------------------------------------------------

func TestHandleSessionEnqueuesAffectedGoals(t *testing.T) {
	st := newFakeStore()
	seedGoal(st, "g1", 50) // distance goal: affected
	g2 := seedGoal(st, "g2", 3000)
	g2.Metric = model.MetricElevationGainTotal // no elevation on the event

	eng := testEngine(st, &fakeDispatcher{})
	ev := &model.SessionEvent{
		SessionID:  "s1",
		UserID:     "u1",
		OccurredAt: evalTime.Add(-time.Hour),
		DistanceKm: 5,
	}
	require.NoError(t, eng.HandleSession(context.Background(), ev))

	require.Len(t, eng.queue, 1)
	trig := <-eng.queue
	assert.Equal(t, TriggerSession, trig.Kind)
	assert.Equal(t, "g1", trig.GoalID)
	assert.Len(t, st.events, 1)
}

func TestHandleSessionRedeliveryIsIdempotent(t *testing.T) {
	st := newFakeStore()
	seedGoal(st, "g1", 50)

	eng := testEngine(st, &fakeDispatcher{})
	ev := &model.SessionEvent{SessionID: "s1", UserID: "u1", OccurredAt: evalTime.Add(-time.Hour), DistanceKm: 5}

	require.NoError(t, eng.HandleSession(context.Background(), ev))
	require.NoError(t, eng.HandleSession(context.Background(), ev))

	assert.Len(t, st.events, 1, "redelivered session stored once")
	assert.Len(t, eng.queue, 2, "both deliveries still trigger a recompute")
}

func TestRunUserBatchIsolatesFailures(t *testing.T) {
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	addSession(st, "s1", goalStart.AddDate(0, 0, 1), 5)
	seedGoal(st, "g2", 50)
	delete(st.schedules, "g2") // schedule lookup fails for g2 only
	addSession(st, "s2", goalStart.AddDate(0, 0, 1), 5)

	eng := testEngine(st, &fakeDispatcher{})
	result := eng.RunUserBatch(context.Background(), "u1")

	assert.Equal(t, 2, result.GoalsEvaluated)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.MessagesSent)
	assert.Contains(t, result.Summary(), "evaluated=2")
}

func TestRunUsersBatchAggregates(t *testing.T) {
	st := newFakeStore()
	seedGoal(st, "g1", 50)
	addSession(st, "s1", goalStart.AddDate(0, 0, 1), 5)

	g2 := seedGoal(st, "g2", 50)
	g2.UserID = "u2"
	st.schedules["g2"].UserID = "u2"
	st.events = append(st.events, model.SessionEvent{
		SessionID: "s2", UserID: "u2", OccurredAt: goalStart.AddDate(0, 0, 1), DistanceKm: 5,
	})

	eng := testEngine(st, &fakeDispatcher{})
	result := eng.RunUsersBatch(context.Background(), []string{"u1", "u2"}, 2)

	assert.Equal(t, 2, result.GoalsEvaluated)
	assert.Equal(t, 2, result.MessagesSent)
	assert.Empty(t, result.Errors)
}

// --------------------------------------------------------------------------
// Dedupe keys
// --------------------------------------------------------------------------

func TestDedupeKeyShapes(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 6, 11, 14, 0, 0, 0, loc)
	sig := signal.Signals{Milestone: 50}

	assert.Equal(t, "g1:milestone:50", dedupeKey("g1", model.CategoryMilestone, sig, now, loc))
	assert.Equal(t, "g1:completion", dedupeKey("g1", model.CategoryCompletion, sig, now, loc))
	assert.Equal(t, "g1:behind_pace:2026-06-11", dedupeKey("g1", model.CategoryBehindPace, sig, now, loc))
	assert.Equal(t, fmt.Sprintf("g1:inactivity:%s", now.Format("2006-01-02")),
		dedupeKey("g1", model.CategoryInactivity, sig, now, loc))
}
