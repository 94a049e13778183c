// Package signal derives behavioral signals from a goal's progress and turns
// them into a single relevance score plus a message category. Everything in
// this package is a pure function of its inputs; the schedule guard and the
// store decide whether a scored message may actually go out.
package signal

import (
	"fmt"
	"time"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/window"
)

// --------------------------------------------------------------------------
// Tuning parameters
// --------------------------------------------------------------------------

// Weights are the relevance-score contributions of each signal.
type Weights struct {
	Behind     float64
	Milestone  float64
	Inactivity float64
	Deadline   float64
	Habit      float64
}

// Params tunes detection thresholds and scoring. All values are
// config-overridable; the defaults carry the product-approved numbers.
type Params struct {
	Weights           Weights
	SevereMultiplier  float64       // behind weight multiplier when severely behind
	BehindThreshold   float64       // delta below this is behind
	SevereThreshold   float64       // delta below this is severely behind
	AheadThreshold    float64       // delta above this is ahead
	InactivityAfter   time.Duration // no qualifying session for this long
	SmallTargetCutoff float64       // targets below this use the sparse milestone ladder
	SevereUrgency     float64       // deadline urgency at or above this may bypass quiet hours
	ScoreThreshold    float64       // minimum score for a message to be eligible
	GatePenalty       float64       // subtracted per violated schedule gate
}

// DefaultParams returns the default tuning.
func DefaultParams() Params {
	return Params{
		Weights: Weights{
			Behind:     0.6,
			Milestone:  0.4,
			Inactivity: 0.5,
			Deadline:   0.5,
			Habit:      0.2,
		},
		SevereMultiplier:  2.0,
		BehindThreshold:   -0.10,
		SevereThreshold:   -0.20,
		AheadThreshold:    0.05,
		InactivityAfter:   3 * 24 * time.Hour,
		SmallTargetCutoff: 20,
		SevereUrgency:     0.8,
		ScoreThreshold:    0.6,
		GatePenalty:       1.0,
	}
}

// Milestone ladders. Small targets jump in coarse steps because a single
// session can clear several fine-grained percentages at once.
var (
	ladderSmall = []int{10, 30, 60, 100}
	ladderLarge = []int{25, 50, 75, 100}
)

// --------------------------------------------------------------------------
// Detection
// --------------------------------------------------------------------------

// Signals is the structured signal set for one evaluation of one goal.
type Signals struct {
	ExpectedProgress float64
	Delta            float64
	Behind           bool
	SeverelyBehind   bool
	Ahead            bool
	Milestone        int // next unhit ladder percentage reached; 0 if none
	Inactive         bool
	DeadlineUrgency  float64
	HabitMatch       bool
	Recovered        bool // crossed from behind back to ahead since the last message
	Completed        bool
	DaysRemaining    float64
}

// Detect computes the signal set for (goal, snapshot, schedule, now).
// lastEventAt is the newest qualifying session time (zero if none);
// lastCategory is the category of the goal's most recent message, used for
// the one-shot back-on-track transition. A negative elapsed time is a clock
// anomaly and returned as an error so the evaluation can be deferred.
func Detect(
	g *model.Goal,
	snap *model.ProgressSnapshot,
	sched *model.NotificationSchedule,
	lastEventAt time.Time,
	lastCategory model.Category,
	now time.Time,
	loc *time.Location,
	p Params,
) (Signals, error) {
	span, err := window.Resolve(g, now, loc)
	if err != nil {
		return Signals{}, err
	}

	elapsed := now.Sub(span.Start)
	if elapsed < 0 {
		return Signals{}, fmt.Errorf("goal %s: negative elapsed time (now %v before window start %v)", g.ID, now, span.Start)
	}

	totalDays := span.Days()
	expected := clamp01(elapsed.Hours() / 24 / totalDays)

	progress := snap.ProgressPercent / 100
	delta := progress - expected

	var sig Signals
	sig.ExpectedProgress = expected
	sig.Delta = delta
	sig.Behind = delta < p.BehindThreshold
	sig.SeverelyBehind = delta < p.SevereThreshold
	sig.Ahead = delta > p.AheadThreshold
	sig.Completed = snap.ProgressPercent >= 100
	sig.Recovered = sig.Ahead && lastCategory == model.CategoryBehindPace

	sig.Milestone = nextMilestone(g.TargetValue, snap.ProgressPercent, sched, p)

	if !lastEventAt.IsZero() {
		sig.Inactive = now.Sub(lastEventAt) >= p.InactivityAfter
	} else {
		// Never trained inside the window: inactive once the window has
		// been open long enough to matter.
		sig.Inactive = elapsed >= p.InactivityAfter
	}

	if now.Before(span.End) {
		sig.DaysRemaining = span.End.Sub(now).Hours() / 24
	}
	sig.DeadlineUrgency = deadlineUrgency(g, snap, elapsed, sig.DaysRemaining)

	if sched.HabitWindow != nil {
		sig.HabitMatch = sched.HabitWindow.Contains(now.In(loc))
	}

	return sig, nil
}

func ladderFor(target float64, p Params) []int {
	if target < p.SmallTargetCutoff {
		return ladderSmall
	}
	return ladderLarge
}

// nextMilestone returns the highest unhit ladder percentage the goal has
// reached, or 0 when there is none. The claim retires every step at or
// below the announced one, so lower steps never fire late.
func nextMilestone(target, progressPct float64, sched *model.NotificationSchedule, p Params) int {
	best := 0
	for _, m := range ladderFor(target, p) {
		if progressPct >= float64(m) && !sched.MilestoneHit(m) {
			best = m
		}
	}
	return best
}

// Urgency ramps in over the back stretch of the window: zero until half of
// it has elapsed, full weight from 80% on. A shortfall early in the window
// is pacing feedback (behind_pace), not a deadline emergency.
const (
	urgencyRampStart = 0.5
	urgencyRampEnd   = 0.8
)

// deadlineUrgency grades how tight the remaining schedule is: the ratio of
// days needed at the trailing rate to days actually remaining, scaled by
// window proximity. Ratios at or below 0.75 score zero; 1.25 and up
// saturate once the ramp is fully in.
func deadlineUrgency(g *model.Goal, snap *model.ProgressSnapshot, elapsed time.Duration, daysRemaining float64) float64 {
	remaining := g.TargetValue - snap.CurrentValue
	if remaining <= 0 || daysRemaining <= 0 {
		return 0
	}
	daysElapsed := elapsed.Hours() / 24
	if daysElapsed <= 0 {
		return 0
	}
	fraction := daysElapsed / (daysElapsed + daysRemaining)
	proximity := clamp01((fraction - urgencyRampStart) / (urgencyRampEnd - urgencyRampStart))
	if proximity == 0 {
		return 0
	}
	rate := snap.CurrentValue / daysElapsed
	if rate <= 0 {
		return proximity // no progress at all and work remaining
	}
	ratio := (remaining / rate) / daysRemaining
	return proximity * clamp01((ratio-0.75)/0.5)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
