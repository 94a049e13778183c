package signal

import "github.com/orourkera/go-ruck-yourself-sub005/internal/model"

// Gates mirror the schedule guard's hard checks. They block a send on their
// own, but also feed the score as large penalties so the score alone stays
// diagnostic in logs and audits.
type Gates struct {
	CooldownActive  bool
	QuietHours      bool
	DailyCapReached bool
}

// Score combines the signal set into a single relevance score.
func Score(sig Signals, gates Gates, p Params) float64 {
	var score float64

	if sig.Behind {
		w := p.Weights.Behind
		if sig.SeverelyBehind {
			w *= p.SevereMultiplier
		}
		score += w
	}
	if sig.Milestone != 0 || sig.Recovered {
		score += p.Weights.Milestone
	}
	if sig.Inactive {
		score += p.Weights.Inactivity
	}
	score += p.Weights.Deadline * sig.DeadlineUrgency
	if sig.HabitMatch {
		score += p.Weights.Habit
	}

	if gates.CooldownActive {
		score -= p.GatePenalty
	}
	if gates.QuietHours {
		score -= p.GatePenalty
	}
	if gates.DailyCapReached {
		score -= p.GatePenalty
	}
	return score
}

// Categorize picks the message category for a signal set, in priority order.
// When both behind and milestone fire in the same evaluation, behind_pace
// wins (it is actionable) and the milestone is suppressed without being
// recorded as hit, so it can still fire once the pace recovers. The second
// return is false when no category applies.
func Categorize(sig Signals, p Params) (model.Category, bool) {
	switch {
	case sig.Completed:
		return model.CategoryCompletion, true
	case sig.DeadlineUrgency >= p.SevereUrgency:
		return model.CategoryDeadlineUrgent, true
	case sig.Behind:
		return model.CategoryBehindPace, true
	case sig.Milestone != 0:
		return model.CategoryMilestone, true
	case sig.Recovered:
		return model.CategoryOnTrack, true
	case sig.Inactive:
		return model.CategoryInactivity, true
	}
	return "", false
}

// MilestonesToRecord returns the ladder percentages to mark hit for this
// send, or nil. A milestone send retires every ladder step at or below the
// announced one, so a single jump past several steps never re-notifies the
// ones it skipped; a completion retires the whole ladder. A milestone
// suppressed by behind_pace is not recorded.
func MilestonesToRecord(cat model.Category, sig Signals, target float64, p Params) []int {
	var upTo int
	switch cat {
	case model.CategoryMilestone:
		upTo = sig.Milestone
	case model.CategoryCompletion:
		upTo = 100
	default:
		return nil
	}
	var hit []int
	for _, m := range ladderFor(target, p) {
		if m <= upTo {
			hit = append(hit, m)
		}
	}
	return hit
}
