package signal

import (
	"time"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/window"
)

// NextBestAction computes how much more of the goal's metric the user needs
// by the next daily checkpoint to be back on expected pace:
//
//	max(0, target * expected_progress(now + 1 day) - current)
//
// Purely informational — it enriches the outbound payload and never decides
// whether a message is sent.
func NextBestAction(g *model.Goal, snap *model.ProgressSnapshot, now time.Time, loc *time.Location) float64 {
	span, err := window.Resolve(g, now, loc)
	if err != nil {
		return 0
	}

	checkpoint := now.Add(24 * time.Hour)
	expectedNext := clamp01(checkpoint.Sub(span.Start).Hours() / 24 / span.Days())

	needed := g.TargetValue*expectedNext - snap.CurrentValue
	if needed < 0 {
		return 0
	}
	return needed
}
