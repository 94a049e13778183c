package model

import "time"

// SessionEvent is a completed workout session as delivered by the session
// pipeline. Redelivery is harmless: the store keys events on SessionID and
// progress is always recomputed from the event log, never incremented.
type SessionEvent struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	OccurredAt      time.Time `json:"occurred_at"`
	DistanceKm      float64   `json:"distance_km"`
	DurationMinutes float64   `json:"duration_minutes"`
	ElevationGainM  float64   `json:"elevation_gain_m"`
	Steps           int64     `json:"steps"`
	LoadKg          float64   `json:"load_kg"`
	PowerPoints     float64   `json:"power_points"`
	Tags            []string  `json:"tags,omitempty"`
	Timezone        string    `json:"timezone"`
}

// HasTag reports whether the session carries the given tag.
func (e *SessionEvent) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ProgressSnapshot is the recomputed progress of one goal. Owned by the
// aggregator: overwritten on every evaluation, never patched incrementally,
// so backfilled or edited sessions cannot cause drift.
type ProgressSnapshot struct {
	GoalID               string
	CurrentValue         float64
	ProgressPercent      float64
	LastEvaluatedAt      time.Time
	LastContributingAt   time.Time // newest qualifying session; zero if none
	ContributingEventIDs []string
}
