package model

import "time"

// Category classifies why a message is being sent. The dispatch collaborator
// turns the category plus computed variables into user-facing copy; this
// engine never writes prose.
type Category string

const (
	CategoryBehindPace     Category = "behind_pace"
	CategoryOnTrack        Category = "on_track"
	CategoryMilestone      Category = "milestone"
	CategoryCompletion     Category = "completion"
	CategoryDeadlineUrgent Category = "deadline_urgent"
	CategoryInactivity     Category = "inactivity"
)

// Urgent reports whether the category may bypass quiet hours (once per goal)
// when deadline urgency is severe.
func (c Category) Urgent() bool {
	return c == CategoryDeadlineUrgent
}

// MessageRecord is one row of the append-only send log. The guard derives
// cooldown and daily-cap state from these rows rather than trusting cached
// schedule fields, so restarts cannot reopen a cooldown.
type MessageRecord struct {
	ID             string
	GoalID         string
	UserID         string
	Channel        string
	Category       Category
	SentAt         time.Time
	RelevanceScore float64
	DedupeKey      string
}

// MessageRequest is the structured payload handed to the dispatch boundary
// once a send has been claimed.
type MessageRequest struct {
	UserID            string         `json:"user_id"`
	GoalID            string         `json:"goal_id"`
	Category          Category       `json:"category"`
	ComputedVariables map[string]any `json:"computed_variables"`
	RelevanceScore    float64        `json:"relevance_score"`
}
