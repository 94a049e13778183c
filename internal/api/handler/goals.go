package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/api/respond"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/engine"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/store"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/window"
)

type createGoalRequest struct {
	UserID      string            `json:"user_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Metric      model.Metric      `json:"metric"`
	TargetValue float64           `json:"target_value"`
	Window      model.Window      `json:"window"`
	Constraints model.Constraints `json:"constraints,omitempty"`
	StartAt     *time.Time        `json:"start_at,omitempty"`
	EndAt       *time.Time        `json:"end_at,omitempty"`
	DeadlineAt  *time.Time        `json:"deadline_at,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
}

type goalResponse struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Metric      model.Metric      `json:"metric"`
	TargetValue float64           `json:"target_value"`
	Unit        string            `json:"unit"`
	Window      model.Window      `json:"window"`
	Constraints model.Constraints `json:"constraints"`
	StartAt     time.Time         `json:"start_at"`
	EndAt       *time.Time        `json:"end_at,omitempty"`
	DeadlineAt  *time.Time        `json:"deadline_at,omitempty"`
	Status      model.GoalStatus  `json:"status"`
	Timezone    string            `json:"timezone,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func toGoalResponse(g *model.Goal) goalResponse {
	return goalResponse{
		ID:          g.ID,
		UserID:      g.UserID,
		Title:       g.Title,
		Description: g.Description,
		Metric:      g.Metric,
		TargetValue: g.TargetValue,
		Unit:        g.Unit,
		Window:      g.Window,
		Constraints: g.Constraints,
		StartAt:     g.StartAt,
		EndAt:       g.EndAt,
		DeadlineAt:  g.DeadlineAt,
		Status:      g.Status,
		Timezone:    g.Timezone,
		CreatedAt:   g.CreatedAt,
	}
}

// CreateGoal registers a goal definition and its default notification
// schedule. Goal definitions originate in the app's goal-creation flow;
// this endpoint is the hand-off point.
// @Summary Create a goal
// @Description Registers a goal definition with a default notification schedule.
// @Tags goals
// @Accept json
// @Produce json
// @Param goal body createGoalRequest true "Goal definition"
// @Success 201 {object} goalResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/goals [post]
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON")
		return
	}
	if req.UserID == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "user_id is required")
		return
	}

	now := time.Now().UTC()
	g := &model.Goal{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Title:       req.Title,
		Description: req.Description,
		Metric:      req.Metric,
		TargetValue: req.TargetValue,
		Unit:        req.Metric.Unit(),
		Window:      req.Window,
		Constraints: req.Constraints,
		StartAt:     now,
		EndAt:       req.EndAt,
		DeadlineAt:  req.DeadlineAt,
		Status:      model.GoalActive,
		Timezone:    req.Timezone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.StartAt != nil {
		g.StartAt = req.StartAt.UTC()
	}
	if err := g.Validate(); err != nil {
		respond.WriteErrorDetail(w, http.StatusUnprocessableEntity, "INVALID_GOAL", "Goal definition is invalid", err.Error())
		return
	}

	loc, err := window.LoadLocation(g.Timezone)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusUnprocessableEntity, "INVALID_TIMEZONE", "Unknown IANA timezone", err.Error())
		return
	}

	sched := model.DefaultSchedule(g.ID, g.UserID, now)
	nextRunAt := sched.PreferredTime.At(now.In(loc))
	if !nextRunAt.After(now) {
		nextRunAt = nextRunAt.Add(24 * time.Hour)
	}

	if err := h.st.InsertGoal(r.Context(), g, sched, nextRunAt); err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "CREATE_FAILED", "Failed to store goal", err.Error())
		return
	}

	respond.WriteJSONObject(w, http.StatusCreated, toGoalResponse(g))
}

// ListGoals lists a user's open goals.
// @Summary List open goals
// @Description Lists the active goals for a user.
// @Tags goals
// @Produce json
// @Param user_id query string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/goals [get]
func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id query parameter is required")
		return
	}

	goals, err := h.st.OpenGoalsByUser(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	out := make([]goalResponse, 0, len(goals))
	for i := range goals {
		out = append(out, toGoalResponse(&goals[i]))
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"goals":   out,
	})
}

type patchGoalRequest struct {
	Status model.GoalStatus `json:"status"`
}

// PatchGoal updates a goal's lifecycle status. Terminal goals cannot be
// reopened.
// @Summary Update goal status
// @Description Transitions a goal between lifecycle states.
// @Tags goals
// @Accept json
// @Produce json
// @Param goalID path string true "Goal ID"
// @Param patch body patchGoalRequest true "Status change"
// @Success 200 {object} goalResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/goals/{goalID} [patch]
func (h *Handler) PatchGoal(w http.ResponseWriter, r *http.Request) {
	goalID := chi.URLParam(r, "goalID")

	var req patchGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON")
		return
	}
	if !req.Status.Valid() {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_STATUS", "Unknown goal status")
		return
	}

	g, err := h.st.GoalByID(r.Context(), goalID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if g.Status.Terminal() && req.Status != g.Status {
		respond.WriteError(w, http.StatusConflict, "GOAL_TERMINAL", "Goal is in a terminal state and cannot transition")
		return
	}

	if err := h.st.UpdateGoalStatus(r.Context(), goalID, req.Status); err != nil {
		writeStoreError(w, err)
		return
	}
	g.Status = req.Status

	respond.WriteJSONObject(w, http.StatusOK, toGoalResponse(g))
}

// GetProgress returns the goal with its latest progress snapshot. A goal
// that has never been evaluated reports zero progress.
// @Summary Get goal progress
// @Description Returns the latest progress snapshot for a goal.
// @Tags goals
// @Produce json
// @Param goalID path string true "Goal ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/goals/{goalID}/progress [get]
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	goalID := chi.URLParam(r, "goalID")

	g, err := h.st.GoalByID(r.Context(), goalID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	snap, err := h.st.SnapshotByGoal(r.Context(), goalID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			writeStoreError(w, err)
			return
		}
		snap = &model.ProgressSnapshot{GoalID: goalID}
	}

	body := map[string]interface{}{
		"goal":             toGoalResponse(g),
		"current_value":    snap.CurrentValue,
		"progress_percent": snap.ProgressPercent,
	}
	if !snap.LastEvaluatedAt.IsZero() {
		body["last_evaluated_at"] = snap.LastEvaluatedAt.UTC().Format(time.RFC3339)
	}
	if !snap.LastContributingAt.IsZero() {
		body["last_contributing_at"] = snap.LastContributingAt.UTC().Format(time.RFC3339)
	}
	if len(snap.ContributingEventIDs) > 0 {
		body["contributing_event_ids"] = snap.ContributingEventIDs
	}

	respond.WriteJSONObject(w, http.StatusOK, body)
}

type messageRecordResponse struct {
	ID             string         `json:"id"`
	Channel        string         `json:"channel"`
	Category       model.Category `json:"category"`
	SentAt         time.Time      `json:"sent_at"`
	RelevanceScore float64        `json:"relevance_score"`
}

// GetMessageHistory lists recent notifications sent for a goal, newest
// first.
// @Summary Get message history
// @Description Lists notifications sent for a goal, newest first.
// @Tags goals
// @Produce json
// @Param goalID path string true "Goal ID"
// @Param limit query int false "Max records to return (default 50)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/goals/{goalID}/messages [get]
func (h *Handler) GetMessageHistory(w http.ResponseWriter, r *http.Request) {
	goalID := chi.URLParam(r, "goalID")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	if _, err := h.st.GoalByID(r.Context(), goalID); err != nil {
		writeStoreError(w, err)
		return
	}

	recs, err := h.st.RecordsByGoal(r.Context(), goalID, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	out := make([]messageRecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, messageRecordResponse{
			ID:             rec.ID,
			Channel:        rec.Channel,
			Category:       rec.Category,
			SentAt:         rec.SentAt,
			RelevanceScore: rec.RelevanceScore,
		})
	}

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"goal_id":  goalID,
		"messages": out,
	})
}

// EvaluateGoal runs the evaluation pipeline for one goal synchronously
// and returns what it decided. Useful for debugging and admin tooling;
// the normal paths are session-driven and the daily sweep.
// @Summary Evaluate a goal now
// @Description Runs the full evaluation pipeline synchronously.
// @Tags goals
// @Produce json
// @Param goalID path string true "Goal ID"
// @Success 200 {object} engine.Outcome
// @Failure 404 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/goals/{goalID}/evaluate [post]
func (h *Handler) EvaluateGoal(w http.ResponseWriter, r *http.Request) {
	goalID := chi.URLParam(r, "goalID")

	out, err := h.eng.EvaluateGoal(r.Context(), goalID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			respond.WriteError(w, http.StatusNotFound, "GOAL_NOT_FOUND", "No goal with that ID")
		case errors.Is(err, engine.ErrInvalidGoal):
			respond.WriteErrorDetail(w, http.StatusUnprocessableEntity, "INVALID_GOAL", "Goal definition is invalid", err.Error())
		case errors.Is(err, engine.ErrClockAnomaly):
			respond.WriteErrorDetail(w, http.StatusConflict, "CLOCK_ANOMALY", "Goal timestamps are ahead of the server clock", err.Error())
		default:
			respond.WriteErrorDetail(w, http.StatusInternalServerError, "EVALUATE_FAILED", "Evaluation failed", err.Error())
		}
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, out)
}

type habitWindowRequest struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// PutHabitWindow sets the user's typical activity window for a goal so
// reminders land when the user actually trains.
// @Summary Set habit window
// @Description Sets the typical activity window used to time reminders.
// @Tags goals
// @Accept json
// @Produce json
// @Param goalID path string true "Goal ID"
// @Param window body habitWindowRequest true "Habit window in minutes of local day"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/goals/{goalID}/habit-window [put]
func (h *Handler) PutHabitWindow(w http.ResponseWriter, r *http.Request) {
	goalID := chi.URLParam(r, "goalID")

	var req habitWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON")
		return
	}
	if req.StartMinute < 0 || req.StartMinute > 1439 || req.EndMinute < 0 || req.EndMinute > 1439 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_WINDOW", "Minutes must be in [0, 1439]")
		return
	}

	habit := model.TimeRange{
		Start: model.MinuteOfDay(req.StartMinute),
		End:   model.MinuteOfDay(req.EndMinute),
	}
	if err := h.st.SetHabitWindow(r.Context(), goalID, habit); err != nil {
		writeStoreError(w, err)
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"goal_id":      goalID,
		"habit_window": map[string]string{"start": habit.Start.String(), "end": habit.End.String()},
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "GOAL_NOT_FOUND", "No goal with that ID")
		return
	}
	respond.WriteErrorDetail(w, http.StatusInternalServerError, "STORAGE_ERROR", "Storage operation failed", err.Error())
}
