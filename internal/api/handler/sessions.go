package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/orourkera/go-ruck-yourself-sub005/internal/api/respond"
	"github.com/orourkera/go-ruck-yourself-sub005/internal/model"
)

// IngestSession accepts a completed-session event and triggers evaluation
// of the user's open goals on that session's metrics.
// @Summary Ingest a completed session
// @Description Records a session-completion event and kicks off goal evaluation.
// @Tags sessions
// @Accept json
// @Produce json
// @Param event body model.SessionEvent true "Session event"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/sessions [post]
func (h *Handler) IngestSession(w http.ResponseWriter, r *http.Request) {
	var ev model.SessionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON")
		return
	}
	if ev.SessionID == "" || ev.UserID == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "session_id and user_id are required")
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	if err := h.eng.HandleSession(r.Context(), &ev); err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "INGEST_FAILED", "Failed to record session event", err.Error())
		return
	}

	respond.WriteJSONObject(w, http.StatusAccepted, map[string]interface{}{
		"accepted":   true,
		"session_id": ev.SessionID,
	})
}
