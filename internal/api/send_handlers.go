package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// UpdateSendStatus handles POST /api/sends/{sendID}/status, the surface the
// delivery collaborator reports outcomes through. Accepted events: sent,
// delivered, failed, bounced, opened, clicked.
func (h *Handlers) UpdateSendStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Event        string     `json:"event"`
		At           *time.Time `json:"at"`
		ErrorMessage string     `json:"error_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Event == "" {
		respondError(w, http.StatusBadRequest, "event is required")
		return
	}

	var at time.Time
	if body.At != nil {
		at = *body.At
	}

	err := h.campaigns.RecordSendOutcome(r.Context(),
		chi.URLParam(r, "sendID"), body.Event, at, body.ErrorMessage)
	if errors.Is(err, campaign.ErrNotFound) {
		respondError(w, http.StatusNotFound, "send not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
