package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// CreateCampaign handles POST /api/restaurants/{restaurantID}/campaigns.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")

	var input campaign.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.campaigns.Create(r.Context(), restaurantID, actor(r), input)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// GetCampaign handles GET /api/restaurants/{restaurantID}/campaigns/{campaignID}.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondCampaignError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// ListCampaigns handles GET /api/restaurants/{restaurantID}/campaigns.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	list, total, err := h.campaigns.List(r.Context(), chi.URLParam(r, "restaurantID"),
		campaign.ListFilter{
			Status: r.URL.Query().Get("status"),
			Limit:  limit,
			Offset: offset,
		})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list campaigns failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": list,
		"total":     total,
	})
}

// UpdateCampaign handles PUT /api/restaurants/{restaurantID}/campaigns/{campaignID}.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var u campaign.UpdateFields
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.campaigns.Update(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "campaignID"), actor(r), u)
	if err != nil {
		respondCampaignError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// ScheduleCampaign handles POST .../campaigns/{campaignID}/schedule.
// An absent or zero scheduled_at means "send now" for one-time campaigns.
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var at time.Time
	if body.ScheduledAt != nil {
		at = *body.ScheduledAt
	}

	err := h.campaigns.Schedule(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "campaignID"), actor(r), at)
	if err != nil {
		respondCampaignError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "scheduled"})
}

// DispatchCampaign handles POST .../campaigns/{campaignID}/dispatch. It is
// the manual alternative to waiting for the worker poll.
func (h *Handlers) DispatchCampaign(w http.ResponseWriter, r *http.Request) {
	n, err := h.campaigns.Dispatch(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "campaignID"), actor(r))
	if err != nil {
		respondCampaignError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "dispatched",
		"enqueued": n,
	})
}

// CancelCampaign handles POST .../campaigns/{campaignID}/cancel.
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	err := h.campaigns.Cancel(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "campaignID"), actor(r))
	if err != nil {
		respondCampaignError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// PauseCampaign handles POST .../campaigns/{campaignID}/pause.
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	err := h.campaigns.Pause(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "campaignID"), actor(r))
	if err != nil {
		respondCampaignError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeCampaign handles POST .../campaigns/{campaignID}/resume.
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	err := h.campaigns.Resume(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "campaignID"), actor(r))
	if err != nil {
		respondCampaignError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "sending"})
}

// GetCampaignMetrics handles GET .../campaigns/{campaignID}/metrics.
func (h *Handlers) GetCampaignMetrics(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	campaignID := chi.URLParam(r, "campaignID")

	// Scope check before touching the metrics table.
	if _, err := h.campaigns.Get(r.Context(), restaurantID, campaignID); err != nil {
		respondCampaignError(w, err)
		return
	}

	m, err := h.metrics.Get(r.Context(), restaurantID, campaignID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "load metrics failed")
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// ListCampaignSends handles GET .../campaigns/{campaignID}/sends.
func (h *Handlers) ListCampaignSends(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	sends, err := h.campaigns.Sends(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "campaignID"), limit, offset)
	if err != nil {
		respondCampaignError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sends": sends})
}

// ListCampaignAudit handles GET .../campaigns/{campaignID}/audit.
func (h *Handlers) ListCampaignAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePagination(r)
	entries, err := h.campaigns.Audit(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "campaignID"), limit)
	if err != nil {
		respondCampaignError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// respondCampaignError maps campaign service errors onto HTTP statuses.
func respondCampaignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		respondError(w, http.StatusNotFound, "campaign not found")
	case errors.Is(err, campaign.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrNotEditable):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrScheduleInPast),
		errors.Is(err, campaign.ErrMissingSchedule):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
