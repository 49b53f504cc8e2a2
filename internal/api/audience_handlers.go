package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/domain"
)

// previewSampleLimit caps how many member IDs a preview returns.
const previewSampleLimit = 25

// PreviewAudience handles POST /api/restaurants/{restaurantID}/audience/preview.
// It returns the live match count and a small sample of matching customer
// IDs for the campaign builder UI.
func (h *Handlers) PreviewAudience(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")

	var spec domain.AudienceSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid audience spec")
		return
	}

	count, err := h.resolver.Resolve(r.Context(), restaurantID, spec)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "audience resolution failed")
		return
	}

	var sample []string
	if count > 0 {
		members, err := h.resolver.ResolveMembers(r.Context(), restaurantID, spec)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "audience resolution failed")
			return
		}
		for i, m := range members {
			if i >= previewSampleLimit {
				break
			}
			sample = append(sample, m.CustomerID)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  count,
		"sample": sample,
	})
}
