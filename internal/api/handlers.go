package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ignite/campaign-engine/internal/audience"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/metrics"
	"github.com/ignite/campaign-engine/internal/service/promo"
)

// Handlers carries the service dependencies for all HTTP handlers.
type Handlers struct {
	campaigns *campaign.Service
	promos    *promo.Service
	metrics   *metrics.Service
	resolver  *audience.Resolver
}

// NewHandlers creates the handler set.
func NewHandlers(campaigns *campaign.Service, promos *promo.Service, metricsSvc *metrics.Service, resolver *audience.Resolver) *Handlers {
	return &Handlers{
		campaigns: campaigns,
		promos:    promos,
		metrics:   metricsSvc,
		resolver:  resolver,
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// parsePagination extracts limit/offset query parameters with defaults.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// actor identifies the caller for the audit trail. The API gateway in front
// of this service sets X-Actor; absent that, entries read "api".
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}
