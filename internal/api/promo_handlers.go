package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/service/promo"
)

// CreatePromoCode handles POST /api/restaurants/{restaurantID}/promo-codes.
func (h *Handlers) CreatePromoCode(w http.ResponseWriter, r *http.Request) {
	var input promo.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.promos.Create(r.Context(), chi.URLParam(r, "restaurantID"), input)
	if errors.Is(err, promo.ErrDuplicateCode) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// GetPromoCode handles GET .../promo-codes/{promoID}.
func (h *Handlers) GetPromoCode(w http.ResponseWriter, r *http.Request) {
	p, err := h.promos.Get(r.Context(),
		chi.URLParam(r, "restaurantID"), chi.URLParam(r, "promoID"))
	if errors.Is(err, promo.ErrNotFound) {
		respondError(w, http.StatusNotFound, "promo code not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "load promo code failed")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListPromoCodes handles GET .../promo-codes.
func (h *Handlers) ListPromoCodes(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	list, err := h.promos.List(r.Context(), chi.URLParam(r, "restaurantID"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list promo codes failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"promo_codes": list})
}

// ValidatePromoCode handles POST .../promo-codes/validate. This is the
// checkout preview: side-effect free, result advisory.
func (h *Handlers) ValidatePromoCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code        string  `json:"code"`
		CustomerID  string  `json:"customer_id"`
		OrderAmount float64 `json:"order_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Code == "" || body.CustomerID == "" {
		respondError(w, http.StatusBadRequest, "code and customer_id are required")
		return
	}

	res, err := h.promos.Validate(r.Context(), chi.URLParam(r, "restaurantID"),
		body.CustomerID, body.Code, body.OrderAmount)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "validation failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// RedeemPromoCode handles POST .../promo-codes/{promoID}/redeem. This is
// the committing call the ordering collaborator makes at payment time.
func (h *Handlers) RedeemPromoCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CustomerID      string  `json:"customer_id"`
		OrderAmount     float64 `json:"order_amount"`
		DiscountApplied float64 `json:"discount_applied"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.CustomerID == "" {
		respondError(w, http.StatusBadRequest, "customer_id is required")
		return
	}

	id, err := h.promos.Redeem(r.Context(), chi.URLParam(r, "promoID"),
		body.CustomerID, chi.URLParam(r, "restaurantID"),
		body.OrderAmount, body.DiscountApplied)
	if err != nil {
		respondRedeemError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"redemption_id": id})
}

// respondRedeemError maps promo service errors onto HTTP statuses.
// Rejections are 422 with the reason; contention is 409 and retryable.
func respondRedeemError(w http.ResponseWriter, err error) {
	if re, ok := promo.AsRejection(err); ok {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "rejected",
			"reason": string(re.Reason),
		})
		return
	}
	switch {
	case errors.Is(err, promo.ErrNotFound):
		respondError(w, http.StatusNotFound, "promo code not found")
	case errors.Is(err, promo.ErrContention):
		respondError(w, http.StatusConflict, "redemption contention, retry")
	case errors.Is(err, promo.ErrInvariant):
		respondError(w, http.StatusInternalServerError, "promo code state inconsistent")
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}
