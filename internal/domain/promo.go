package domain

import "time"

// DiscountType enumerates how a promo code's discount is computed.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// PromoCode is a redeemable discount code scoped to a restaurant.
// Code text is unique within the restaurant; the (restaurant_id, code)
// unique index in storage is the final collision authority.
type PromoCode struct {
	ID           string  `json:"id" db:"id"`
	RestaurantID string  `json:"restaurant_id" db:"restaurant_id"`
	CampaignID   *string `json:"campaign_id" db:"campaign_id"`
	Code         string  `json:"code" db:"code"`

	DiscountType  DiscountType `json:"discount_type" db:"discount_type"`
	DiscountValue float64      `json:"discount_value" db:"discount_value"`
	MinSpend      float64      `json:"min_spend" db:"min_spend"`

	// MaxUses is the global cap; nil means unbounded.
	MaxUses *int `json:"max_uses" db:"max_uses"`
	// MaxUsesPerCustomer defaults to 1.
	MaxUsesPerCustomer int `json:"max_uses_per_customer" db:"max_uses_per_customer"`

	// TotalUses is a cache derived from promo_redemptions. The redeem
	// transaction keeps it consistent; it must never exceed MaxUses.
	TotalUses int `json:"total_uses" db:"total_uses"`

	ValidFrom  time.Time `json:"valid_from" db:"valid_from"`
	ValidUntil time.Time `json:"valid_until" db:"valid_until"`
	IsActive   bool      `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsRedeemableAt reports whether the code is active and inside its validity
// window at the given instant. Cap checks are separate.
func (p *PromoCode) IsRedeemableAt(t time.Time) bool {
	return p.IsActive && !t.Before(p.ValidFrom) && !t.After(p.ValidUntil)
}

// Discount computes the discount for an order amount, clamped so it never
// exceeds the order itself.
func (p *PromoCode) Discount(orderAmount float64) float64 {
	var d float64
	switch p.DiscountType {
	case DiscountPercentage:
		d = orderAmount * p.DiscountValue / 100
	case DiscountFixedAmount:
		d = p.DiscountValue
	}
	if d > orderAmount {
		d = orderAmount
	}
	if d < 0 {
		d = 0
	}
	return d
}

// PromoRedemption is one immutable record of an accepted redemption. The
// redemption table is the source of truth for all usage counts.
type PromoRedemption struct {
	ID              string    `json:"id" db:"id"`
	PromoCodeID     string    `json:"promo_code_id" db:"promo_code_id"`
	RestaurantID    string    `json:"restaurant_id" db:"restaurant_id"`
	CustomerID      string    `json:"customer_id" db:"customer_id"`
	OrderAmount     float64   `json:"order_amount" db:"order_amount"`
	DiscountApplied float64   `json:"discount_applied" db:"discount_applied"`
	RedeemedAt      time.Time `json:"redeemed_at" db:"redeemed_at"`
}
