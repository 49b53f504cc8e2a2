package promo

import (
	"context"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Repository defines the data access contract for promo codes.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetByCode returns the promo code with the given text within the
	// restaurant. Returns ErrNotFound if it doesn't exist.
	GetByCode(ctx context.Context, restaurantID, code string) (*domain.PromoCode, error)

	// GetByID returns a promo code by ID within the restaurant.
	// Returns ErrNotFound if it doesn't exist.
	GetByID(ctx context.Context, restaurantID, id string) (*domain.PromoCode, error)

	// CodeExists reports whether the code text is already taken within the
	// restaurant. This is the generator's pre-check; the unique index is
	// the final authority.
	CodeExists(ctx context.Context, restaurantID, code string) (bool, error)

	// Create inserts a new promo code. Returns ErrDuplicateCode when the
	// (restaurant_id, code) unique constraint fires.
	Create(ctx context.Context, p *domain.PromoCode) error

	// CustomerUses returns how many times the customer has redeemed the code.
	CustomerUses(ctx context.Context, promoCodeID, customerID string) (int, error)

	// Redeem atomically records one redemption: within a single transaction
	// it locks the promo row, re-checks the global and per-customer caps,
	// inserts the redemption row, and increments total_uses. Returns the
	// redemption ID.
	//
	// Error contract: ErrNotFound, *RejectionError (a cap lost the race),
	// ErrContention (lock/serialization conflict on this attempt),
	// ErrInvariant (counters already out of bounds at read time).
	Redeem(ctx context.Context, r RedeemRequest) (string, error)

	// ListByRestaurant returns the restaurant's promo codes, newest first.
	ListByRestaurant(ctx context.Context, restaurantID string, limit, offset int) ([]domain.PromoCode, error)
}

// RedeemRequest carries the committing redemption parameters.
type RedeemRequest struct {
	PromoCodeID     string
	RestaurantID    string
	CustomerID      string
	OrderAmount     float64
	DiscountApplied float64
}
