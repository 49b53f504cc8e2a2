package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/pkg/promexport"
)

const (
	// redeemAttempts bounds the optimistic retry loop around the locked
	// redeem transaction before giving up with ErrContention.
	redeemAttempts = 3

	// redeemBackoffBase is the first retry delay; doubled per attempt.
	redeemBackoffBase = 25 * time.Millisecond
)

// Service implements promo business logic on top of a Repository.
// All public methods are safe for concurrent use if the underlying
// repository is concurrency-safe.
type Service struct {
	repo Repository

	// now is swappable for tests.
	now func() time.Time
	// sleep is swappable so retry tests don't wait.
	sleep func(time.Duration)
}

// NewService creates a promo service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now, sleep: time.Sleep}
}

// ValidationResult is the response of a side-effect-free validation.
// When Valid is false, Reason carries the user-presentable rejection.
type ValidationResult struct {
	Valid       bool            `json:"valid"`
	Reason      RejectionReason `json:"reason,omitempty"`
	PromoCodeID string          `json:"promo_code_id,omitempty"`
	Code        string          `json:"code,omitempty"`
	Discount    float64         `json:"discount,omitempty"`
}

// Validate previews whether the customer may redeem the code against the
// given order. It never mutates anything and its positive answer is
// advisory: redeem re-checks every cap inside its own transaction.
//
// Rejections are evaluated in a fixed order: existence/active/window,
// global cap, per-customer cap, minimum spend.
func (s *Service) Validate(ctx context.Context, restaurantID, customerID, code string, orderAmount float64) (*ValidationResult, error) {
	reject := func(reason RejectionReason) *ValidationResult {
		promexport.ValidationRejections.WithLabelValues(string(reason)).Inc()
		return &ValidationResult{Valid: false, Reason: reason}
	}

	p, err := s.repo.GetByCode(ctx, restaurantID, code)
	if errors.Is(err, ErrNotFound) {
		// Not found reads the same as expired to the caller; existence of
		// codes is not leaked through the checkout surface.
		return reject(ReasonInvalidOrExpired), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load promo code: %w", err)
	}

	if !p.IsRedeemableAt(s.now()) {
		return reject(ReasonInvalidOrExpired), nil
	}

	if p.MaxUses != nil {
		if p.TotalUses > *p.MaxUses {
			logger.Error("promo invariant violated at validate",
				"promo_code_id", p.ID, "total_uses", p.TotalUses, "max_uses", *p.MaxUses)
			return nil, ErrInvariant
		}
		if p.TotalUses >= *p.MaxUses {
			return reject(ReasonUsageLimitReached), nil
		}
	}

	uses, err := s.repo.CustomerUses(ctx, p.ID, customerID)
	if err != nil {
		return nil, fmt.Errorf("count customer uses: %w", err)
	}
	if uses >= p.MaxUsesPerCustomer {
		return reject(ReasonAlreadyUsed), nil
	}

	if orderAmount < p.MinSpend {
		return reject(ReasonMinSpendNotMet), nil
	}

	return &ValidationResult{
		Valid:       true,
		PromoCodeID: p.ID,
		Code:        p.Code,
		Discount:    p.Discount(orderAmount),
	}, nil
}

// Redeem commits one redemption and returns the redemption ID.
//
// The repository runs the cap re-checks, the redemption insert, and the
// total_uses increment in one transaction holding a row lock on the promo
// code, so concurrent redeems can never jointly exceed either cap. This
// method only adds input validation and a bounded backoff loop around
// transient lock conflicts.
func (s *Service) Redeem(ctx context.Context, promoCodeID, customerID, restaurantID string, orderAmount, discountApplied float64) (string, error) {
	start := s.now()
	outcome := "error"
	defer func() {
		promexport.ObserveRedeem(outcome, time.Since(start).Seconds())
	}()

	if discountApplied < 0 || discountApplied > orderAmount {
		return "", fmt.Errorf("discount %.2f out of range for order %.2f", discountApplied, orderAmount)
	}

	req := RedeemRequest{
		PromoCodeID:     promoCodeID,
		RestaurantID:    restaurantID,
		CustomerID:      customerID,
		OrderAmount:     orderAmount,
		DiscountApplied: discountApplied,
	}

	var lastErr error
	for attempt := 0; attempt < redeemAttempts; attempt++ {
		if attempt > 0 {
			s.sleep(redeemBackoffBase << (attempt - 1))
		}

		id, err := s.repo.Redeem(ctx, req)
		switch {
		case err == nil:
			outcome = "success"
			return id, nil
		case errors.Is(err, ErrContention):
			lastErr = err
			continue
		default:
			if _, ok := AsRejection(err); ok {
				outcome = "rejected"
			} else if errors.Is(err, ErrInvariant) {
				logger.Error("promo invariant violated at redeem",
					"promo_code_id", promoCodeID, "customer_id", customerID)
			}
			return "", err
		}
	}

	outcome = "contention"
	logger.Warn("promo redeem retries exhausted",
		"promo_code_id", promoCodeID, "attempts", redeemAttempts)
	return "", fmt.Errorf("redeem after %d attempts: %w", redeemAttempts, lastErr)
}

// CreateInput holds the fields for creating a new promo code. Code may be
// empty, in which case one is generated from Prefix.
type CreateInput struct {
	CampaignID         *string             `json:"campaign_id"`
	Code               string              `json:"code"`
	Prefix             string              `json:"prefix"`
	DiscountType       domain.DiscountType `json:"discount_type"`
	DiscountValue      float64             `json:"discount_value"`
	MinSpend           float64             `json:"min_spend"`
	MaxUses            *int                `json:"max_uses"`
	MaxUsesPerCustomer int                 `json:"max_uses_per_customer"`
	ValidFrom          time.Time           `json:"valid_from"`
	ValidUntil         time.Time           `json:"valid_until"`
}

// Create validates and persists a new promo code, generating a unique code
// from the prefix when none is supplied. Insertion retries on a duplicate
// code because the unique index, not the generator's pre-check, is the
// final collision authority.
func (s *Service) Create(ctx context.Context, restaurantID string, input CreateInput) (*domain.PromoCode, error) {
	if input.DiscountType != domain.DiscountPercentage && input.DiscountType != domain.DiscountFixedAmount {
		return nil, fmt.Errorf("unknown discount type %q", input.DiscountType)
	}
	if input.DiscountValue <= 0 {
		return nil, fmt.Errorf("discount value must be positive")
	}
	if input.DiscountType == domain.DiscountPercentage && input.DiscountValue > 100 {
		return nil, fmt.Errorf("percentage discount cannot exceed 100")
	}
	if !input.ValidUntil.After(input.ValidFrom) {
		return nil, fmt.Errorf("valid_until must be after valid_from")
	}
	if input.MaxUses != nil && *input.MaxUses <= 0 {
		return nil, fmt.Errorf("max_uses must be positive when set")
	}

	perCustomer := input.MaxUsesPerCustomer
	if perCustomer <= 0 {
		perCustomer = 1
	}

	for attempt := 0; attempt < generateAttempts; attempt++ {
		code := input.Code
		if code == "" {
			var err error
			code, err = s.Generate(ctx, restaurantID, input.Prefix)
			if err != nil {
				return nil, err
			}
		}

		p := &domain.PromoCode{
			ID:                 uuid.New().String(),
			RestaurantID:       restaurantID,
			CampaignID:         input.CampaignID,
			Code:               code,
			DiscountType:       input.DiscountType,
			DiscountValue:      input.DiscountValue,
			MinSpend:           input.MinSpend,
			MaxUses:            input.MaxUses,
			MaxUsesPerCustomer: perCustomer,
			ValidFrom:          input.ValidFrom,
			ValidUntil:         input.ValidUntil,
			IsActive:           true,
		}

		err := s.repo.Create(ctx, p)
		if err == nil {
			return p, nil
		}
		if errors.Is(err, ErrDuplicateCode) {
			if input.Code != "" {
				// Explicit code collisions are the caller's to resolve.
				return nil, err
			}
			continue
		}
		return nil, fmt.Errorf("create promo code: %w", err)
	}

	return nil, fmt.Errorf("could not generate a unique code after %d attempts", generateAttempts)
}

// Get returns a promo code by ID.
func (s *Service) Get(ctx context.Context, restaurantID, id string) (*domain.PromoCode, error) {
	return s.repo.GetByID(ctx, restaurantID, id)
}

// List returns the restaurant's promo codes, newest first.
func (s *Service) List(ctx context.Context, restaurantID string, limit, offset int) ([]domain.PromoCode, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListByRestaurant(ctx, restaurantID, limit, offset)
}
