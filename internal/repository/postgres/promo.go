package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/promo"
)

// pq error codes that mark a transient transaction conflict. The service
// retries these; everything else surfaces as-is.
const (
	pqDeadlockDetected     = "40P01"
	pqSerializationFailure = "40001"
	pqLockNotAvailable     = "55P03"
	pqUniqueViolation      = "23505"
)

// PromoRepo implements promo.Repository against PostgreSQL.
type PromoRepo struct{ db *sql.DB }

// NewPromoRepo creates a Postgres-backed promo repository.
func NewPromoRepo(db *sql.DB) *PromoRepo { return &PromoRepo{db: db} }

const promoColumns = `id, restaurant_id, campaign_id, code, discount_type,
       discount_value, min_spend, max_uses, max_uses_per_customer, total_uses,
       valid_from, valid_until, is_active, created_at, updated_at`

func scanPromo(row interface{ Scan(...interface{}) error }) (*domain.PromoCode, error) {
	p := &domain.PromoCode{}
	var (
		campaignID sql.NullString
		maxUses    sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &p.RestaurantID, &campaignID, &p.Code, &p.DiscountType,
		&p.DiscountValue, &p.MinSpend, &maxUses, &p.MaxUsesPerCustomer, &p.TotalUses,
		&p.ValidFrom, &p.ValidUntil, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if campaignID.Valid {
		p.CampaignID = &campaignID.String
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		p.MaxUses = &n
	}
	return p, nil
}

func (r *PromoRepo) GetByCode(ctx context.Context, restaurantID, code string) (*domain.PromoCode, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+promoColumns+`
		FROM promo_codes
		WHERE restaurant_id = $1 AND code = $2
	`, restaurantID, code)
	p, err := scanPromo(row)
	if err == sql.ErrNoRows {
		return nil, promo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get promo by code: %w", err)
	}
	return p, nil
}

func (r *PromoRepo) GetByID(ctx context.Context, restaurantID, id string) (*domain.PromoCode, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+promoColumns+`
		FROM promo_codes
		WHERE restaurant_id = $1 AND id = $2
	`, restaurantID, id)
	p, err := scanPromo(row)
	if err == sql.ErrNoRows {
		return nil, promo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get promo by id: %w", err)
	}
	return p, nil
}

func (r *PromoRepo) CodeExists(ctx context.Context, restaurantID, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM promo_codes WHERE restaurant_id = $1 AND code = $2)
	`, restaurantID, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code exists: %w", err)
	}
	return exists, nil
}

func (r *PromoRepo) Create(ctx context.Context, p *domain.PromoCode) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO promo_codes
			(id, restaurant_id, campaign_id, code, discount_type, discount_value,
			 min_spend, max_uses, max_uses_per_customer, total_uses,
			 valid_from, valid_until, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $12, NOW(), NOW())
	`, p.ID, p.RestaurantID, p.CampaignID, p.Code, p.DiscountType, p.DiscountValue,
		p.MinSpend, p.MaxUses, p.MaxUsesPerCustomer,
		p.ValidFrom, p.ValidUntil, p.IsActive)
	if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqUniqueViolation {
		return promo.ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("create promo code: %w", err)
	}
	return nil
}

func (r *PromoRepo) CustomerUses(ctx context.Context, promoCodeID, customerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM promo_redemptions
		WHERE promo_code_id = $1 AND customer_id = $2
	`, promoCodeID, customerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count customer uses: %w", err)
	}
	return n, nil
}

// Redeem commits one redemption atomically. A single transaction locks the
// promo row with FOR UPDATE, re-checks the validity window and both caps
// against the locked state, inserts the redemption, and increments
// total_uses. Concurrent redeems serialize on the row lock, so the caps
// hold no matter how many arrive at once.
func (r *PromoRepo) Redeem(ctx context.Context, req promo.RedeemRequest) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin redeem tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+promoColumns+`
		FROM promo_codes
		WHERE id = $1 AND restaurant_id = $2
		FOR UPDATE
	`, req.PromoCodeID, req.RestaurantID)
	p, err := scanPromo(row)
	if err == sql.ErrNoRows {
		return "", promo.ErrNotFound
	}
	if err != nil {
		return "", classifyRedeemErr("lock promo row", err)
	}

	var now sql.NullTime
	if err := tx.QueryRowContext(ctx, `SELECT NOW()`).Scan(&now); err != nil {
		return "", fmt.Errorf("read tx clock: %w", err)
	}
	if !p.IsRedeemableAt(now.Time) {
		return "", &promo.RejectionError{Reason: promo.ReasonInvalidOrExpired}
	}

	if p.MaxUses != nil {
		if p.TotalUses > *p.MaxUses {
			return "", promo.ErrInvariant
		}
		if p.TotalUses >= *p.MaxUses {
			return "", &promo.RejectionError{Reason: promo.ReasonUsageLimitReached}
		}
	}

	var customerUses int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM promo_redemptions
		WHERE promo_code_id = $1 AND customer_id = $2
	`, req.PromoCodeID, req.CustomerID).Scan(&customerUses)
	if err != nil {
		return "", classifyRedeemErr("count customer uses", err)
	}
	if customerUses >= p.MaxUsesPerCustomer {
		return "", &promo.RejectionError{Reason: promo.ReasonAlreadyUsed}
	}

	if req.OrderAmount < p.MinSpend {
		return "", &promo.RejectionError{Reason: promo.ReasonMinSpendNotMet}
	}

	redemptionID := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO promo_redemptions
			(id, promo_code_id, restaurant_id, customer_id, order_amount,
			 discount_applied, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, redemptionID, req.PromoCodeID, req.RestaurantID, req.CustomerID,
		req.OrderAmount, req.DiscountApplied)
	if err != nil {
		return "", classifyRedeemErr("insert redemption", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE promo_codes SET total_uses = total_uses + 1, updated_at = NOW()
		WHERE id = $1
	`, req.PromoCodeID)
	if err != nil {
		return "", classifyRedeemErr("increment total_uses", err)
	}

	if err := tx.Commit(); err != nil {
		return "", classifyRedeemErr("commit redeem tx", err)
	}
	return redemptionID, nil
}

// classifyRedeemErr maps transient pq conflicts onto ErrContention so the
// service's retry loop can distinguish them from real failures.
func classifyRedeemErr(op string, err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch string(pqErr.Code) {
		case pqDeadlockDetected, pqSerializationFailure, pqLockNotAvailable:
			return fmt.Errorf("%s: %w", op, promo.ErrContention)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *PromoRepo) ListByRestaurant(ctx context.Context, restaurantID string, limit, offset int) ([]domain.PromoCode, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+promoColumns+`
		FROM promo_codes
		WHERE restaurant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, restaurantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list promo codes: %w", err)
	}
	defer rows.Close()

	var out []domain.PromoCode
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promo code: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
