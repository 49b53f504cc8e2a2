package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/promo"
)

func validPromoCode() *domain.PromoCode {
	maxUses := 100
	now := time.Now()
	return &domain.PromoCode{
		RestaurantID:       "rest-1",
		Code:               "SUMMER-AB12CD34",
		DiscountType:       domain.DiscountPercentage,
		DiscountValue:      20,
		MaxUses:            &maxUses,
		MaxUsesPerCustomer: 1,
		ValidFrom:          now.Add(-time.Hour),
		ValidUntil:         now.Add(time.Hour),
		IsActive:           true,
	}
}

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

var promoRowColumns = []string{
	"id", "restaurant_id", "campaign_id", "code", "discount_type",
	"discount_value", "min_spend", "max_uses", "max_uses_per_customer", "total_uses",
	"valid_from", "valid_until", "is_active", "created_at", "updated_at",
}

func activePromoRow(totalUses, maxUses int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(promoRowColumns).AddRow(
		"promo-1", "rest-1", nil, "SUMMER-AB12CD34", "percentage",
		20.0, 0.0, maxUses, 1, totalUses,
		now.Add(-time.Hour), now.Add(time.Hour), true, now, now,
	)
}

func redeemRequest() promo.RedeemRequest {
	return promo.RedeemRequest{
		PromoCodeID:     "promo-1",
		RestaurantID:    "rest-1",
		CustomerID:      "cust-1",
		OrderAmount:     50,
		DiscountApplied: 10,
	}
}

func TestRedeemCommitsAtomically(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM promo_codes(.+)FOR UPDATE").
		WithArgs("promo-1", "rest-1").
		WillReturnRows(activePromoRow(3, 100))
	mock.ExpectQuery("SELECT NOW").
		WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(time.Now()))
	mock.ExpectQuery("SELECT COUNT(.+) FROM promo_redemptions").
		WithArgs("promo-1", "cust-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO promo_redemptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE promo_codes SET total_uses").
		WithArgs("promo-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPromoRepo(db)
	id, err := repo.Redeem(context.Background(), redeemRequest())
	if err != nil {
		t.Fatalf("Redeem() error: %v", err)
	}
	if id == "" {
		t.Error("expected a redemption id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRedeemUnknownPromo(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM promo_codes(.+)FOR UPDATE").
		WithArgs("promo-1", "rest-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	repo := NewPromoRepo(db)
	_, err := repo.Redeem(context.Background(), redeemRequest())
	if !errors.Is(err, promo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedeemGlobalCapRejected(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM promo_codes(.+)FOR UPDATE").
		WithArgs("promo-1", "rest-1").
		WillReturnRows(activePromoRow(100, 100))
	mock.ExpectQuery("SELECT NOW").
		WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(time.Now()))
	mock.ExpectRollback()

	repo := NewPromoRepo(db)
	_, err := repo.Redeem(context.Background(), redeemRequest())
	rej, ok := promo.AsRejection(err)
	if !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rej.Reason != promo.ReasonUsageLimitReached {
		t.Errorf("reason = %q, want %q", rej.Reason, promo.ReasonUsageLimitReached)
	}
}

func TestRedeemOverCapIsInvariantViolation(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM promo_codes(.+)FOR UPDATE").
		WithArgs("promo-1", "rest-1").
		WillReturnRows(activePromoRow(101, 100))
	mock.ExpectQuery("SELECT NOW").
		WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(time.Now()))
	mock.ExpectRollback()

	repo := NewPromoRepo(db)
	_, err := repo.Redeem(context.Background(), redeemRequest())
	if !errors.Is(err, promo.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestRedeemDeadlockMapsToContention(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM promo_codes(.+)FOR UPDATE").
		WithArgs("promo-1", "rest-1").
		WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()

	repo := NewPromoRepo(db)
	_, err := repo.Redeem(context.Background(), redeemRequest())
	if !errors.Is(err, promo.ErrContention) {
		t.Fatalf("expected ErrContention, got %v", err)
	}
}

func TestRedeemSerializationFailureMapsToContention(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM promo_codes(.+)FOR UPDATE").
		WithArgs("promo-1", "rest-1").
		WillReturnRows(activePromoRow(3, 100))
	mock.ExpectQuery("SELECT NOW").
		WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(time.Now()))
	mock.ExpectQuery("SELECT COUNT(.+) FROM promo_redemptions").
		WithArgs("promo-1", "cust-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO promo_redemptions").
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	repo := NewPromoRepo(db)
	_, err := repo.Redeem(context.Background(), redeemRequest())
	if !errors.Is(err, promo.ErrContention) {
		t.Fatalf("expected ErrContention, got %v", err)
	}
}

func TestCreateDuplicateCode(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO promo_codes").
		WillReturnError(&pq.Error{Code: "23505"})

	repo := NewPromoRepo(db)
	err := repo.Create(context.Background(), validPromoCode())
	if !errors.Is(err, promo.ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestGetByCodeNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM promo_codes").
		WithArgs("rest-1", "NOPE").
		WillReturnError(sql.ErrNoRows)

	repo := NewPromoRepo(db)
	_, err := repo.GetByCode(context.Background(), "rest-1", "NOPE")
	if !errors.Is(err, promo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
