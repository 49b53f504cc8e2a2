package promo_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/promo"
)

// memPromoRepo is an in-memory promo repository. Redeem holds the mutex for
// the whole cap-check-then-commit sequence, mirroring the row lock the real
// implementation takes.
type memPromoRepo struct {
	mu          sync.Mutex
	codes       map[string]*domain.PromoCode // keyed by id
	redemptions []domain.PromoRedemption

	// contentionsToInject makes the next N Redeem calls fail with
	// ErrContention before touching state.
	contentionsToInject int
}

func newMemPromoRepo() *memPromoRepo {
	return &memPromoRepo{codes: make(map[string]*domain.PromoCode)}
}

func (m *memPromoRepo) GetByCode(_ context.Context, restaurantID, code string) (*domain.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.codes {
		if p.RestaurantID == restaurantID && p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, promo.ErrNotFound
}

func (m *memPromoRepo) GetByID(_ context.Context, restaurantID, id string) (*domain.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.codes[id]
	if !ok || p.RestaurantID != restaurantID {
		return nil, promo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPromoRepo) CodeExists(_ context.Context, restaurantID, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.codes {
		if p.RestaurantID == restaurantID && p.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPromoRepo) Create(_ context.Context, p *domain.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.codes {
		if existing.RestaurantID == p.RestaurantID && existing.Code == p.Code {
			return promo.ErrDuplicateCode
		}
	}
	cp := *p
	m.codes[cp.ID] = &cp
	return nil
}

func (m *memPromoRepo) CustomerUses(_ context.Context, promoCodeID, customerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.customerUsesLocked(promoCodeID, customerID), nil
}

func (m *memPromoRepo) customerUsesLocked(promoCodeID, customerID string) int {
	n := 0
	for _, r := range m.redemptions {
		if r.PromoCodeID == promoCodeID && r.CustomerID == customerID {
			n++
		}
	}
	return n
}

func (m *memPromoRepo) Redeem(_ context.Context, req promo.RedeemRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.contentionsToInject > 0 {
		m.contentionsToInject--
		return "", promo.ErrContention
	}

	p, ok := m.codes[req.PromoCodeID]
	if !ok || p.RestaurantID != req.RestaurantID {
		return "", promo.ErrNotFound
	}
	if !p.IsRedeemableAt(time.Now()) {
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
	if m.customerUsesLocked(req.PromoCodeID, req.CustomerID) >= p.MaxUsesPerCustomer {
		return "", &promo.RejectionError{Reason: promo.ReasonAlreadyUsed}
	}
	if req.OrderAmount < p.MinSpend {
		return "", &promo.RejectionError{Reason: promo.ReasonMinSpendNotMet}
	}

	id := uuid.New().String()
	m.redemptions = append(m.redemptions, domain.PromoRedemption{
		ID:              id,
		PromoCodeID:     req.PromoCodeID,
		RestaurantID:    req.RestaurantID,
		CustomerID:      req.CustomerID,
		OrderAmount:     req.OrderAmount,
		DiscountApplied: req.DiscountApplied,
		RedeemedAt:      time.Now(),
	})
	p.TotalUses++
	return id, nil
}

func (m *memPromoRepo) ListByRestaurant(_ context.Context, restaurantID string, limit, offset int) ([]domain.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PromoCode
	for _, p := range m.codes {
		if p.RestaurantID == restaurantID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPromoRepo) totalUses(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[id].TotalUses
}

const testRestaurant = "rest-1"

func intPtr(n int) *int { return &n }

// seedCode installs an active percentage code valid for the next hour.
func seedCode(repo *memPromoRepo, code string, maxUses *int, perCustomer int, minSpend float64) *domain.PromoCode {
	p := &domain.PromoCode{
		ID:                 uuid.New().String(),
		RestaurantID:       testRestaurant,
		Code:               code,
		DiscountType:       domain.DiscountPercentage,
		DiscountValue:      20,
		MinSpend:           minSpend,
		MaxUses:            maxUses,
		MaxUsesPerCustomer: perCustomer,
		ValidFrom:          time.Now().Add(-time.Hour),
		ValidUntil:         time.Now().Add(time.Hour),
		IsActive:           true,
	}
	repo.codes[p.ID] = p
	return p
}

func newService(repo *memPromoRepo) *promo.Service {
	return promo.NewService(repo)
}

func TestValidateHappyPath(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "SUMMER-AB12CD34", intPtr(100), 1, 0)
	svc := newService(repo)

	res, err := svc.Validate(context.Background(), testRestaurant, "cust-1", "SUMMER-AB12CD34", 50)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, got reason %q", res.Reason)
	}
	if res.PromoCodeID != p.ID {
		t.Fatalf("expected promo id %s, got %s", p.ID, res.PromoCodeID)
	}
	if res.Discount != 10 { // 20% of 50
		t.Fatalf("expected discount 10, got %v", res.Discount)
	}
}

func TestValidateUnknownCode(t *testing.T) {
	svc := newService(newMemPromoRepo())
	res, err := svc.Validate(context.Background(), testRestaurant, "cust-1", "NOPE-12345678", 50)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Valid || res.Reason != promo.ReasonInvalidOrExpired {
		t.Fatalf("expected invalid-or-expired, got %+v", res)
	}
}

func TestValidateExpired(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "OLD-CODE1234", nil, 1, 0)
	p.ValidUntil = time.Now().Add(-time.Minute)
	svc := newService(repo)

	res, _ := svc.Validate(context.Background(), testRestaurant, "cust-1", "OLD-CODE1234", 50)
	if res.Valid || res.Reason != promo.ReasonInvalidOrExpired {
		t.Fatalf("expected invalid-or-expired, got %+v", res)
	}
}

func TestValidateInactive(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "OFF-CODE1234", nil, 1, 0)
	p.IsActive = false
	svc := newService(repo)

	res, _ := svc.Validate(context.Background(), testRestaurant, "cust-1", "OFF-CODE1234", 50)
	if res.Valid || res.Reason != promo.ReasonInvalidOrExpired {
		t.Fatalf("expected invalid-or-expired, got %+v", res)
	}
}

func TestValidateGlobalCapExhausted(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "CAP-CODE1234", intPtr(5), 1, 0)
	p.TotalUses = 5
	svc := newService(repo)

	res, _ := svc.Validate(context.Background(), testRestaurant, "cust-1", "CAP-CODE1234", 50)
	if res.Valid || res.Reason != promo.ReasonUsageLimitReached {
		t.Fatalf("expected usage-limit-reached, got %+v", res)
	}
}

func TestValidatePerCustomerCap(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "ONCE-CODE123", nil, 1, 0)
	svc := newService(repo)

	if _, err := svc.Redeem(context.Background(), p.ID, "cust-1", testRestaurant, 50, 10); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	res, _ := svc.Validate(context.Background(), testRestaurant, "cust-1", "ONCE-CODE123", 50)
	if res.Valid || res.Reason != promo.ReasonAlreadyUsed {
		t.Fatalf("expected already-used, got %+v", res)
	}

	// A different customer is unaffected.
	res, _ = svc.Validate(context.Background(), testRestaurant, "cust-2", "ONCE-CODE123", 50)
	if !res.Valid {
		t.Fatalf("expected valid for cust-2, got reason %q", res.Reason)
	}
}

func TestValidateMinSpend(t *testing.T) {
	repo := newMemPromoRepo()
	seedCode(repo, "BIG-SPEND123", nil, 1, 40)
	svc := newService(repo)

	res, _ := svc.Validate(context.Background(), testRestaurant, "cust-1", "BIG-SPEND123", 39.99)
	if res.Valid || res.Reason != promo.ReasonMinSpendNotMet {
		t.Fatalf("expected min-spend-not-met, got %+v", res)
	}

	res, _ = svc.Validate(context.Background(), testRestaurant, "cust-1", "BIG-SPEND123", 40)
	if !res.Valid {
		t.Fatalf("expected valid at exactly min spend, got reason %q", res.Reason)
	}
}

func TestValidateRejectionOrder(t *testing.T) {
	// A code failing several rules must report the first in the fixed
	// order: window before global cap before per-customer before spend.
	repo := newMemPromoRepo()
	p := seedCode(repo, "MULTI-FAIL12", intPtr(1), 1, 100)
	p.TotalUses = 1
	p.IsActive = false
	svc := newService(repo)

	res, _ := svc.Validate(context.Background(), testRestaurant, "cust-1", "MULTI-FAIL12", 10)
	if res.Reason != promo.ReasonInvalidOrExpired {
		t.Fatalf("expected invalid-or-expired first, got %q", res.Reason)
	}

	p.IsActive = true
	res, _ = svc.Validate(context.Background(), testRestaurant, "cust-1", "MULTI-FAIL12", 10)
	if res.Reason != promo.ReasonUsageLimitReached {
		t.Fatalf("expected usage-limit-reached second, got %q", res.Reason)
	}
}

func TestValidateInvariantViolation(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "BROKEN-CODE1", intPtr(5), 1, 0)
	p.TotalUses = 6
	svc := newService(repo)

	_, err := svc.Validate(context.Background(), testRestaurant, "cust-1", "BROKEN-CODE1", 50)
	if err != promo.ErrInvariant {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestValidateDiscountClamped(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "FIXED-CODE12", nil, 1, 0)
	p.DiscountType = domain.DiscountFixedAmount
	p.DiscountValue = 15
	svc := newService(repo)

	res, _ := svc.Validate(context.Background(), testRestaurant, "cust-1", "FIXED-CODE12", 10)
	if res.Discount != 10 {
		t.Fatalf("expected discount clamped to order amount 10, got %v", res.Discount)
	}
}

func TestRedeemHappyPath(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "GO-CODE12345", intPtr(10), 1, 0)
	svc := newService(repo)

	id, err := svc.Redeem(context.Background(), p.ID, "cust-1", testRestaurant, 50, 10)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if id == "" {
		t.Fatal("expected a redemption id")
	}
	if repo.totalUses(p.ID) != 1 {
		t.Fatalf("expected total_uses 1, got %d", repo.totalUses(p.ID))
	}
}

func TestRedeemDiscountOutOfRange(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "GO-CODE12345", nil, 1, 0)
	svc := newService(repo)

	if _, err := svc.Redeem(context.Background(), p.ID, "cust-1", testRestaurant, 50, 60); err == nil {
		t.Fatal("expected error for discount exceeding order")
	}
	if _, err := svc.Redeem(context.Background(), p.ID, "cust-1", testRestaurant, 50, -1); err == nil {
		t.Fatal("expected error for negative discount")
	}
}

func TestRedeemRetriesContention(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "BUSY-CODE123", intPtr(10), 1, 0)
	repo.contentionsToInject = 2
	svc := newService(repo)

	id, err := svc.Redeem(context.Background(), p.ID, "cust-1", testRestaurant, 50, 10)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if id == "" {
		t.Fatal("expected a redemption id")
	}
}

func TestRedeemContentionExhausted(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "BUSY-CODE123", intPtr(10), 1, 0)
	repo.contentionsToInject = 10
	svc := newService(repo)

	_, err := svc.Redeem(context.Background(), p.ID, "cust-1", testRestaurant, 50, 10)
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if repo.totalUses(p.ID) != 0 {
		t.Fatalf("expected no redemption recorded, got %d uses", repo.totalUses(p.ID))
	}
}

func TestRedeemRejectionNotRetried(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "ONE-CODE1234", intPtr(1), 1, 0)
	p.TotalUses = 1
	svc := newService(repo)

	_, err := svc.Redeem(context.Background(), p.ID, "cust-1", testRestaurant, 50, 10)
	re, ok := promo.AsRejection(err)
	if !ok {
		t.Fatalf("expected a rejection, got %v", err)
	}
	if re.Reason != promo.ReasonUsageLimitReached {
		t.Fatalf("expected usage-limit-reached, got %q", re.Reason)
	}
}

// TestRedeemConcurrentCap drives many goroutines at one capped code and
// requires the accepted count to land exactly on the cap.
func TestRedeemConcurrentCap(t *testing.T) {
	const (
		maxUses    = 100
		contenders = 200
	)
	repo := newMemPromoRepo()
	p := seedCode(repo, "RACE-CODE123", intPtr(maxUses), 1, 0)
	svc := newService(repo)

	var (
		wg        sync.WaitGroup
		successMu sync.Mutex
		successes int
		rejects   int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Redeem(context.Background(), p.ID,
				fmt.Sprintf("cust-%03d", n), testRestaurant, 50, 10)
			successMu.Lock()
			defer successMu.Unlock()
			if err == nil {
				successes++
				return
			}
			if _, ok := promo.AsRejection(err); ok {
				rejects++
				return
			}
			t.Errorf("unexpected error: %v", err)
		}(i)
	}
	wg.Wait()

	if successes != maxUses {
		t.Fatalf("expected exactly %d successes, got %d", maxUses, successes)
	}
	if rejects != contenders-maxUses {
		t.Fatalf("expected %d rejections, got %d", contenders-maxUses, rejects)
	}
	if repo.totalUses(p.ID) != maxUses {
		t.Fatalf("expected total_uses %d, got %d", maxUses, repo.totalUses(p.ID))
	}
}

// TestRedeemConcurrentPerCustomer races one customer at a multi-use code
// with a per-customer cap of 1.
func TestRedeemConcurrentPerCustomer(t *testing.T) {
	repo := newMemPromoRepo()
	p := seedCode(repo, "ONEPER-CODE1", intPtr(100), 1, 0)
	svc := newService(repo)

	var (
		wg        sync.WaitGroup
		successMu sync.Mutex
		successes int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Redeem(context.Background(), p.ID, "cust-1", testRestaurant, 50, 10); err == nil {
				successMu.Lock()
				successes++
				successMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly 1 success for the customer, got %d", successes)
	}
}

func TestCreateGeneratesCode(t *testing.T) {
	repo := newMemPromoRepo()
	svc := newService(repo)

	p, err := svc.Create(context.Background(), testRestaurant, promo.CreateInput{
		Prefix:        "summer",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: 20,
		ValidFrom:     time.Now(),
		ValidUntil:    time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(p.Code, "SUMMER-") {
		t.Fatalf("expected SUMMER- prefix, got %q", p.Code)
	}
	suffix := strings.TrimPrefix(p.Code, "SUMMER-")
	if len(suffix) != 8 {
		t.Fatalf("expected 8-char suffix, got %q", suffix)
	}
	for _, r := range suffix {
		if strings.ContainsRune("0OI1L", r) {
			t.Fatalf("suffix contains ambiguous character %q: %s", r, suffix)
		}
	}
	if p.MaxUsesPerCustomer != 1 {
		t.Fatalf("expected per-customer default 1, got %d", p.MaxUsesPerCustomer)
	}
}

func TestCreateEmptyPrefixDefaults(t *testing.T) {
	repo := newMemPromoRepo()
	svc := newService(repo)

	p, err := svc.Create(context.Background(), testRestaurant, promo.CreateInput{
		DiscountType:  domain.DiscountFixedAmount,
		DiscountValue: 5,
		ValidFrom:     time.Now(),
		ValidUntil:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(p.Code, "PROMO-") {
		t.Fatalf("expected PROMO- default prefix, got %q", p.Code)
	}
}

func TestCreateExplicitDuplicateRejected(t *testing.T) {
	repo := newMemPromoRepo()
	seedCode(repo, "TAKEN-CODE12", nil, 1, 0)
	svc := newService(repo)

	_, err := svc.Create(context.Background(), testRestaurant, promo.CreateInput{
		Code:          "TAKEN-CODE12",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: 10,
		ValidFrom:     time.Now(),
		ValidUntil:    time.Now().Add(time.Hour),
	})
	if err != promo.ErrDuplicateCode {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newService(newMemPromoRepo())
	now := time.Now()
	cases := []promo.CreateInput{
		{DiscountType: "mystery", DiscountValue: 10, ValidFrom: now, ValidUntil: now.Add(time.Hour)},
		{DiscountType: domain.DiscountPercentage, DiscountValue: 0, ValidFrom: now, ValidUntil: now.Add(time.Hour)},
		{DiscountType: domain.DiscountPercentage, DiscountValue: 150, ValidFrom: now, ValidUntil: now.Add(time.Hour)},
		{DiscountType: domain.DiscountPercentage, DiscountValue: 10, ValidFrom: now, ValidUntil: now},
		{DiscountType: domain.DiscountPercentage, DiscountValue: 10, ValidFrom: now, ValidUntil: now.Add(time.Hour), MaxUses: intPtr(0)},
	}
	for i, in := range cases {
		if _, err := svc.Create(context.Background(), testRestaurant, in); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
