// Package metrics derives per-campaign delivery and engagement counters
// from the send ledger. The ledger is the only source of truth: every
// recompute overwrites the whole counter row, so running it twice, out of
// order, or concurrently converges on the same numbers. Nothing here
// increments anything.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// ErrNotFound means no metrics row exists for the campaign yet.
var ErrNotFound = errors.New("campaign metrics not found")

// Repository defines the data access contract for metrics aggregation.
type Repository interface {
	// CountLedger aggregates the campaign's send ledger into a fresh
	// counter set. Targeted is the row count; sent/delivered/failed/
	// bounced count by status; opened/clicked count stamped engagement
	// timestamps. A campaign with no rows aggregates to all zeros.
	CountLedger(ctx context.Context, campaignID string) (*domain.CampaignMetrics, error)

	// Upsert stores the counter row, replacing every column of any
	// existing row for the campaign.
	Upsert(ctx context.Context, m *domain.CampaignMetrics) error

	// Get returns the stored counter row. Returns ErrNotFound when the
	// campaign has never been aggregated.
	Get(ctx context.Context, restaurantID, campaignID string) (*domain.CampaignMetrics, error)

	// ActiveCampaignIDs returns campaigns whose counters may still move:
	// currently sending, or completed within the grace window (late
	// delivery receipts and engagement events keep trickling in).
	ActiveCampaignIDs(ctx context.Context, completedWithin time.Duration, limit int) ([]string, error)
}

// Service recomputes and serves campaign metrics.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a metrics service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Recompute rebuilds the campaign's counter row from the ledger and stores
// it. Safe to call any number of times.
func (s *Service) Recompute(ctx context.Context, campaignID string) (*domain.CampaignMetrics, error) {
	m, err := s.repo.CountLedger(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("aggregate ledger: %w", err)
	}
	m.CampaignID = campaignID
	m.ComputedAt = s.now()

	if err := s.repo.Upsert(ctx, m); err != nil {
		return nil, fmt.Errorf("store metrics: %w", err)
	}
	return m, nil
}

// Get returns the stored counters for a campaign. Campaigns that were never
// aggregated get a lazily computed row rather than an error, so the read
// path never races the background worker.
func (s *Service) Get(ctx context.Context, restaurantID, campaignID string) (*domain.CampaignMetrics, error) {
	m, err := s.repo.Get(ctx, restaurantID, campaignID)
	if errors.Is(err, ErrNotFound) {
		return s.Recompute(ctx, campaignID)
	}
	return m, err
}

// RecomputeActive refreshes every campaign whose counters may still move.
// Per-campaign failures are logged and skipped so one bad campaign cannot
// starve the rest. Returns the number successfully recomputed.
func (s *Service) RecomputeActive(ctx context.Context, completedWithin time.Duration, limit int) (int, error) {
	ids, err := s.repo.ActiveCampaignIDs(ctx, completedWithin, limit)
	if err != nil {
		return 0, fmt.Errorf("list active campaigns: %w", err)
	}

	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.Recompute(ctx, id); err != nil {
			logger.Error("metrics recompute failed", "campaign_id", id, "error", err.Error())
			continue
		}
		done++
	}
	return done, nil
}
