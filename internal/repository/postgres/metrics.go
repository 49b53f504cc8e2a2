package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/metrics"
)

// MetricsRepo implements metrics.Repository against PostgreSQL.
type MetricsRepo struct{ db *sql.DB }

// NewMetricsRepo creates a Postgres-backed metrics repository.
func NewMetricsRepo(db *sql.DB) *MetricsRepo { return &MetricsRepo{db: db} }

// CountLedger derives the full counter set from campaign_sends in one scan.
// "sent" counts everything that left the building, delivered included.
func (r *MetricsRepo) CountLedger(ctx context.Context, campaignID string) (*domain.CampaignMetrics, error) {
	m := &domain.CampaignMetrics{CampaignID: campaignID}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status IN ('sent','delivered')),
		       COUNT(*) FILTER (WHERE status = 'delivered'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'bounced'),
		       COUNT(opened_at),
		       COUNT(clicked_at)
		FROM campaign_sends
		WHERE campaign_id = $1
	`, campaignID).Scan(
		&m.Targeted, &m.Sent, &m.Delivered, &m.Failed, &m.Bounced,
		&m.Opened, &m.Clicked,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate sends: %w", err)
	}
	return m, nil
}

// Upsert replaces every counter column, never adds to them. Two concurrent
// recomputes both write complete rows, so the table converges regardless of
// ordering.
func (r *MetricsRepo) Upsert(ctx context.Context, m *domain.CampaignMetrics) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_metrics
			(campaign_id, targeted, sent, delivered, failed, bounced,
			 opened, clicked, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (campaign_id) DO UPDATE SET
			targeted = EXCLUDED.targeted,
			sent = EXCLUDED.sent,
			delivered = EXCLUDED.delivered,
			failed = EXCLUDED.failed,
			bounced = EXCLUDED.bounced,
			opened = EXCLUDED.opened,
			clicked = EXCLUDED.clicked,
			computed_at = EXCLUDED.computed_at
	`, m.CampaignID, m.Targeted, m.Sent, m.Delivered, m.Failed, m.Bounced,
		m.Opened, m.Clicked, m.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert metrics: %w", err)
	}
	return nil
}

func (r *MetricsRepo) Get(ctx context.Context, restaurantID, campaignID string) (*domain.CampaignMetrics, error) {
	m := &domain.CampaignMetrics{}
	err := r.db.QueryRowContext(ctx, `
		SELECT m.campaign_id, m.targeted, m.sent, m.delivered, m.failed,
		       m.bounced, m.opened, m.clicked, m.computed_at
		FROM campaign_metrics m
		JOIN campaigns c ON c.id = m.campaign_id
		WHERE m.campaign_id = $1 AND c.restaurant_id = $2
	`, campaignID, restaurantID).Scan(
		&m.CampaignID, &m.Targeted, &m.Sent, &m.Delivered, &m.Failed,
		&m.Bounced, &m.Opened, &m.Clicked, &m.ComputedAt,
	)
	if err == sql.ErrNoRows {
		return nil, metrics.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return m, nil
}

func (r *MetricsRepo) ActiveCampaignIDs(ctx context.Context, completedWithin time.Duration, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM campaigns
		WHERE status = 'sending'
		   OR (status = 'sent' AND completed_at > NOW() - $1::interval)
		ORDER BY started_at
		LIMIT $2
	`, fmt.Sprintf("%d seconds", int(completedWithin.Seconds())), limit)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan campaign id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
