package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
)

// AuditRepo implements campaign.AuditLog against PostgreSQL. The table is
// append-only; there is no update or delete path.
type AuditRepo struct{ db *sql.DB }

// NewAuditRepo creates a Postgres-backed audit log.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Append(ctx context.Context, e *domain.AuditLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log
			(id, restaurant_id, campaign_id, action, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, e.ID, e.RestaurantID, e.CampaignID, e.Action, e.Actor, e.Detail)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepo) List(ctx context.Context, restaurantID, campaignID string, limit int) ([]domain.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, restaurant_id, campaign_id, action, actor, COALESCE(detail,''), created_at
		FROM audit_log
		WHERE restaurant_id = $1 AND campaign_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, restaurantID, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.RestaurantID, &e.CampaignID, &e.Action, &e.Actor, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
