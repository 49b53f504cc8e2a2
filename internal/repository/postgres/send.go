package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// SendRepo implements campaign.SendLedger against PostgreSQL.
type SendRepo struct{ db *sql.DB }

// NewSendRepo creates a Postgres-backed send ledger.
func NewSendRepo(db *sql.DB) *SendRepo { return &SendRepo{db: db} }

// CreateRows batch-inserts ledger rows. The unique index on
// (campaign_id, customer_id) plus ON CONFLICT DO NOTHING makes dispatch
// idempotent: a re-run after pause or crash only fills the gaps.
func (r *SendRepo) CreateRows(ctx context.Context, sends []domain.CampaignSend) (int, error) {
	if len(sends) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin send batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_sends
			(id, campaign_id, customer_id, channel, status, promo_code_id,
			 ab_variant, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (campaign_id, customer_id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare send insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, s := range sends {
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		res, err := stmt.ExecContext(ctx, s.ID, s.CampaignID, s.CustomerID,
			s.Channel, s.Status, s.PromoCodeID, s.ABVariant)
		if err != nil {
			return 0, fmt.Errorf("insert send row: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit send batch: %w", err)
	}
	return inserted, nil
}

func (r *SendRepo) UpdateStatus(ctx context.Context, sendID string, status domain.SendStatus, at time.Time, errorMessage string) error {
	var stampCol string
	switch status {
	case domain.SendSent:
		stampCol = "sent_at"
	case domain.SendDelivered:
		stampCol = "delivered_at"
	}

	q := `UPDATE campaign_sends SET status = $1, error_message = $2`
	args := []interface{}{status, errorMessage}
	idx := 3
	if stampCol != "" {
		q += fmt.Sprintf(", %s = $%d", stampCol, idx)
		args = append(args, at)
		idx++
	}
	q += fmt.Sprintf(" WHERE id = $%d", idx)
	args = append(args, sendID)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update send status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *SendRepo) MarkEngagement(ctx context.Context, sendID string, event campaign.EngagementEvent, at time.Time) error {
	var col string
	switch event {
	case campaign.EngagementOpened:
		col = "opened_at"
	case campaign.EngagementClicked:
		col = "clicked_at"
	default:
		return fmt.Errorf("unknown engagement event %q", event)
	}

	// First stamp wins; repeated webhooks for the same event are no-ops.
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE campaign_sends SET %s = $1 WHERE id = $2 AND %s IS NULL
	`, col, col), at, sendID)
	if err != nil {
		return fmt.Errorf("mark engagement: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Distinguish "already stamped" from "no such send".
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM campaign_sends WHERE id = $1)`, sendID).Scan(&exists); err != nil {
			return fmt.Errorf("check send exists: %w", err)
		}
		if !exists {
			return campaign.ErrNotFound
		}
	}
	return nil
}

func (r *SendRepo) List(ctx context.Context, campaignID string, limit, offset int) ([]domain.CampaignSend, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, customer_id, channel, status,
		       sent_at, delivered_at, opened_at, clicked_at,
		       COALESCE(error_message,''), promo_code_id, COALESCE(ab_variant,''),
		       created_at
		FROM campaign_sends
		WHERE campaign_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sends: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignSend
	for rows.Next() {
		var s domain.CampaignSend
		var promoID sql.NullString
		if err := rows.Scan(
			&s.ID, &s.CampaignID, &s.CustomerID, &s.Channel, &s.Status,
			&s.SentAt, &s.DeliveredAt, &s.OpenedAt, &s.ClickedAt,
			&s.ErrorMessage, &promoID, &s.ABVariant,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan send: %w", err)
		}
		if promoID.Valid {
			s.PromoCodeID = &promoID.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SendRepo) AllTerminal(ctx context.Context, campaignID string) (bool, int, error) {
	var total, pending int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status NOT IN ('sent','delivered','failed','bounced'))
		FROM campaign_sends
		WHERE campaign_id = $1
	`, campaignID).Scan(&total, &pending)
	if err != nil {
		return false, 0, fmt.Errorf("count send terminality: %w", err)
	}
	return pending == 0, total, nil
}
