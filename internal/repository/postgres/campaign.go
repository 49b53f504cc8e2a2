package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, restaurant_id, name, message, audience,
       primary_channel, fallback_channel, promo_code_id, status,
       estimated_audience_size, schedule_type, scheduled_at, recurrence_days,
       ab_split_percent, COALESCE(ab_message_variant,''),
       started_at, completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var (
		audienceJSON []byte
		fallback     sql.NullString
		promoID      sql.NullString
	)
	err := row.Scan(
		&c.ID, &c.RestaurantID, &c.Name, &c.Message, &audienceJSON,
		&c.PrimaryChannel, &fallback, &promoID, &c.Status,
		&c.EstimatedAudienceSize, &c.ScheduleType, &c.ScheduledAt, &c.RecurrenceDays,
		&c.ABSplitPercent, &c.ABMessageVariant,
		&c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fallback.Valid {
		ch := domain.Channel(fallback.String)
		c.FallbackChannel = &ch
	}
	if promoID.Valid {
		c.PromoCodeID = &promoID.String
	}
	if len(audienceJSON) > 0 {
		if err := json.Unmarshal(audienceJSON, &c.Audience); err != nil {
			return nil, fmt.Errorf("decode audience: %w", err)
		}
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, restaurantID, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1 AND restaurant_id = $2
	`, id, restaurantID)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, restaurantID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM campaigns WHERE restaurant_id = $1`
	countArgs := []interface{}{restaurantID}
	if f.Status != "" {
		countQ += ` AND status = $2`
		countArgs = append(countArgs, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE restaurant_id = $1`
	args := []interface{}{restaurantID}
	idx := 2
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	audienceJSON, err := c.MarshalAudience()
	if err != nil {
		return "", fmt.Errorf("encode audience: %w", err)
	}

	var fallback interface{}
	if c.FallbackChannel != nil {
		fallback = string(*c.FallbackChannel)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, restaurant_id, name, message, audience,
			 primary_channel, fallback_channel, promo_code_id, status,
			 estimated_audience_size, schedule_type, recurrence_days,
			 ab_split_percent, ab_message_variant, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	`, c.ID, c.RestaurantID, c.Name, c.Message, audienceJSON,
		c.PrimaryChannel, fallback, c.PromoCodeID, c.Status,
		c.EstimatedAudienceSize, c.ScheduleType, c.RecurrenceDays,
		c.ABSplitPercent, c.ABMessageVariant)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

func (r *CampaignRepo) Update(ctx context.Context, restaurantID, id string, u campaign.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Message != nil {
		add("message", *u.Message)
	}
	if u.Audience != nil {
		audienceJSON, err := json.Marshal(u.Audience)
		if err != nil {
			return fmt.Errorf("encode audience: %w", err)
		}
		add("audience", audienceJSON)
	}
	if u.PrimaryChannel != nil {
		add("primary_channel", string(*u.PrimaryChannel))
	}
	if u.FallbackChannel != nil {
		add("fallback_channel", string(*u.FallbackChannel))
	}
	if u.PromoCodeID != nil {
		add("promo_code_id", *u.PromoCodeID)
	}
	if u.ABSplitPercent != nil {
		add("ab_split_percent", *u.ABSplitPercent)
	}
	if u.ABMessage != nil {
		add("ab_message_variant", *u.ABMessage)
	}

	if len(sets) == 0 {
		return nil
	}

	q := fmt.Sprintf(`UPDATE campaigns SET %s, updated_at = NOW() WHERE id = $%d AND restaurant_id = $%d`,
		joinComma(sets), idx, idx+1)
	args = append(args, id, restaurantID)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// UpdateStatus transitions the campaign only when its current status is in
// from. The status guard in the WHERE clause makes concurrent transitions
// lose cleanly instead of clobbering each other.
func (r *CampaignRepo) UpdateStatus(ctx context.Context, restaurantID, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW()
		WHERE id = $2 AND restaurant_id = $3 AND status = ANY($4)
	`, to, id, restaurantID, pq.Array(fromStrs))
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *CampaignRepo) SetSchedule(ctx context.Context, restaurantID, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET scheduled_at = $1, updated_at = NOW()
		WHERE id = $2 AND restaurant_id = $3
	`, at, id, restaurantID)
	if err != nil {
		return fmt.Errorf("set schedule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) SetEstimate(ctx context.Context, restaurantID, id string, estimate int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET estimated_audience_size = $1, updated_at = NOW()
		WHERE id = $2 AND restaurant_id = $3
	`, estimate, id, restaurantID)
	if err != nil {
		return fmt.Errorf("set estimate: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) MarkDispatched(ctx context.Context, id string, estimate int, startedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET estimated_audience_size = $1, started_at = $2, updated_at = NOW()
		WHERE id = $3
	`, estimate, startedAt, id)
	if err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) MarkCompleted(ctx context.Context, id string, completedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET completed_at = $1, updated_at = NOW()
		WHERE id = $2
	`, completedAt, id)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// AdvanceRecurrence re-arms a completed recurring campaign for its next run.
func (r *CampaignRepo) AdvanceRecurrence(ctx context.Context, id string, next time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $1, scheduled_at = $2, started_at = NULL, completed_at = NULL,
		    updated_at = NOW()
		WHERE id = $3 AND schedule_type = $4
	`, domain.CampaignScheduled, next, id, domain.ScheduleRecurring)
	if err != nil {
		return fmt.Errorf("advance recurrence: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// ListDue returns scheduled campaigns whose time has arrived, for the
// dispatch worker.
func (r *CampaignRepo) ListDue(ctx context.Context, asOf time.Time, limit int) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at
		LIMIT $3
	`, domain.CampaignScheduled, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListSending returns campaigns currently in flight, for completion checks.
func (r *CampaignRepo) ListSending(ctx context.Context, limit int) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = $1
		ORDER BY started_at
		LIMIT $2
	`, domain.CampaignSending, limit)
	if err != nil {
		return nil, fmt.Errorf("list sending campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sending campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
