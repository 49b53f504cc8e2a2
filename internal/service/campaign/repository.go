package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/audience"
	"github.com/ignite/campaign-engine/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, restaurantID, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter, ordered by created_at DESC,
	// plus the unfiltered total for pagination.
	List(ctx context.Context, restaurantID string, f ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Update modifies draft-mutable fields. Only non-nil fields are applied.
	Update(ctx context.Context, restaurantID, id string, u UpdateFields) error

	// UpdateStatus transitions status only when the current status is one of
	// from; reports whether a row was updated. The guard makes transitions
	// race-safe without locking the row.
	UpdateStatus(ctx context.Context, restaurantID, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (bool, error)

	// SetSchedule stores the scheduling decision taken at draft → scheduled.
	SetSchedule(ctx context.Context, restaurantID, id string, at time.Time) error

	// SetEstimate refreshes the cached audience estimate.
	SetEstimate(ctx context.Context, restaurantID, id string, estimate int) error

	// MarkDispatched records the fresh audience estimate and started_at as
	// the campaign enters sending.
	MarkDispatched(ctx context.Context, id string, estimate int, startedAt time.Time) error

	// MarkCompleted stamps completed_at as the campaign reaches sent.
	MarkCompleted(ctx context.Context, id string, completedAt time.Time) error

	// AdvanceRecurrence moves a recurring campaign's scheduled_at forward
	// and returns it to scheduled after a completed run.
	AdvanceRecurrence(ctx context.Context, id string, next time.Time) error
}

// SendLedger is the append-mostly record of outbound attempts. Dispatch
// creates rows; only the delivery collaborator mutates their status.
type SendLedger interface {
	// CreateRows inserts one ledger row per recipient, skipping pairs that
	// already have one, and returns the number actually inserted.
	CreateRows(ctx context.Context, rows []domain.CampaignSend) (int, error)

	// UpdateStatus applies a delivery-collaborator status change, stamping
	// the matching timestamp column. Returns ErrNotFound for unknown sends.
	UpdateStatus(ctx context.Context, sendID string, status domain.SendStatus, at time.Time, errorMessage string) error

	// MarkEngagement stamps opened_at or clicked_at on a send row.
	MarkEngagement(ctx context.Context, sendID string, event EngagementEvent, at time.Time) error

	// List returns the ledger rows for a campaign.
	List(ctx context.Context, campaignID string, limit, offset int) ([]domain.CampaignSend, error)

	// AllTerminal reports whether every row of the campaign has reached a
	// terminal status; total is the row count. Zero rows reports true, 0.
	AllTerminal(ctx context.Context, campaignID string) (terminal bool, total int, err error)
}

// EngagementEvent distinguishes the two engagement timestamps on a send row.
type EngagementEvent string

const (
	EngagementOpened  EngagementEvent = "opened"
	EngagementClicked EngagementEvent = "clicked"
)

// AuditLog records campaign lifecycle actions, append-only.
type AuditLog interface {
	Append(ctx context.Context, e *domain.AuditLogEntry) error
	List(ctx context.Context, restaurantID, campaignID string, limit int) ([]domain.AuditLogEntry, error)
}

// Resolver is the audience dependency: fresh counts and member sets.
// *audience.Resolver satisfies it; tests substitute fakes.
type Resolver interface {
	Resolve(ctx context.Context, restaurantID string, spec domain.AudienceSpec) (int, error)
	ResolveMembers(ctx context.Context, restaurantID string, spec domain.AudienceSpec) ([]audience.Member, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// UpdateFields holds the draft-mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name            *string              `json:"name"`
	Message         *string              `json:"message"`
	Audience        *domain.AudienceSpec `json:"audience"`
	PrimaryChannel  *domain.Channel      `json:"primary_channel"`
	FallbackChannel *domain.Channel      `json:"fallback_channel"`
	PromoCodeID     *string              `json:"promo_code_id"`
	ABSplitPercent  *int                 `json:"ab_split_percent"`
	ABMessage       *string              `json:"ab_message_variant"`
}
