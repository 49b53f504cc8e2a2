package domain

import (
	"encoding/json"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
)

// ScheduleType enumerates how a campaign is dispatched.
type ScheduleType string

const (
	ScheduleOneTime   ScheduleType = "one_time"
	ScheduleAt        ScheduleType = "scheduled"
	ScheduleRecurring ScheduleType = "recurring"
	ScheduleABTest    ScheduleType = "ab_test"
)

// ABVariantA and ABVariantB tag the two arms of an A/B campaign on each
// send row.
const (
	ABVariantA = "A"
	ABVariantB = "B"
)

// Campaign represents one marketing campaign owned by a restaurant.
type Campaign struct {
	ID           string `json:"id" db:"id"`
	RestaurantID string `json:"restaurant_id" db:"restaurant_id"`
	Name         string `json:"name" db:"name"`
	Message      string `json:"message" db:"message"`

	// Audience is immutable once the campaign leaves draft.
	Audience AudienceSpec `json:"audience" db:"audience"`

	PrimaryChannel  Channel  `json:"primary_channel" db:"primary_channel"`
	FallbackChannel *Channel `json:"fallback_channel" db:"fallback_channel"`

	// PromoCodeID links the promo code granted to every recipient, if any.
	PromoCodeID *string `json:"promo_code_id" db:"promo_code_id"`

	Status CampaignStatus `json:"status" db:"status"`

	// EstimatedAudienceSize is a cache of the last audience resolution.
	// It is recomputed immediately before dispatch; never trust it for
	// anything but display.
	EstimatedAudienceSize int `json:"estimated_audience_size" db:"estimated_audience_size"`

	ScheduleType     ScheduleType `json:"schedule_type" db:"schedule_type"`
	ScheduledAt      *time.Time   `json:"scheduled_at" db:"scheduled_at"`
	RecurrenceDays   int          `json:"recurrence_days" db:"recurrence_days"`
	ABSplitPercent   int          `json:"ab_split_percent" db:"ab_split_percent"`
	ABMessageVariant string       `json:"ab_message_variant" db:"ab_message_variant"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignCancelled
}

// CanTransitionTo reports whether moving from the campaign's current status
// to next is a legal lifecycle transition.
func (c *Campaign) CanTransitionTo(next CampaignStatus) bool {
	switch next {
	case CampaignScheduled:
		return c.Status == CampaignDraft
	case CampaignSending:
		return c.Status == CampaignScheduled || c.Status == CampaignPaused
	case CampaignSent:
		return c.Status == CampaignSending
	case CampaignPaused:
		return c.Status == CampaignSending
	case CampaignCancelled:
		return !c.IsTerminal()
	}
	return false
}

// MarshalAudience serializes the audience spec for storage.
func (c *Campaign) MarshalAudience() ([]byte, error) {
	return json.Marshal(c.Audience)
}

// AuditAction enumerates the lifecycle actions recorded per campaign.
type AuditAction string

const (
	AuditCreated    AuditAction = "created"
	AuditUpdated    AuditAction = "updated"
	AuditScheduled  AuditAction = "scheduled"
	AuditDispatched AuditAction = "dispatched"
	AuditCompleted  AuditAction = "completed"
	AuditCancelled  AuditAction = "cancelled"
	AuditPaused     AuditAction = "paused"
	AuditResumed    AuditAction = "resumed"
)

// AuditLogEntry is one append-only record of a campaign lifecycle action.
type AuditLogEntry struct {
	ID           string      `json:"id" db:"id"`
	RestaurantID string      `json:"restaurant_id" db:"restaurant_id"`
	CampaignID   string      `json:"campaign_id" db:"campaign_id"`
	Action       AuditAction `json:"action" db:"action"`
	Actor        string      `json:"actor" db:"actor"`
	Detail       string      `json:"detail" db:"detail"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}
