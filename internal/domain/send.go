package domain

import "time"

// SendStatus enumerates the per-recipient lifecycle of one send attempt.
type SendStatus string

const (
	SendPending   SendStatus = "pending"
	SendSent      SendStatus = "sent"
	SendDelivered SendStatus = "delivered"
	SendFailed    SendStatus = "failed"
	SendBounced   SendStatus = "bounced"
)

// IsTerminalSendStatus reports whether a send row has reached a final state.
// A campaign completes when every one of its sends is terminal.
func IsTerminalSendStatus(s SendStatus) bool {
	switch s {
	case SendSent, SendDelivered, SendFailed, SendBounced:
		return true
	}
	return false
}

// CampaignSend is one row of the send ledger: a single outbound attempt for
// one (campaign, customer) pair. Created at dispatch; mutated only by the
// external delivery collaborator as outcomes arrive; cascade-deleted with
// the campaign and never deleted otherwise.
type CampaignSend struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	CustomerID string `json:"customer_id" db:"customer_id"`

	Channel Channel    `json:"channel" db:"channel"`
	Status  SendStatus `json:"status" db:"status"`

	SentAt      *time.Time `json:"sent_at" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at" db:"delivered_at"`
	OpenedAt    *time.Time `json:"opened_at" db:"opened_at"`
	ClickedAt   *time.Time `json:"clicked_at" db:"clicked_at"`

	ErrorMessage string  `json:"error_message" db:"error_message"`
	PromoCodeID  *string `json:"promo_code_id" db:"promo_code_id"`
	ABVariant    string  `json:"ab_variant" db:"ab_variant"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CampaignMetrics is the single fully-derived counter row per campaign.
// Recomputation overwrites every counter from the send ledger; nothing here
// is ever patched incrementally.
type CampaignMetrics struct {
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	Targeted   int    `json:"targeted" db:"targeted"`
	Sent       int    `json:"sent" db:"sent"`
	Delivered  int    `json:"delivered" db:"delivered"`
	Failed     int    `json:"failed" db:"failed"`
	Bounced    int    `json:"bounced" db:"bounced"`
	Opened     int    `json:"opened" db:"opened"`
	Clicked    int    `json:"clicked" db:"clicked"`

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}
