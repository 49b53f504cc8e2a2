package domain

import "time"

// Channel enumerates the message channels a campaign can deliver on.
type Channel string

const (
	ChannelPush     Channel = "push"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// ValidChannel reports whether c is a known delivery channel.
func ValidChannel(c Channel) bool {
	switch c {
	case ChannelPush, ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

// Customer represents a restaurant's patron. Customers are owned by the
// ordering/loyalty subsystems and are read-only to this engine.
type Customer struct {
	ID            string     `json:"id" db:"id"`
	RestaurantID  string     `json:"restaurant_id" db:"restaurant_id"`
	Email         string     `json:"email" db:"email"`
	Phone         string     `json:"phone" db:"phone"`
	FirstName     string     `json:"first_name" db:"first_name"`
	LastName      string     `json:"last_name" db:"last_name"`
	LastVisitAt   *time.Time `json:"last_visit_at" db:"last_visit_at"`
	LoyaltyPoints int        `json:"loyalty_points" db:"loyalty_points"`

	// Per-channel consent flags. A send row is only created on a channel
	// the customer consented to.
	PushConsent     bool `json:"push_consent" db:"push_consent"`
	EmailConsent    bool `json:"email_consent" db:"email_consent"`
	SMSConsent      bool `json:"sms_consent" db:"sms_consent"`
	WhatsAppConsent bool `json:"whatsapp_consent" db:"whatsapp_consent"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasConsent reports whether the customer consented to the given channel.
func (c *Customer) HasConsent(ch Channel) bool {
	switch ch {
	case ChannelPush:
		return c.PushConsent
	case ChannelEmail:
		return c.EmailConsent
	case ChannelSMS:
		return c.SMSConsent
	case ChannelWhatsApp:
		return c.WhatsAppConsent
	}
	return false
}

// Tag is a named label scoped to a restaurant, assigned to customers
// many-to-many. Tag management is an external collaborator; this engine
// only reads assignments.
type Tag struct {
	ID           string    `json:"id" db:"id"`
	RestaurantID string    `json:"restaurant_id" db:"restaurant_id"`
	Name         string    `json:"name" db:"name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
