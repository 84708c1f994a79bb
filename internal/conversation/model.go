package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// State is a node of the onboarding dialogue.
type State string

const (
	StateWaitlist        State = "waitlist"
	StateGreeting        State = "greeting"
	StateAskName         State = "ask_name"
	StateAskType         State = "ask_type"
	StateAwaitingPayment State = "awaiting_payment"
	StateAskPassword     State = "ask_password"
	StateExpired         State = "expired"
	StateActive          State = "active"
)

// EntryState is where resets and re-entries land when an entry prompt is sent.
const EntryState = StateAskName

var (
	ErrNotFound     = errors.New("conversation: not found")
	ErrInvalidState = errors.New("conversation: invalid state for operation")
	// ErrStale reports a Save against a row the expiry sweep has claimed
	// since the conversation was loaded.
	ErrStale        = errors.New("conversation: changed since loaded")
)

// Conversation is the per-phone dialogue record.
type Conversation struct {
	Phone         string     `json:"phone"`
	State         State      `json:"state"`
	SiteName      string     `json:"site_name,omitempty"`
	SiteType      string     `json:"site_type,omitempty"`
	ContactPhone  string     `json:"contact_phone,omitempty"`
	SiteURL       string     `json:"site_url,omitempty"`
	SiteSubdomain string     `json:"site_subdomain,omitempty"`
	SiteHTML      string     `json:"-"`
	CarrierNumber string     `json:"carrier_number,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	SiteDeleted   bool       `json:"site_deleted"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (c *Conversation) clone() *Conversation {
	cp := *c
	if c.PaidAt != nil {
		t := *c.PaidAt
		cp.PaidAt = &t
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

// Field names a profile attribute filled by extraction.
type Field string

const (
	FieldSiteName     Field = "site_name"
	FieldSiteType     Field = "site_type"
	FieldContactPhone Field = "contact_phone"
)

func (c *Conversation) setField(f Field, value string) {
	switch f {
	case FieldSiteName:
		c.SiteName = value
	case FieldSiteType:
		c.SiteType = value
	case FieldContactPhone:
		if c.ContactPhone == "" {
			c.ContactPhone = value
		}
	}
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one entry of the append-only message log.
type Message struct {
	ID                uuid.UUID `json:"id"`
	Phone             string    `json:"phone"`
	Direction         Direction `json:"direction"`
	Body              string    `json:"body"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
