package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - campaign_id is required; every dialer event belongs to a campaign.
// - recording is best-effort; do not block dialing on audit failures.
type Event struct {
	ID         string `json:"id" db:"id"`
	CampaignID int64  `json:"campaign_id" db:"campaign_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// Target identifiers (optional, depending on the event type).
	LeadID    int64  `json:"lead_id,omitempty" db:"lead_id"`
	ChannelID string `json:"channel_id,omitempty" db:"channel_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeLifecycle  EventType = "campaign_lifecycle"
	EventTypeLeadsReset EventType = "leads_reset"
	EventTypeBridge     EventType = "bridge_failure"
	EventTypeCompleted  EventType = "campaign_completed"
)
