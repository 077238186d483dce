package calls

import (
	"time"

	"outbound-dialer/internal/campaigns"
)

// Call is the dialer CDR: one row per originated customer channel.
//
// ChannelID is the correlation key between the platform's event stream and
// the lead/campaign domain. Exactly one open Call exists per live channel.
//
// Phone and AgentDestination are denormalized at origination time so events
// can be handled even if the lead row changes later.
type Call struct {
	ID         int64  `json:"id" db:"id"`
	ChannelID  string `json:"channel_id" db:"channel_id"`
	CampaignID int64  `json:"campaign_id" db:"campaign_id"`
	LeadID     int64  `json:"lead_id" db:"lead_id"`

	Phone            string `json:"phone" db:"phone"`
	AgentDestination string `json:"agent_destination,omitempty" db:"agent_destination"`
	AgentContext     string `json:"agent_context,omitempty" db:"agent_context"`

	State State `json:"state" db:"state"`

	// Status mirrors the lead status at the moment the call ended.
	Status      campaigns.LeadStatus `json:"status,omitempty" db:"status"`
	Disposition string               `json:"disposition,omitempty" db:"disposition"`
	Cause       int                  `json:"cause,omitempty" db:"cause"`

	// Bridged is true once the agent leg joined the customer in a bridge.
	Bridged           bool   `json:"bridged" db:"bridged"`
	BridgeID          string `json:"bridge_id,omitempty" db:"bridge_id"`
	AgentChannelID    string `json:"agent_channel_id,omitempty" db:"agent_channel_id"`
	AgentLegAttempted bool   `json:"agent_leg_attempted" db:"agent_leg_attempted"`

	CallStart time.Time  `json:"call_start" db:"call_start"`
	CallEnd   *time.Time `json:"call_end,omitempty" db:"call_end"`

	// DurationSeconds is whole seconds between CallStart and CallEnd.
	DurationSeconds int `json:"duration" db:"duration"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type State string

const (
	StateInitiated State = "initiated"
	StateRinging   State = "ringing"
	StateAnswered  State = "answered"
	StateBusy      State = "busy"
	StateDestroyed State = "destroyed"
)

// Closed reports whether a Destroyed event was already applied.
func (c Call) Closed() bool {
	return c.State == StateDestroyed
}

// Close applies the terminal outcome to the call record.
func (c *Call) Close(d Disposition, cause int, end time.Time) {
	c.State = StateDestroyed
	c.Status = d.Status
	c.Disposition = d.Label
	c.Cause = cause
	c.CallEnd = &end
	c.DurationSeconds = 0
	if end.After(c.CallStart) {
		c.DurationSeconds = int(end.Sub(c.CallStart) / time.Second)
	}
	c.UpdatedAt = end
}
