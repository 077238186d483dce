package telephony

import (
	"context"
	"errors"
	"time"
)

// Gateway is the call-control contract used by the dialer engine.
//
// Rules:
//   - No platform SDK or HTTP calls outside telephony adapters.
//   - Keep request/response types platform-agnostic.
//   - Every blocking call honors ctx and the adapter's own request timeout.
type Gateway interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// Originate places a new channel and returns its identifier.
	Originate(ctx context.Context, req OriginateRequest) (OriginateResult, error)
	Hangup(ctx context.Context, channelID, reason string) error

	CreateBridge(ctx context.Context) (string, error)
	AddToBridge(ctx context.Context, bridgeID, channelID string) error

	ListChannels(ctx context.Context) ([]Channel, error)
}

// EventSource delivers CallEvents for channels tagged with the dialer's
// application. Run blocks until ctx is done, reconnecting as needed.
type EventSource interface {
	Run(ctx context.Context, out chan<- CallEvent) error
}

var (
	// ErrNoChannel is returned when the platform accepted the request but did
	// not return a channel identifier.
	ErrNoChannel = errors.New("telephony: originate returned no channel id")
	// ErrChannelNotFound is returned for operations on unknown channels.
	ErrChannelNotFound = errors.New("telephony: channel not found")
)

// Channel variables set on every dialer origination.
const (
	VarCampaignID   = "DIALER_CAMPAIGN_ID"
	VarLeadID       = "DIALER_LEAD_ID"
	VarAgentDest    = "DIALER_AGENT_DEST"
	VarAgentContext = "DIALER_AGENT_CONTEXT"
	// VarLeg is LegCustomer or LegAgent.
	VarLeg = "DIALER_LEG"
)

const (
	LegCustomer = "customer"
	LegAgent    = "agent"
)

// OriginateRequest asks the platform to place a call.
//
// When Extension is empty the channel is handed to the dialer's application
// instead of a dialplan location.
type OriginateRequest struct {
	// ChannelID, when set, is the identifier the platform must assign.
	ChannelID string `json:"channelId,omitempty"`
	Endpoint  string `json:"endpoint"`
	Extension string `json:"extension,omitempty"`
	Context   string `json:"context,omitempty"`
	Priority  int    `json:"priority,omitempty"`

	// CallerID is "Name" <number> formatted.
	CallerID  string            `json:"callerId,omitempty"`
	Timeout   int               `json:"timeout,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

type OriginateResult struct {
	ChannelID string `json:"channel_id"`
}

// Channel is one live call leg as reported by the platform.
type Channel struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	State        string    `json:"state"`
	CallerNumber string    `json:"caller_number,omitempty"`
	Dialplan     string    `json:"dialplan,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
