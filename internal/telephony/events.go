package telephony

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType is the dialer-side classification of a platform event.
type EventType string

const (
	EventStateChanged  EventType = "StateChanged"
	EventDestroyed     EventType = "Destroyed"
	EventBridgeCreated EventType = "BridgeCreated"
	EventUnrecognized  EventType = "Unrecognized"
)

// CallEvent is a transient lifecycle notification for one channel.
type CallEvent struct {
	Type      EventType `json:"type"`
	ChannelID string    `json:"channel_id"`

	// State is set for StateChanged (Ring, Ringing, Up, Busy, ...).
	State string `json:"state,omitempty"`

	// Cause and CauseText are set for Destroyed.
	Cause     int    `json:"cause,omitempty"`
	CauseText string `json:"cause_txt,omitempty"`

	BridgeID  string            `json:"bridge_id,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
	Timestamp time.Time         `json:"timestamp"`

	// Raw is the platform event name, kept for logging.
	Raw string `json:"raw,omitempty"`
}

// wireEvent is the subset of the platform's JSON event envelope we read.
type wireEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Cause     int    `json:"cause"`
	CauseText string `json:"cause_txt"`
	Channel   *struct {
		ID          string            `json:"id"`
		State       string            `json:"state"`
		ChannelVars map[string]string `json:"channelvars"`
	} `json:"channel"`
	Bridge *struct {
		ID string `json:"id"`
	} `json:"bridge"`
}

// Timestamp layouts seen on the wire.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z0700",
	time.RFC3339Nano,
}

// DecodeEvent converts a platform JSON event into a CallEvent.
// Unknown event names decode to EventUnrecognized rather than an error.
func DecodeEvent(data []byte) (CallEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return CallEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if strings.TrimSpace(w.Type) == "" {
		return CallEvent{}, fmt.Errorf("decode event: missing type")
	}

	ev := CallEvent{Raw: w.Type, Timestamp: parseTimestamp(w.Timestamp)}
	if w.Channel != nil {
		ev.ChannelID = w.Channel.ID
		ev.State = w.Channel.State
		ev.Variables = w.Channel.ChannelVars
	}
	if w.Bridge != nil {
		ev.BridgeID = w.Bridge.ID
	}

	switch w.Type {
	case "ChannelStateChange":
		ev.Type = EventStateChanged
	case "ChannelDestroyed":
		ev.Type = EventDestroyed
		ev.Cause = w.Cause
		ev.CauseText = w.CauseText
	case "BridgeCreated":
		ev.Type = EventBridgeCreated
	default:
		ev.Type = EventUnrecognized
	}
	return ev, nil
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now().UTC()
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
