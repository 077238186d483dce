package telephony

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"outbound-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// EventWebhookHandler accepts pushed channel events over HTTP, converts them
// to CallEvents and hands them to Deliver.
//
// No business logic here.
//
// Accepted bodies:
// - a platform event envelope ({"type":"ChannelStateChange","channel":{...}})
// - a CallEvent ({"type":"StateChanged","channel_id":"..."})
type EventWebhookHandler struct {
	Deliver func(ctx context.Context, ev CallEvent) (ok bool, message string)
}

const maxEventBody = 64 << 10

func (h EventWebhookHandler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Deliver == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event sink not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ev, err := ParseEventBody(body)
	if err != nil {
		log.Warn("event webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	}

	ok, msg := h.Deliver(c.Request.Context(), ev)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

// ParseEventBody decodes either a CallEvent or a platform event envelope.
func ParseEventBody(body []byte) (CallEvent, error) {
	var probe struct {
		Type      EventType `json:"type"`
		ChannelID string    `json:"channel_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return CallEvent{}, err
	}
	switch probe.Type {
	case EventStateChanged, EventDestroyed, EventBridgeCreated, EventUnrecognized:
		var ev CallEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return CallEvent{}, err
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = parseTimestamp("")
		}
		return ev, nil
	}
	return DecodeEvent(body)
}
