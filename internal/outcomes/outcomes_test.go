package outcomes

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outbound-dialer/internal/campaigns"
)

func TestOutcomeRoutingKeyAndJSON(t *testing.T) {
	next := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	o := Outcome{
		CampaignID:     1,
		LeadID:         2,
		ChannelID:      "ch",
		Status:         campaigns.LeadNoAnswer,
		Disposition:    "NO ANSWER",
		Cause:          19,
		RetryScheduled: true,
		NextAttempt:    &next,
	}
	assert.Equal(t, "call.no_answer", o.RoutingKey())

	b, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"disposition":"NO ANSWER"`)
	assert.Contains(t, string(b), `"next_attempt":"2026-03-01T10:05:00Z"`)
}

func TestMemoryPublisher(t *testing.T) {
	p := &MemoryPublisher{}
	require.NoError(t, p.Publish(context.Background(), Outcome{LeadID: 1}))
	require.NoError(t, p.Publish(context.Background(), Outcome{LeadID: 2}))
	got := p.Outcomes()
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[1].LeadID)

	var nop Publisher = NopPublisher{}
	assert.NoError(t, nop.Publish(context.Background(), Outcome{}))
}

func TestNewAMQPPublisherValidatesArgs(t *testing.T) {
	_, err := NewAMQPPublisher("", "dialer.outcomes")
	assert.Error(t, err)
}
