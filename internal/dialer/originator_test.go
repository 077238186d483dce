package dialer

import (
	"context"
	"errors"
	"testing"
	"time"

	"outbound-dialer/internal/calls"
	"outbound-dialer/internal/campaigns"
	"outbound-dialer/internal/telephony"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialLead_RecordsCallAndVariables(t *testing.T) {
	h := newHarness(t)
	c := h.camps.AddCampaign(campaigns.Campaign{
		Name:              "queue-campaign",
		MaxCallsPerMinute: 10,
		Destination:       campaigns.Destination{Type: campaigns.DestinationQueue, Extension: "600"},
		Status:            campaigns.StatusActive,
	})
	lead := h.camps.AddLead(campaigns.Lead{CampaignID: c.ID, Phone: "5550001", Name: "Ada Lovelace"})

	ch := h.dial(t, c.ID, lead)

	originated, _, _, _ := h.gw.Snapshot()
	require.Len(t, originated, 1)
	req := originated[0]
	assert.Equal(t, ch, req.ChannelID)
	assert.Equal(t, "Local/5550001@from-internal", req.Endpoint)
	assert.Equal(t, `"Ada Lovelace" <5550001>`, req.CallerID)
	assert.Equal(t, "600", req.Variables[telephony.VarAgentDest])
	assert.Equal(t, "ext-queues", req.Variables[telephony.VarAgentContext])
	assert.Equal(t, telephony.LegCustomer, req.Variables[telephony.VarLeg])

	call := h.call(t, ch)
	assert.Equal(t, calls.StateInitiated, call.State)
	assert.Equal(t, lead.ID, call.LeadID)
	assert.Equal(t, "600", call.AgentDestination)
	assert.Equal(t, h.clock.Now(), call.CallStart)

	got := h.lead(t, lead.ID)
	assert.Equal(t, campaigns.LeadDialed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastAttempt)
	assert.Equal(t, h.clock.Now(), *got.LastAttempt)
}

func TestDialLead_OriginateFailure(t *testing.T) {
	h := newHarness(t)
	h.gw.OriginateErr = errors.New("endpoint offline")
	c := h.campaign(campaigns.StatusActive, 10, campaigns.RetryPolicy{MaxAttempts: 3})
	lead := h.leads(c.ID, "5550001")[0]

	res := h.engine.DialLead(context.Background(), c.ID, lead)
	assert.False(t, res.Success)
	assert.Equal(t, CodeGateway, res.Code)

	got := h.lead(t, lead.ID)
	assert.Equal(t, campaigns.LeadFailed, got.Status)
	assert.Equal(t, calls.LabelOriginateFailed, got.Disposition)
	assert.Equal(t, 0, got.Attempts)
	assert.Empty(t, h.calls.All())
}

func TestDialLead_EmptyChannelIDIsFailure(t *testing.T) {
	h := newHarness(t)
	h.gw.EmptyChannelID = true
	c := h.campaign(campaigns.StatusActive, 10, campaigns.RetryPolicy{})
	lead := h.leads(c.ID, "5550001")[0]

	res := h.engine.DialLead(context.Background(), c.ID, lead)
	assert.Equal(t, CodeGateway, res.Code)
	assert.Equal(t, campaigns.LeadFailed, h.lead(t, lead.ID).Status)
}

func TestDialLead_CallPersistenceFailureHangsUp(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusActive, 10, campaigns.RetryPolicy{})
	lead := h.leads(c.ID, "5550001")[0]
	h.calls.Err = errors.New("disk full")

	res := h.engine.DialLead(context.Background(), c.ID, lead)
	assert.False(t, res.Success)
	assert.Equal(t, CodeInternal, res.Code)

	originated, hangups, _, _ := h.gw.Snapshot()
	require.Len(t, originated, 1)
	assert.Equal(t, []string{originated[0].ChannelID}, hangups)
	assert.True(t, h.health.Degraded())
	assert.Equal(t, campaigns.LeadFailed, h.lead(t, lead.ID).Status)
}

func TestDialLead_Guards(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusActive, 10, campaigns.RetryPolicy{})
	other := h.campaign(campaigns.StatusActive, 10, campaigns.RetryPolicy{})
	lead := h.leads(c.ID, "5550001")[0]

	res := h.engine.DialLead(context.Background(), other.ID, lead)
	assert.Equal(t, CodeInvalidInput, res.Code)

	h.dial(t, c.ID, lead)
	res = h.engine.DialLead(context.Background(), c.ID, lead)
	assert.Equal(t, CodeInvalidState, res.Code)

	res = h.engine.DialLeadByID(context.Background(), c.ID, 999)
	assert.Equal(t, CodeNotFound, res.Code)
}

func TestDialLead_UnroutableDestinationStillDials(t *testing.T) {
	h := newHarness(t)
	c := h.camps.AddCampaign(campaigns.Campaign{
		Name:              "custom-without-context",
		MaxCallsPerMinute: 10,
		Destination:       campaigns.Destination{Type: campaigns.DestinationCustom, Extension: "s"},
		Status:            campaigns.StatusActive,
	})
	lead := h.camps.AddLead(campaigns.Lead{CampaignID: c.ID, Phone: "5550001"})

	ch := h.dial(t, c.ID, lead)
	originated, _, _, _ := h.gw.Snapshot()
	_, has := originated[0].Variables[telephony.VarAgentDest]
	assert.False(t, has)

	h.event(t, stateEvent(ch, "Up"))
	originated, _, _, _ = h.gw.Snapshot()
	assert.Len(t, originated, 1)
}

func TestHangupAndChannels(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusActive, 10, campaigns.RetryPolicy{})
	ch := h.dial(t, c.ID, h.leads(c.ID, "5550001")[0])

	res := h.engine.GetActiveChannels(context.Background())
	require.True(t, res.Success)
	assert.Len(t, res.Data, 1)

	assert.True(t, h.engine.HangupCall(context.Background(), ch).Success)
	assert.Equal(t, CodeNotFound, h.engine.HangupCall(context.Background(), ch).Code)
	assert.Equal(t, CodeInvalidInput, h.engine.HangupCall(context.Background(), "").Code)
}

func TestDialLead_RefusesExhaustedLead(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusActive, 10, campaigns.RetryPolicy{MaxAttempts: 1, Interval: time.Minute})
	lead := h.leads(c.ID, "5550001")[0]

	ch := h.dial(t, c.ID, lead)
	h.event(t, destroyedEvent(ch, calls.CauseNoAnswer))

	res := h.engine.DialLeadByID(context.Background(), c.ID, lead.ID)
	assert.False(t, res.Success)
	assert.Equal(t, CodeInvalidState, res.Code)

	got := h.lead(t, lead.ID)
	assert.Equal(t, campaigns.LeadNoAnswer, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.NextAttempt)
	originated, _, _, _ := h.gw.Snapshot()
	assert.Len(t, originated, 1)
}

func TestDialLeadByID_RecoversPanic(t *testing.T) {
	h, repo := newHookedHarness(t)
	c := h.campaign(campaigns.StatusActive, 10, campaigns.RetryPolicy{})
	lead := h.leads(c.ID, "5550001")[0]
	repo.panicOnGet = true

	var res Result
	require.NotPanics(t, func() {
		res = h.engine.DialLeadByID(context.Background(), c.ID, lead.ID)
	})
	assert.False(t, res.Success)
	assert.Equal(t, CodeInternal, res.Code)
}
