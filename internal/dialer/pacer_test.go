package dialer

import (
	"context"
	"strings"
	"testing"
	"time"

	"outbound-dialer/internal/audit"
	"outbound-dialer/internal/campaigns"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCampaign_PacesFirstCycle(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusPaused, 2, campaigns.RetryPolicy{MaxAttempts: 3, Interval: 10 * time.Minute})
	leads := h.leads(c.ID, "5550001", "5550002", "5550003", "5550004", "5550005")

	res := h.engine.StartCampaign(context.Background(), c.ID)
	require.True(t, res.Success, res.Message)
	h.engine.Wait()

	originated, _, _, _ := h.gw.Snapshot()
	require.Len(t, originated, 2)
	assert.Equal(t, "Local/5550001@from-internal", originated[0].Endpoint)
	assert.Equal(t, "Local/5550002@from-internal", originated[1].Endpoint)
	assert.Equal(t, []time.Duration{30 * time.Second}, h.sleeps())

	for i, l := range leads {
		got := h.lead(t, l.ID)
		if i < 2 {
			assert.Equal(t, campaigns.LeadDialed, got.Status)
			assert.Equal(t, 1, got.Attempts)
			continue
		}
		assert.Equal(t, campaigns.LeadPending, got.Status)
		assert.Equal(t, 0, got.Attempts)
	}

	assert.Len(t, h.audits.OfType(audit.EventTypeLifecycle), 1)
}

func TestStartCampaign_InvalidState(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusActive, 5, campaigns.RetryPolicy{})

	res := h.engine.StartCampaign(context.Background(), c.ID)
	assert.False(t, res.Success)
	assert.Equal(t, CodeInvalidState, res.Code)

	res = h.engine.StartCampaign(context.Background(), 999)
	assert.Equal(t, CodeNotFound, res.Code)
}

func TestRunCycle_SpacingHoldsAcrossCycles(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusActive, 4, campaigns.RetryPolicy{})
	h.leads(c.ID, "1", "2", "3", "4", "5", "6", "7", "8", "9", "10")

	for i := 0; i < 2; i++ {
		report, err := h.engine.RunCycle(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, report.Originated)
	}

	originated, _, _, _ := h.gw.Snapshot()
	assert.Len(t, originated, 8)

	slept := h.sleeps()
	require.Len(t, slept, 7)
	for _, d := range slept {
		assert.Equal(t, 15*time.Second, d)
	}
}

func TestRunCycle_StopsWhenCampaignPaused(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusActive, 3, campaigns.RetryPolicy{})
	h.leads(c.ID, "1", "2", "3")

	h.onSleep = func() {
		res := h.engine.PauseCampaign(context.Background(), c.ID)
		require.True(t, res.Success, res.Message)
	}

	report, err := h.engine.RunCycle(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Selected)
	assert.Equal(t, 1, report.Originated)
	assert.True(t, report.Interrupted)
}

func TestRunCycle_RejectsInactiveAndConcurrent(t *testing.T) {
	h := newHarness(t)
	paused := h.campaign(campaigns.StatusPaused, 3, campaigns.RetryPolicy{})
	_, err := h.engine.RunCycle(context.Background(), paused.ID)
	assert.ErrorIs(t, err, ErrCampaignNotActive)
	assert.True(t, IsSkippable(err))

	active := h.campaign(campaigns.StatusActive, 3, campaigns.RetryPolicy{})
	h.leads(active.ID, "1")
	release, ok, err := h.engine.pacer.guard.TryAcquire(context.Background(), active.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.engine.RunCycle(context.Background(), active.ID)
	assert.ErrorIs(t, err, ErrCycleInProgress)
	release()

	report, err := h.engine.RunCycle(context.Background(), active.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Originated)
}

func TestRunCycle_SkipsLeadsNotYetDue(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusActive, 10, campaigns.RetryPolicy{})
	later := h.clock.Now().Add(time.Hour)
	h.camps.AddLead(campaigns.Lead{CampaignID: c.ID, Phone: "1", NextAttempt: &later})
	due := h.camps.AddLead(campaigns.Lead{CampaignID: c.ID, Phone: "2"})

	report, err := h.engine.RunCycle(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Originated)
	assert.Equal(t, campaigns.LeadDialed, h.lead(t, due.ID).Status)
}

func TestRunCycle_OriginationFailuresDoNotAbort(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusActive, 3, campaigns.RetryPolicy{})
	h.camps.AddLead(campaigns.Lead{CampaignID: c.ID, Phone: "  "})
	ok := h.camps.AddLead(campaigns.Lead{CampaignID: c.ID, Phone: "5550100"})

	report, err := h.engine.RunCycle(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Originated)
	assert.Equal(t, campaigns.LeadDialed, h.lead(t, ok.ID).Status)
}

func TestRunCycle_CompletesCampaignWithNothingLeft(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(campaigns.StatusActive, 3, campaigns.RetryPolicy{})
	h.camps.AddLead(campaigns.Lead{CampaignID: c.ID, Phone: "1", Status: campaigns.LeadAnswered})
	h.camps.AddLead(campaigns.Lead{CampaignID: c.ID, Phone: "2", Status: campaigns.LeadNoAnswer})

	report, err := h.engine.RunCycle(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Selected)

	got, err := h.camps.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaigns.StatusCompleted, got.Status)
	assert.Len(t, h.audits.OfType(audit.EventTypeCompleted), 1)
}

func TestScheduler_TriggersActiveCampaigns(t *testing.T) {
	h := newHarness(t)
	active := h.campaign(campaigns.StatusActive, 5, campaigns.RetryPolicy{})
	paused := h.campaign(campaigns.StatusPaused, 5, campaigns.RetryPolicy{})
	a := h.leads(active.ID, "1")[0]
	p := h.leads(paused.ID, "2")[0]

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{Engine: h.engine, Interval: time.Hour}
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		l, err := h.camps.GetLead(context.Background(), a.ID)
		return err == nil && l.Status == campaigns.LeadDialed
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	h.engine.Wait()

	assert.Equal(t, campaigns.LeadPending, h.lead(t, p.ID).Status)
	originated, _, _, _ := h.gw.Snapshot()
	require.Len(t, originated, 1)
	assert.True(t, strings.HasSuffix(originated[0].Endpoint, "1@from-internal"))
}
