package dialer

import (
	"context"
	"log/slog"

	"outbound-dialer/internal/audit"
	"outbound-dialer/internal/campaigns"
)

// Lifecycle owns campaign status transitions:
//
//	paused -> active      Start
//	active -> paused      Pause
//	active -> paused      Stop (also resets dialed/failed/no_answer/busy leads)
//	active -> completed   Complete (no lead left in flight)
type Lifecycle struct {
	campaigns campaigns.Repository
	audit     *audit.Service
	// leads is shared with the originator and dispatcher.
	leads *keyedMutex
	log   *slog.Logger
}

func (l *Lifecycle) Start(ctx context.Context, id int64) (campaigns.TransitionResult, error) {
	return l.transition(ctx, campaigns.TransitionRequest{CampaignID: id, From: campaigns.StatusPaused, To: campaigns.StatusActive})
}

func (l *Lifecycle) Pause(ctx context.Context, id int64) (campaigns.TransitionResult, error) {
	return l.transition(ctx, campaigns.TransitionRequest{CampaignID: id, From: campaigns.StatusActive, To: campaigns.StatusPaused})
}

// Stop pauses the campaign and returns its finished leads to pending so the
// next start dials them again. Answered and ringing leads are kept.
//
// The reset holds the lock of every lead it touches, so an event handler
// that already read one of those leads finishes its write first. Leads that
// only become resettable after the listing are left alone.
func (l *Lifecycle) Stop(ctx context.Context, id int64) (campaigns.TransitionResult, error) {
	ids, err := l.campaigns.LeadIDs(ctx, id, campaigns.ResettableStatuses...)
	if err != nil {
		return campaigns.TransitionResult{}, err
	}
	keys := make([]string, 0, len(ids))
	for _, leadID := range ids {
		keys = append(keys, leadKey(leadID))
	}
	unlock := l.leads.LockAll(keys)
	defer unlock()

	req := campaigns.TransitionRequest{
		CampaignID: id,
		From:       campaigns.StatusActive,
		To:         campaigns.StatusPaused,
	}
	if len(ids) > 0 {
		req.ResetLeads = campaigns.ResettableStatuses
		req.LeadIDs = ids
	}
	res, err := l.transition(ctx, req)
	if err != nil {
		return res, err
	}
	statuses := make([]string, 0, len(campaigns.ResettableStatuses))
	for _, s := range campaigns.ResettableStatuses {
		statuses = append(statuses, string(s))
	}
	if aerr := l.audit.LogLeadsReset(ctx, id, res.LeadsReset, statuses); aerr != nil {
		l.log.Warn("audit append failed", "campaign_id", id, "error", aerr)
	}
	return res, nil
}

// Complete marks an active campaign completed once no lead is pending,
// dialed or ringing. It reports whether the transition happened.
func (l *Lifecycle) Complete(ctx context.Context, id int64) (bool, error) {
	n, err := l.campaigns.CountLeads(ctx, id, campaigns.InFlightStatuses...)
	if err != nil || n > 0 {
		return false, err
	}
	if _, err := l.campaigns.Transition(ctx, campaigns.TransitionRequest{
		CampaignID: id,
		From:       campaigns.StatusActive,
		To:         campaigns.StatusCompleted,
	}); err != nil {
		return false, err
	}
	l.log.Info("campaign completed", "campaign_id", id)
	if aerr := l.audit.LogCompleted(ctx, id); aerr != nil {
		l.log.Warn("audit append failed", "campaign_id", id, "error", aerr)
	}
	return true, nil
}

func (l *Lifecycle) transition(ctx context.Context, req campaigns.TransitionRequest) (campaigns.TransitionResult, error) {
	res, err := l.campaigns.Transition(ctx, req)
	if err != nil {
		return res, err
	}
	l.log.Info("campaign status changed",
		"campaign_id", req.CampaignID,
		"from", req.From,
		"to", req.To,
		"leads_reset", res.LeadsReset,
	)
	if aerr := l.audit.LogTransition(ctx, req.CampaignID, string(req.From), string(req.To)); aerr != nil {
		l.log.Warn("audit append failed", "campaign_id", req.CampaignID, "error", aerr)
	}
	return res, nil
}
