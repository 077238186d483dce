package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"outbound-dialer/internal/calls"
	"outbound-dialer/internal/campaigns"
	"outbound-dialer/internal/metrics"
	"outbound-dialer/internal/routing"
	"outbound-dialer/internal/telephony"
	"outbound-dialer/pkg/utils"

	"github.com/google/uuid"
)

// Originator places the customer leg for one lead.
//
// Invariants:
// - A lead is dialed by at most one goroutine at a time (lead lock).
// - The channel lock is held until the Call row exists, so events for the
//   new channel are never handled before they can be correlated.
// - Attempts is incremented only when the platform accepted the call, and
//   never past the campaign's retry limit. Stop re-arms exhausted leads.
type Originator struct {
	campaigns campaigns.Repository
	calls     calls.Repository
	gw        telephony.Gateway
	contexts  routing.Contexts
	health    *utils.StoreHealth

	leads    *keyedMutex
	channels *keyedMutex

	log   *slog.Logger
	clock func() time.Time
}

// Dialed describes an accepted origination.
type Dialed struct {
	ChannelID  string `json:"channel_id"`
	CampaignID int64  `json:"campaign_id"`
	LeadID     int64  `json:"lead_id"`
	Phone      string `json:"phone"`
}

// Originate dials lead on behalf of campaign c.
// The stored lead row is authoritative; the argument only names it.
func (o *Originator) Originate(ctx context.Context, c campaigns.Campaign, lead campaigns.Lead) (Dialed, error) {
	unlockLead := o.leads.Lock(leadKey(lead.ID))
	defer unlockLead()

	cur, err := o.campaigns.GetLead(ctx, lead.ID)
	if errors.Is(err, campaigns.ErrNotFound) {
		return Dialed{}, err
	}
	if err != nil {
		return Dialed{}, o.persistenceFailure("load lead", err)
	}
	if cur.CampaignID != c.ID {
		return Dialed{}, ErrLeadMismatch
	}
	if cur.Status == campaigns.LeadDialed || cur.Status == campaigns.LeadRinging {
		return Dialed{}, ErrLeadInFlight
	}
	if cur.Attempts >= c.Retry.Limit() {
		return Dialed{}, ErrLeadExhausted
	}

	now := o.clock().UTC()
	log := o.log.With("campaign_id", c.ID, "lead_id", cur.ID)

	customer, err := routing.Outbound(cur.Phone, o.contexts)
	if err != nil {
		return Dialed{}, o.markFailed(ctx, log, cur, now, err)
	}

	vars := map[string]string{
		telephony.VarCampaignID: strconv.FormatInt(c.ID, 10),
		telephony.VarLeadID:     strconv.FormatInt(cur.ID, 10),
		telephony.VarLeg:        telephony.LegCustomer,
	}
	agent, agentErr := routing.Resolve(c.Destination, o.contexts)
	if agentErr != nil {
		log.Warn("campaign destination unroutable, dialing without agent leg", "error", agentErr)
	} else {
		vars[telephony.VarAgentDest] = agent.Extension
		vars[telephony.VarAgentContext] = agent.Context
	}

	channelID := uuid.NewString()
	unlockChannel := o.channels.Lock(channelKey(channelID))
	defer unlockChannel()

	res, err := o.gw.Originate(ctx, telephony.OriginateRequest{
		ChannelID: channelID,
		Endpoint:  customer.Endpoint(),
		CallerID:  callerID(cur),
		Variables: vars,
	})
	if err == nil && res.ChannelID == "" {
		err = telephony.ErrNoChannel
	}
	if err != nil {
		return Dialed{}, o.markFailed(ctx, log, cur, now, err)
	}
	if res.ChannelID != channelID {
		// Platform chose its own id; lock it too before the row exists.
		unlockAssigned := o.channels.Lock(channelKey(res.ChannelID))
		defer unlockAssigned()
	}
	log = log.With("channel_id", res.ChannelID)

	call := calls.Call{
		ChannelID:        res.ChannelID,
		CampaignID:       c.ID,
		LeadID:           cur.ID,
		Phone:            cur.Phone,
		AgentDestination: agent.Extension,
		AgentContext:     agent.Context,
		State:            calls.StateInitiated,
		CallStart:        now,
	}
	if _, err := o.calls.Create(ctx, call); err != nil {
		// An uncorrelatable channel would never be dispositioned.
		if herr := o.gw.Hangup(ctx, res.ChannelID, "normal"); herr != nil && !errors.Is(herr, telephony.ErrChannelNotFound) {
			log.Warn("hangup of unrecorded channel failed", "error", herr)
		}
		_ = o.markFailed(ctx, log, cur, now, err)
		return Dialed{}, o.persistenceFailure("create call", err)
	}

	cur.Status = campaigns.LeadDialed
	cur.Attempts++
	cur.LastAttempt = &now
	cur.NextAttempt = nil
	cur.Disposition = ""
	cur.UpdatedAt = now
	if err := o.campaigns.UpdateLead(ctx, cur); err != nil {
		// The call is live and recorded; its events still settle the lead.
		_ = o.persistenceFailure("update lead", err)
	}

	metrics.Originations.WithLabelValues(metrics.ResultSuccess).Inc()
	log.Info("lead dialed", "attempt", cur.Attempts, "endpoint", customer.Endpoint())
	return Dialed{ChannelID: res.ChannelID, CampaignID: c.ID, LeadID: cur.ID, Phone: cur.Phone}, nil
}

func (o *Originator) markFailed(ctx context.Context, log *slog.Logger, l campaigns.Lead, now time.Time, cause error) error {
	metrics.Originations.WithLabelValues(metrics.ResultFailure).Inc()
	log.Warn("origination failed", "error", cause)

	l.Status = campaigns.LeadFailed
	l.Disposition = calls.LabelOriginateFailed
	l.LastAttempt = &now
	l.NextAttempt = nil
	l.UpdatedAt = now
	if err := o.campaigns.UpdateLead(ctx, l); err != nil {
		_ = o.persistenceFailure("update lead", err)
	}
	return fmt.Errorf("%w: %v", ErrOriginateFailed, cause)
}

func (o *Originator) persistenceFailure(op string, err error) error {
	o.health.MarkDegraded()
	metrics.PersistenceErrors.Inc()
	o.log.Error("persistence failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// callerID renders "Name" <number>, falling back to the number as name.
func callerID(l campaigns.Lead) string {
	name := l.Name
	if name == "" {
		name = l.Phone
	}
	return fmt.Sprintf("%q <%s>", name, l.Phone)
}
