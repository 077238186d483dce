package dialer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"time"

	"outbound-dialer/internal/audit"
	"outbound-dialer/internal/calls"
	"outbound-dialer/internal/campaigns"
	"outbound-dialer/internal/metrics"
	"outbound-dialer/internal/outcomes"
	"outbound-dialer/internal/telephony"
	"outbound-dialer/pkg/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Handling is what the dispatcher did with one event.
type Handling string

const (
	Applied Handling = "applied"
	// Ignored covers unknown channels, already-closed calls and event
	// kinds the dialer does not act on.
	Ignored Handling = "ignored"
	Dropped Handling = "dropped"
)

// Dispatcher applies channel events to calls and leads.
//
// Events for one channel are applied in arrival order: Run shards by channel
// id and Handle holds the channel lock. Lead writes additionally hold the
// lead lock shared with the Originator.
type Dispatcher struct {
	campaigns campaigns.Repository
	calls     calls.Repository
	gw        telephony.Gateway
	audit     *audit.Service
	outcomes  outcomes.Publisher
	health    *utils.StoreHealth

	leads    *keyedMutex
	channels *keyedMutex

	workers int
	log     *slog.Logger
	clock   func() time.Time
}

// Run consumes events until ctx is done or in is closed.
func (d *Dispatcher) Run(ctx context.Context, in <-chan telephony.CallEvent) error {
	n := d.workers
	if n <= 0 {
		n = 1
	}
	shards := make([]chan telephony.CallEvent, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range shards {
		shards[i] = make(chan telephony.CallEvent, 64)
		ch := shards[i]
		g.Go(func() error {
			for ev := range ch {
				d.safeHandle(gctx, ev)
			}
			return nil
		})
	}

	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		_ = g.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			select {
			case shards[shardFor(ev.ChannelID, n)] <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func shardFor(channelID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channelID))
	return int(h.Sum32() % uint32(n))
}

func (d *Dispatcher) safeHandle(ctx context.Context, ev telephony.CallEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic handling call event", "channel_id", ev.ChannelID, "type", ev.Type, "panic", r)
		}
	}()
	_, _ = d.Handle(ctx, ev)
}

// Handle applies one event. Duplicate terminal events are no-ops.
func (d *Dispatcher) Handle(ctx context.Context, ev telephony.CallEvent) (h Handling, err error) {
	defer func() {
		metrics.CallEvents.WithLabelValues(string(ev.Type), string(h)).Inc()
	}()

	if ev.ChannelID == "" {
		return Ignored, nil
	}
	switch ev.Type {
	case telephony.EventStateChanged, telephony.EventDestroyed:
	default:
		d.log.Debug("call event ignored", "type", ev.Type, "channel_id", ev.ChannelID)
		return Ignored, nil
	}

	if err := d.health.Ensure(ctx); err != nil {
		return Dropped, d.persistenceFailure("store health", err)
	}

	unlock := d.channels.Lock(channelKey(ev.ChannelID))
	defer unlock()

	call, err := d.calls.GetByChannel(ctx, ev.ChannelID)
	if errors.Is(err, calls.ErrNotFound) {
		d.log.Debug("call event for unknown channel", "type", ev.Type, "channel_id", ev.ChannelID)
		return Ignored, nil
	}
	if err != nil {
		return Dropped, d.persistenceFailure("load call", err)
	}
	if call.Closed() {
		return Ignored, nil
	}

	unlockLead := d.leads.Lock(leadKey(call.LeadID))
	defer unlockLead()

	lead, err := d.campaigns.GetLead(ctx, call.LeadID)
	if err != nil {
		return Dropped, d.persistenceFailure("load lead", err)
	}

	log := d.log.With("campaign_id", call.CampaignID, "lead_id", call.LeadID, "channel_id", call.ChannelID)

	if ev.Type == telephony.EventDestroyed {
		return d.onDestroyed(ctx, log, ev, call, lead)
	}
	switch ev.State {
	case "Ring", "Ringing":
		return d.onRinging(ctx, call, lead)
	case "Up":
		return d.onAnswered(ctx, log, ev, call, lead)
	case "Busy":
		return d.onBusy(ctx, call, lead)
	default:
		return Ignored, nil
	}
}

func (d *Dispatcher) onRinging(ctx context.Context, call calls.Call, lead campaigns.Lead) (Handling, error) {
	now := d.clock().UTC()
	if call.State == calls.StateInitiated {
		call.State = calls.StateRinging
		call.UpdatedAt = now
		if err := d.calls.Update(ctx, call); err != nil {
			return Dropped, d.persistenceFailure("update call", err)
		}
	}
	if lead.Status == campaigns.LeadPending || lead.Status == campaigns.LeadDialed {
		lead.Status = campaigns.LeadRinging
		lead.UpdatedAt = now
		if err := d.campaigns.UpdateLead(ctx, lead); err != nil {
			return Dropped, d.persistenceFailure("update lead", err)
		}
	}
	return Applied, nil
}

func (d *Dispatcher) onBusy(ctx context.Context, call calls.Call, lead campaigns.Lead) (Handling, error) {
	now := d.clock().UTC()
	call.State = calls.StateBusy
	call.UpdatedAt = now
	if err := d.calls.Update(ctx, call); err != nil {
		return Dropped, d.persistenceFailure("update call", err)
	}
	lead.Status = campaigns.LeadBusy
	lead.Disposition = calls.LabelBusy
	lead.UpdatedAt = now
	if err := d.campaigns.UpdateLead(ctx, lead); err != nil {
		return Dropped, d.persistenceFailure("update lead", err)
	}
	return Applied, nil
}

func (d *Dispatcher) onAnswered(ctx context.Context, log *slog.Logger, ev telephony.CallEvent, call calls.Call, lead campaigns.Lead) (Handling, error) {
	now := d.clock().UTC()
	call.State = calls.StateAnswered
	call.UpdatedAt = now

	dest, destCtx := agentTarget(ev, call)
	connect := dest != "" && !call.AgentLegAttempted
	if connect {
		call.AgentLegAttempted = true
	}
	if err := d.calls.Update(ctx, call); err != nil {
		return Dropped, d.persistenceFailure("update call", err)
	}

	lead.Status = campaigns.LeadAnswered
	lead.UpdatedAt = now
	if err := d.campaigns.UpdateLead(ctx, lead); err != nil {
		return Dropped, d.persistenceFailure("update lead", err)
	}

	if !connect {
		return Applied, nil
	}
	if d.connectAgent(ctx, log, &call, dest, destCtx) {
		call.UpdatedAt = d.clock().UTC()
		if err := d.calls.Update(ctx, call); err != nil {
			return Dropped, d.persistenceFailure("update call", err)
		}
	}
	return Applied, nil
}

// agentTarget prefers the channel variables over the values recorded at
// origination time.
func agentTarget(ev telephony.CallEvent, call calls.Call) (string, string) {
	dest, ctx := call.AgentDestination, call.AgentContext
	if v := ev.Variables[telephony.VarAgentDest]; v != "" {
		dest = v
		if c := ev.Variables[telephony.VarAgentContext]; c != "" {
			ctx = c
		}
	}
	return dest, ctx
}

// connectAgent dials the agent leg and bridges it with the customer.
// Failures leave the customer answered but unconnected.
func (d *Dispatcher) connectAgent(ctx context.Context, log *slog.Logger, call *calls.Call, dest, destCtx string) bool {
	res, err := d.gw.Originate(ctx, telephony.OriginateRequest{
		ChannelID: uuid.NewString(),
		Endpoint:  fmt.Sprintf("Local/%s@%s", dest, destCtx),
		CallerID:  fmt.Sprintf("%q <%s>", call.Phone, call.Phone),
		Variables: map[string]string{
			telephony.VarCampaignID: strconv.FormatInt(call.CampaignID, 10),
			telephony.VarLeadID:     strconv.FormatInt(call.LeadID, 10),
			telephony.VarLeg:        telephony.LegAgent,
		},
	})
	if err == nil && res.ChannelID == "" {
		err = telephony.ErrNoChannel
	}
	if err != nil {
		d.bridgeFailure(ctx, log, call, "agent_originate", err)
		return false
	}

	bridgeID, err := d.gw.CreateBridge(ctx)
	if err != nil {
		d.bridgeFailure(ctx, log, call, "bridge_create", err)
		d.hangupAgent(ctx, log, res.ChannelID)
		return false
	}
	for _, ch := range []string{call.ChannelID, res.ChannelID} {
		if err := d.gw.AddToBridge(ctx, bridgeID, ch); err != nil {
			d.bridgeFailure(ctx, log, call, "bridge_add", err)
			d.hangupAgent(ctx, log, res.ChannelID)
			return false
		}
	}

	call.Bridged = true
	call.BridgeID = bridgeID
	call.AgentChannelID = res.ChannelID
	log.Info("customer connected to agent", "bridge_id", bridgeID, "agent_channel_id", res.ChannelID, "agent", dest)
	return true
}

func (d *Dispatcher) bridgeFailure(ctx context.Context, log *slog.Logger, call *calls.Call, stage string, err error) {
	metrics.BridgeFailures.WithLabelValues(stage).Inc()
	log.Warn("agent connection failed", "stage", stage, "error", err)
	if aerr := d.audit.LogBridgeFailure(ctx, call.CampaignID, call.LeadID, call.ChannelID, stage, err); aerr != nil {
		log.Warn("audit append failed", "error", aerr)
	}
}

func (d *Dispatcher) hangupAgent(ctx context.Context, log *slog.Logger, channelID string) {
	if err := d.gw.Hangup(ctx, channelID, "normal"); err != nil && !errors.Is(err, telephony.ErrChannelNotFound) {
		log.Warn("agent leg hangup failed", "agent_channel_id", channelID, "error", err)
	}
}

func (d *Dispatcher) onDestroyed(ctx context.Context, log *slog.Logger, ev telephony.CallEvent, call calls.Call, lead campaigns.Lead) (Handling, error) {
	now := d.clock().UTC()
	end := ev.Timestamp.UTC()
	if ev.Timestamp.IsZero() {
		end = now
	}
	disp := calls.ResolveDisposition(ev.Cause)

	c, err := d.campaigns.GetCampaign(ctx, call.CampaignID)
	if err != nil {
		return Dropped, d.persistenceFailure("load campaign", err)
	}

	lead.Status = disp.Status
	lead.Disposition = disp.Label
	lead.UpdatedAt = now
	retried := false
	if disp.Status != campaigns.LeadAnswered {
		retried = scheduleRetry(&lead, c.Retry, now)
	}
	if err := d.campaigns.UpdateLead(ctx, lead); err != nil {
		return Dropped, d.persistenceFailure("update lead", err)
	}

	call.Close(disp, ev.Cause, end)
	if err := d.calls.Update(ctx, call); err != nil {
		return Dropped, d.persistenceFailure("close call", err)
	}

	metrics.Dispositions.WithLabelValues(disp.Label).Inc()
	log.Info("call closed",
		"disposition", disp.Label,
		"cause", ev.Cause,
		"duration", call.DurationSeconds,
		"bridged", call.Bridged,
		"retry_scheduled", retried,
	)

	out := outcomes.Outcome{
		CampaignID:      call.CampaignID,
		LeadID:          call.LeadID,
		ChannelID:       call.ChannelID,
		Phone:           call.Phone,
		Status:          disp.Status,
		Disposition:     disp.Label,
		Cause:           ev.Cause,
		DurationSeconds: call.DurationSeconds,
		Bridged:         call.Bridged,
		RetryScheduled:  retried,
		NextAttempt:     lead.NextAttempt,
		EndedAt:         end,
	}
	if err := d.outcomes.Publish(ctx, out); err != nil {
		log.Warn("outcome publish failed", "error", err)
	}
	return Applied, nil
}

func (d *Dispatcher) persistenceFailure(op string, err error) error {
	d.health.MarkDegraded()
	metrics.PersistenceErrors.Inc()
	d.log.Error("persistence failure, event dropped", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
