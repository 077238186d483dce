package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"outbound-dialer/internal/audit"
	"outbound-dialer/internal/calls"
	"outbound-dialer/internal/campaigns"
	"outbound-dialer/internal/outcomes"
	"outbound-dialer/internal/routing"
	"outbound-dialer/internal/telephony"
	"outbound-dialer/pkg/logger"
	"outbound-dialer/pkg/utils"
)

// Options wires an Engine. Campaigns, Calls and Gateway are required.
type Options struct {
	Campaigns campaigns.Repository
	Calls     calls.Repository
	Gateway   telephony.Gateway
	Contexts  routing.Contexts

	// Optional collaborators; zero values fall back to in-process defaults.
	Audit    *audit.Service
	Outcomes outcomes.Publisher
	Guard    PacingGuard
	Health   *utils.StoreHealth

	// EventWorkers is the number of per-channel event shards.
	EventWorkers int

	Log   *slog.Logger
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) bool
}

// Engine is the dialer facade used by the HTTP layer, the scheduler and the
// event source. Every operation returns a Result and recovers from panics.
type Engine struct {
	campaigns campaigns.Repository
	gw        telephony.Gateway

	originator *Originator
	dispatcher *Dispatcher
	pacer      *Pacer
	lifecycle  *Lifecycle

	log *slog.Logger

	// Background cycles run on ctx so Close can stop them.
	ctx    context.Context
	cancel context.CancelFunc
	cycles sync.WaitGroup
}

func New(opts Options) (*Engine, error) {
	if opts.Campaigns == nil || opts.Calls == nil || opts.Gateway == nil {
		return nil, errors.New("dialer: campaigns, calls and gateway are required")
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewService(audit.NewMemoryRepo())
	}
	if opts.Outcomes == nil {
		opts.Outcomes = outcomes.NopPublisher{}
	}
	if opts.Guard == nil {
		opts.Guard = NewLocalPacingGuard()
	}
	if opts.Health == nil {
		opts.Health = &utils.StoreHealth{}
	}
	log := logger.Component(opts.Log, "dialer")

	leads := newKeyedMutex()
	channels := newKeyedMutex()

	originator := &Originator{
		campaigns: opts.Campaigns,
		calls:     opts.Calls,
		gw:        opts.Gateway,
		contexts:  opts.Contexts,
		health:    opts.Health,
		leads:     leads,
		channels:  channels,
		log:       log,
		clock:     opts.Clock,
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		campaigns:  opts.Campaigns,
		gw:         opts.Gateway,
		originator: originator,
		dispatcher: &Dispatcher{
			campaigns: opts.Campaigns,
			calls:     opts.Calls,
			gw:        opts.Gateway,
			audit:     opts.Audit,
			outcomes:  opts.Outcomes,
			health:    opts.Health,
			leads:     leads,
			channels:  channels,
			workers:   opts.EventWorkers,
			log:       log,
			clock:     opts.Clock,
		},
		pacer: &Pacer{
			campaigns:  opts.Campaigns,
			originator: originator,
			guard:      opts.Guard,
			nextSlot:   map[int64]time.Time{},
			sleep:      opts.Sleep,
			log:        log,
			clock:      opts.Clock,
		},
		lifecycle: &Lifecycle{campaigns: opts.Campaigns, audit: opts.Audit, leads: leads, log: log},
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (e *Engine) recoverResult(op string, res *Result) {
	if r := recover(); r != nil {
		e.log.Error("panic in dialer operation", "op", op, "panic", r)
		*res = Result{Message: fmt.Sprintf("%s: internal error", op), Code: CodeInternal}
	}
}

// StartCampaign activates a paused campaign and triggers one pacing cycle.
func (e *Engine) StartCampaign(ctx context.Context, id int64) (res Result) {
	defer e.recoverResult("start campaign", &res)
	tr, err := e.lifecycle.Start(ctx, id)
	if err != nil {
		return fail("start campaign", err)
	}
	e.TriggerCycle(id)
	return ok("campaign started", tr.Campaign)
}

func (e *Engine) PauseCampaign(ctx context.Context, id int64) (res Result) {
	defer e.recoverResult("pause campaign", &res)
	tr, err := e.lifecycle.Pause(ctx, id)
	if err != nil {
		return fail("pause campaign", err)
	}
	return ok("campaign paused", tr.Campaign)
}

// StopCampaign pauses the campaign and resets its finished leads.
// In-flight calls are left to finish.
func (e *Engine) StopCampaign(ctx context.Context, id int64) (res Result) {
	defer e.recoverResult("stop campaign", &res)
	tr, err := e.lifecycle.Stop(ctx, id)
	if err != nil {
		return fail("stop campaign", err)
	}
	return ok(fmt.Sprintf("campaign stopped, %d leads reset", tr.LeadsReset), tr)
}

// DialLead originates one lead immediately, outside pacing.
func (e *Engine) DialLead(ctx context.Context, campaignID int64, lead campaigns.Lead) (res Result) {
	defer e.recoverResult("dial lead", &res)
	c, err := e.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return fail("dial lead", err)
	}
	d, err := e.originator.Originate(ctx, c, lead)
	if err != nil {
		return fail("dial lead", err)
	}
	return ok("lead dialed", d)
}

func (e *Engine) DialLeadByID(ctx context.Context, campaignID, leadID int64) (res Result) {
	defer e.recoverResult("dial lead", &res)
	lead, err := e.campaigns.GetLead(ctx, leadID)
	if err != nil {
		return fail("dial lead", err)
	}
	return e.DialLead(ctx, campaignID, lead)
}

// HandleChannelEvent applies one event synchronously.
func (e *Engine) HandleChannelEvent(ctx context.Context, ev telephony.CallEvent) (res Result) {
	defer e.recoverResult("handle event", &res)
	h, err := e.dispatcher.Handle(ctx, ev)
	if err != nil {
		return fail("handle event", err)
	}
	return ok(string(h), map[string]string{"channel_id": ev.ChannelID, "handling": string(h)})
}

// GetActiveChannels passes through the platform's live channel list.
func (e *Engine) GetActiveChannels(ctx context.Context) (res Result) {
	defer e.recoverResult("list channels", &res)
	chs, err := e.gw.ListChannels(ctx)
	if err != nil {
		return Result{Message: fmt.Sprintf("list channels: %v", err), Code: CodeGateway}
	}
	return ok(fmt.Sprintf("%d active channels", len(chs)), chs)
}

func (e *Engine) HangupCall(ctx context.Context, channelID string) (res Result) {
	defer e.recoverResult("hangup", &res)
	if channelID == "" {
		return Result{Message: "hangup: channel id required", Code: CodeInvalidInput}
	}
	if err := e.gw.Hangup(ctx, channelID, "normal"); err != nil {
		if errors.Is(err, telephony.ErrChannelNotFound) {
			return Result{Message: "hangup: channel not found", Code: CodeNotFound}
		}
		return Result{Message: fmt.Sprintf("hangup: %v", err), Code: CodeGateway}
	}
	return ok("hangup requested", map[string]string{"channel_id": channelID})
}

// RunCycle runs one pacing cycle and completes the campaign when nothing is
// left to dial.
func (e *Engine) RunCycle(ctx context.Context, campaignID int64) (CycleReport, error) {
	report, err := e.pacer.RunCycle(ctx, campaignID)
	if err != nil {
		return report, err
	}
	if _, cerr := e.lifecycle.Complete(ctx, campaignID); cerr != nil && !errors.Is(cerr, campaigns.ErrInvalidTransition) {
		e.log.Warn("completion check failed", "campaign_id", campaignID, "error", cerr)
	}
	return report, nil
}

// TriggerCycle runs a pacing cycle in the background.
func (e *Engine) TriggerCycle(campaignID int64) {
	e.cycles.Add(1)
	go func() {
		defer e.cycles.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("panic in pacing cycle", "campaign_id", campaignID, "panic", r)
			}
		}()
		if _, err := e.RunCycle(e.ctx, campaignID); err != nil {
			if IsSkippable(err) {
				e.log.Debug("pacing cycle skipped", "campaign_id", campaignID, "reason", err)
				return
			}
			e.log.Error("pacing cycle failed", "campaign_id", campaignID, "error", err)
		}
	}()
}

// ActiveCampaigns lists campaigns the scheduler should pace.
func (e *Engine) ActiveCampaigns(ctx context.Context) ([]campaigns.Campaign, error) {
	return e.campaigns.ListCampaignsByStatus(ctx, campaigns.StatusActive)
}

// Run dispatches events from in until ctx is done.
func (e *Engine) Run(ctx context.Context, in <-chan telephony.CallEvent) error {
	return e.dispatcher.Run(ctx, in)
}

// Wait blocks until background cycles finish.
func (e *Engine) Wait() { e.cycles.Wait() }

// Close cancels background cycles and waits for them.
func (e *Engine) Close() {
	e.cancel()
	e.cycles.Wait()
}
