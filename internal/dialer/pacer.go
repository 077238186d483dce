package dialer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"outbound-dialer/internal/campaigns"
	"outbound-dialer/internal/metrics"
)

// CycleReport summarizes one pacing cycle.
type CycleReport struct {
	CampaignID int64 `json:"campaign_id"`
	Selected   int   `json:"selected"`
	Originated int   `json:"originated"`
	Failed     int   `json:"failed"`
	// Interrupted is set when the campaign left active mid-cycle.
	Interrupted bool `json:"interrupted"`
}

// Pacer runs pacing cycles.
//
// Pacing rule: consecutive originations of one campaign are spaced at least
// one minute / MaxCallsPerMinute apart, including across cycles, so no rolling
// minute holds more than MaxCallsPerMinute originations from this process.
type Pacer struct {
	campaigns  campaigns.Repository
	originator *Originator
	guard      PacingGuard

	mu       sync.Mutex
	nextSlot map[int64]time.Time

	// sleep waits for d or ctx; false means ctx ended first.
	sleep func(ctx context.Context, d time.Duration) bool
	log   *slog.Logger
	clock func() time.Time
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RunCycle dials up to MaxCallsPerMinute dialable leads of an active campaign.
// Per-lead failures are logged and do not abort the cycle.
func (p *Pacer) RunCycle(ctx context.Context, campaignID int64) (CycleReport, error) {
	report := CycleReport{CampaignID: campaignID}

	release, ok, err := p.guard.TryAcquire(ctx, campaignID)
	if err != nil {
		metrics.PacingCycles.WithLabelValues("error").Inc()
		return report, err
	}
	if !ok {
		metrics.PacingCycles.WithLabelValues("busy").Inc()
		return report, ErrCycleInProgress
	}
	defer release()

	c, err := p.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		metrics.PacingCycles.WithLabelValues("error").Inc()
		return report, err
	}
	if c.Status != campaigns.StatusActive {
		metrics.PacingCycles.WithLabelValues("inactive").Inc()
		return report, ErrCampaignNotActive
	}
	if c.MaxCallsPerMinute <= 0 {
		metrics.PacingCycles.WithLabelValues("error").Inc()
		return report, campaigns.ErrInvalidCampaign
	}

	leads, err := p.campaigns.DialableLeads(ctx, c.ID, p.clock().UTC(), c.MaxCallsPerMinute)
	if err != nil {
		metrics.PacingCycles.WithLabelValues("error").Inc()
		return report, err
	}
	report.Selected = len(leads)

	gap := time.Minute / time.Duration(c.MaxCallsPerMinute)
	log := p.log.With("campaign_id", c.ID)

	for i, lead := range leads {
		if !p.waitSlot(ctx, c.ID) {
			report.Interrupted = true
			break
		}
		if i > 0 {
			cur, err := p.campaigns.GetCampaign(ctx, c.ID)
			if err != nil || cur.Status != campaigns.StatusActive {
				log.Info("campaign left active mid-cycle", "status", cur.Status, "error", err)
				report.Interrupted = true
				break
			}
		}

		p.reserveSlot(c.ID, gap)
		if _, err := p.originator.Originate(ctx, c, lead); err != nil {
			report.Failed++
			log.Warn("lead not dialed", "lead_id", lead.ID, "error", err)
			continue
		}
		report.Originated++
	}

	metrics.PacingCycles.WithLabelValues("completed").Inc()
	log.Info("pacing cycle finished",
		"selected", report.Selected,
		"originated", report.Originated,
		"failed", report.Failed,
		"interrupted", report.Interrupted,
	)
	return report, nil
}

func (p *Pacer) waitSlot(ctx context.Context, campaignID int64) bool {
	p.mu.Lock()
	slot := p.nextSlot[campaignID]
	p.mu.Unlock()
	return p.sleep(ctx, slot.Sub(p.clock()))
}

func (p *Pacer) reserveSlot(campaignID int64, gap time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSlot[campaignID] = p.clock().Add(gap)
}

// IsSkippable reports cycle errors that are expected during normal
// operation and need no more than a debug log.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrCycleInProgress) || errors.Is(err, ErrCampaignNotActive)
}
