package dialer

import (
	"context"
	"log/slog"
	"time"

	"outbound-dialer/pkg/logger"
)

// Scheduler triggers a pacing cycle for every active campaign each tick.
// Overlapping ticks are absorbed by the pacing guard.
type Scheduler struct {
	Engine   *Engine
	Interval time.Duration
	Log      *slog.Logger
}

func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	if s.Log == nil {
		s.Log = logger.Discard()
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	active, err := s.Engine.ActiveCampaigns(ctx)
	if err != nil {
		s.Log.Error("list active campaigns failed", "error", err)
		return
	}
	for _, c := range active {
		s.Engine.TriggerCycle(c.ID)
	}
}
