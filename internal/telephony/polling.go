package telephony

import (
	"context"
	"log/slog"
	"time"
)

// PollingSource is the fallback EventSource: it lists channels on an interval
// and synthesizes events from the difference between snapshots.
//
// The list API carries no termination cause, so a channel that disappears is
// reported as Destroyed with a cause inferred from its last polled state (see
// pollCause).
type PollingSource struct {
	gw       Gateway
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewPollingSource(gw Gateway, interval time.Duration, log *slog.Logger) *PollingSource {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &PollingSource{gw: gw, interval: interval, log: log, now: time.Now}
}

func (p *PollingSource) Run(ctx context.Context, out chan<- CallEvent) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	prev := map[string]Channel{}
	primed := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		chans, err := p.gw.ListChannels(ctx)
		if err != nil {
			p.log.Warn("channel poll failed", "err", err)
			continue
		}
		cur := make(map[string]Channel, len(chans))
		for _, ch := range chans {
			cur[ch.ID] = ch
		}
		// The first snapshot only establishes a baseline.
		if !primed {
			prev, primed = cur, true
			continue
		}
		for _, ev := range diffChannels(prev, cur, p.now().UTC()) {
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
		prev = cur
	}
}

func diffChannels(prev, cur map[string]Channel, now time.Time) []CallEvent {
	var evs []CallEvent
	for id, ch := range cur {
		old, seen := prev[id]
		if !seen || old.State != ch.State {
			evs = append(evs, CallEvent{
				Type:      EventStateChanged,
				ChannelID: id,
				State:     ch.State,
				Timestamp: now,
				Raw:       "poll",
			})
		}
	}
	for id, old := range prev {
		if _, ok := cur[id]; !ok {
			cause, text := pollCause(old.State)
			evs = append(evs, CallEvent{
				Type:      EventDestroyed,
				ChannelID: id,
				Cause:     cause,
				CauseText: text,
				Timestamp: now,
				Raw:       "poll",
			})
		}
	}
	return evs
}

// pollCause maps the last state seen before a channel vanished to a Q.850
// cause. A channel that never reached Up counts as unanswered.
func pollCause(lastState string) (int, string) {
	switch lastState {
	case "Up":
		return 16, "Normal Clearing"
	case "Busy":
		return 17, "User busy"
	default:
		return 19, "No answer"
	}
}
