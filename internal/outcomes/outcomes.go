package outcomes

import (
	"context"
	"sync"
	"time"

	"outbound-dialer/internal/campaigns"
)

// Outcome is published once per closed call for downstream CRUD/reporting.
type Outcome struct {
	CampaignID      int64                `json:"campaign_id"`
	LeadID          int64                `json:"lead_id"`
	ChannelID       string               `json:"channel_id"`
	Phone           string               `json:"phone"`
	Status          campaigns.LeadStatus `json:"status"`
	Disposition     string               `json:"disposition"`
	Cause           int                  `json:"cause"`
	DurationSeconds int                  `json:"duration_seconds"`
	Bridged         bool                 `json:"bridged"`
	RetryScheduled  bool                 `json:"retry_scheduled"`
	NextAttempt     *time.Time           `json:"next_attempt,omitempty"`
	EndedAt         time.Time            `json:"ended_at"`
}

// RoutingKey is the topic key for the outcome, e.g. call.no_answer.
func (o Outcome) RoutingKey() string {
	return "call." + string(o.Status)
}

// Publisher ships outcomes. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, o Outcome) error
	Close() error
}

// NopPublisher drops outcomes. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, o Outcome) error { return nil }
func (NopPublisher) Close() error                                 { return nil }

// MemoryPublisher records outcomes for tests.
type MemoryPublisher struct {
	mu       sync.Mutex
	outcomes []Outcome
	Err      error
}

func (p *MemoryPublisher) Publish(ctx context.Context, o Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.outcomes = append(p.outcomes, o)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

func (p *MemoryPublisher) Outcomes() []Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Outcome(nil), p.outcomes...)
}
