package telephony

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryGateway is an in-memory Gateway and EventSource for tests and local
// runs. It records every request and lets callers inject failures and events.
type MemoryGateway struct {
	mu sync.Mutex

	channels map[string]Channel
	bridges  map[string][]string

	Originated []OriginateRequest
	Hangups    []string
	Bridges    []string
	Added      []BridgeMember

	// OriginateErr, when set, fails every origination.
	OriginateErr error
	// EmptyChannelID makes Originate succeed without an identifier.
	EmptyChannelID bool
	// FailAgentLeg fails originations tagged as agent legs.
	FailAgentLeg bool
	BridgeErr    error
	HealthErr    error

	events chan CallEvent
}

type BridgeMember struct {
	BridgeID  string
	ChannelID string
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		channels: map[string]Channel{},
		bridges:  map[string][]string{},
		events:   make(chan CallEvent, 64),
	}
}

func (g *MemoryGateway) Name() string { return "memory" }

func (g *MemoryGateway) HealthCheck(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.HealthErr
}

func (g *MemoryGateway) Originate(ctx context.Context, req OriginateRequest) (OriginateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Originated = append(g.Originated, req)

	if err := ctx.Err(); err != nil {
		return OriginateResult{}, err
	}
	if g.OriginateErr != nil {
		return OriginateResult{}, g.OriginateErr
	}
	if g.FailAgentLeg && req.Variables[VarLeg] == LegAgent {
		return OriginateResult{}, errors.New("memory: agent leg unavailable")
	}
	if g.EmptyChannelID {
		return OriginateResult{}, ErrNoChannel
	}
	id := req.ChannelID
	if id == "" {
		id = uuid.NewString()
	}
	g.channels[id] = Channel{ID: id, Name: req.Endpoint, State: "Down", CreatedAt: time.Now().UTC()}
	return OriginateResult{ChannelID: id}, nil
}

func (g *MemoryGateway) Hangup(ctx context.Context, channelID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Hangups = append(g.Hangups, channelID)
	if _, ok := g.channels[channelID]; !ok {
		return ErrChannelNotFound
	}
	delete(g.channels, channelID)
	return nil
}

func (g *MemoryGateway) CreateBridge(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.BridgeErr != nil {
		return "", g.BridgeErr
	}
	id := uuid.NewString()
	g.bridges[id] = nil
	g.Bridges = append(g.Bridges, id)
	return id, nil
}

func (g *MemoryGateway) AddToBridge(ctx context.Context, bridgeID, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.bridges[bridgeID]; !ok {
		return errors.New("memory: bridge not found")
	}
	g.bridges[bridgeID] = append(g.bridges[bridgeID], channelID)
	g.Added = append(g.Added, BridgeMember{BridgeID: bridgeID, ChannelID: channelID})
	return nil
}

func (g *MemoryGateway) ListChannels(ctx context.Context) ([]Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Channel, 0, len(g.channels))
	for _, ch := range g.channels {
		out = append(out, ch)
	}
	return out, nil
}

// SetChannelState updates a live channel as seen by ListChannels.
func (g *MemoryGateway) SetChannelState(channelID, state string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.channels[channelID]; ok {
		ch.State = state
		g.channels[channelID] = ch
	}
}

// Emit queues an event for Run subscribers.
func (g *MemoryGateway) Emit(ev CallEvent) {
	g.events <- ev
}

func (g *MemoryGateway) Run(ctx context.Context, out chan<- CallEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-g.events:
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Snapshot returns copies of the recorded requests.
func (g *MemoryGateway) Snapshot() (originated []OriginateRequest, hangups, bridges []string, added []BridgeMember) {
	g.mu.Lock()
	defer g.mu.Unlock()
	originated = append([]OriginateRequest(nil), g.Originated...)
	hangups = append([]string(nil), g.Hangups...)
	bridges = append([]string(nil), g.Bridges...)
	added = append([]BridgeMember(nil), g.Added...)
	return
}
