package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	byChan map[string]Call

	// Err, when set, is returned by every operation.
	Err error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byChan: map[string]Call{}}
}

func (r *MemoryRepo) Create(ctx context.Context, c Call) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Call{}, r.Err
	}
	if _, ok := r.byChan[c.ChannelID]; ok {
		return Call{}, ErrDuplicateChannel
	}
	r.nextID++
	c.ID = r.nextID
	r.byChan[c.ChannelID] = c
	return c, nil
}

func (r *MemoryRepo) GetByChannel(ctx context.Context, channelID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Call{}, r.Err
	}
	c, ok := r.byChan[channelID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) Update(ctx context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.byChan[c.ChannelID]; !ok {
		return ErrNotFound
	}
	r.byChan[c.ChannelID] = c
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, campaignID int64, from, to time.Time) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]Call, 0)
	for _, c := range r.byChan {
		if c.CampaignID != campaignID {
			continue
		}
		if !from.IsZero() && c.CallStart.Before(from) {
			continue
		}
		if !to.IsZero() && !c.CallStart.Before(to) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// All returns every stored call ordered by ID.
func (r *MemoryRepo) All() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0, len(r.byChan))
	for _, c := range r.byChan {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
