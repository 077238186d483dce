package campaigns

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests and local runs.
// Leads are returned in insertion order, which stands in for creation order.
type MemoryRepo struct {
	mu sync.Mutex

	campaigns map[int64]Campaign
	leads     map[int64]Lead

	nextCampaignID int64
	nextLeadID     int64

	// Err, when set, is returned by every operation (simulates a lost store).
	Err error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{campaigns: map[int64]Campaign{}, leads: map[int64]Lead{}}
}

// AddCampaign stores c, assigning an ID when c.ID is zero.
func (r *MemoryRepo) AddCampaign(c Campaign) Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		r.nextCampaignID++
		c.ID = r.nextCampaignID
	} else if c.ID > r.nextCampaignID {
		r.nextCampaignID = c.ID
	}
	if c.Status == "" {
		c.Status = StatusPaused
	}
	r.campaigns[c.ID] = c
	return c
}

// AddLead stores l, assigning an ID when l.ID is zero.
func (r *MemoryRepo) AddLead(l Lead) Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == 0 {
		r.nextLeadID++
		l.ID = r.nextLeadID
	} else if l.ID > r.nextLeadID {
		r.nextLeadID = l.ID
	}
	if l.Status == "" {
		l.Status = LeadPending
	}
	r.leads[l.ID] = l
	return l
}

// Leads returns a snapshot of the campaign's leads ordered by ID.
func (r *MemoryRepo) Leads(campaignID int64) []Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leadsLocked(campaignID)
}

func (r *MemoryRepo) leadsLocked(campaignID int64) []Lead {
	out := make([]Lead, 0)
	for _, l := range r.leads {
		if l.CampaignID == campaignID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryRepo) GetCampaign(ctx context.Context, id int64) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Campaign{}, r.Err
	}
	c, ok := r.campaigns[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) ListCampaignsByStatus(ctx context.Context, status Status) ([]Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]Campaign, 0)
	for _, c := range r.campaigns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return TransitionResult{}, r.Err
	}
	c, ok := r.campaigns[req.CampaignID]
	if !ok {
		return TransitionResult{}, ErrNotFound
	}
	if c.Status != req.From {
		return TransitionResult{}, ErrInvalidTransition
	}

	now := time.Now().UTC()
	c.Status = req.To
	c.UpdatedAt = now
	r.campaigns[c.ID] = c

	only := make(map[int64]bool, len(req.LeadIDs))
	for _, id := range req.LeadIDs {
		only[id] = true
	}
	reset := 0
	if len(req.ResetLeads) > 0 {
		for id, l := range r.leads {
			if l.CampaignID != c.ID || !hasStatus(req.ResetLeads, l.Status) {
				continue
			}
			if len(only) > 0 && !only[id] {
				continue
			}
			l.Reset(now)
			r.leads[id] = l
			reset++
		}
	}
	return TransitionResult{Campaign: c, LeadsReset: reset}, nil
}

func (r *MemoryRepo) DialableLeads(ctx context.Context, campaignID int64, now time.Time, limit int) ([]Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if limit <= 0 {
		return nil, nil
	}
	out := make([]Lead, 0, limit)
	for _, l := range r.leadsLocked(campaignID) {
		if !l.Dialable(now) {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepo) GetLead(ctx context.Context, id int64) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Lead{}, r.Err
	}
	l, ok := r.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) UpdateLead(ctx context.Context, l Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.leads[l.ID]; !ok {
		return ErrNotFound
	}
	r.leads[l.ID] = l
	return nil
}

func (r *MemoryRepo) CountLeads(ctx context.Context, campaignID int64, statuses ...LeadStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	n := 0
	for _, l := range r.leads {
		if l.CampaignID != campaignID {
			continue
		}
		if len(statuses) == 0 || hasStatus(statuses, l.Status) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) LeadIDs(ctx context.Context, campaignID int64, statuses ...LeadStatus) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]int64, 0)
	for _, l := range r.leadsLocked(campaignID) {
		if hasStatus(statuses, l.Status) {
			out = append(out, l.ID)
		}
	}
	return out, nil
}

func hasStatus(set []LeadStatus, s LeadStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
