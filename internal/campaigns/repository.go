package campaigns

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("campaigns: not found")
	ErrInvalidTransition = errors.New("campaigns: invalid status transition")
	ErrInvalidCampaign   = errors.New("campaigns: invalid campaign")
)

// Repository is the persistence contract for campaigns and their leads.
//
// Lead rows are only mutated by the dialer engine; callers are expected to
// serialize writes to the same lead (see dialer's per-lead locks).
type Repository interface {
	GetCampaign(ctx context.Context, id int64) (Campaign, error)
	ListCampaignsByStatus(ctx context.Context, status Status) ([]Campaign, error)

	// Transition performs a compare-and-set on the campaign status.
	// Returns ErrInvalidTransition if the current status is not req.From.
	Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error)

	// DialableLeads returns up to limit pending leads whose next_attempt is
	// unset or due, oldest first.
	DialableLeads(ctx context.Context, campaignID int64, now time.Time, limit int) ([]Lead, error)

	GetLead(ctx context.Context, id int64) (Lead, error)
	UpdateLead(ctx context.Context, l Lead) error
	CountLeads(ctx context.Context, campaignID int64, statuses ...LeadStatus) (int, error)

	// LeadIDs lists the campaign's leads in any of statuses, ascending by id.
	LeadIDs(ctx context.Context, campaignID int64, statuses ...LeadStatus) ([]int64, error)
}
