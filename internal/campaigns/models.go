package campaigns

import "time"

// Campaign is an outbound dialing campaign.
//
// Invariants:
// - MaxCallsPerMinute > 0 (the pacing limit)
// - Retry.Interval >= 0
//
// Status is mutated only through Repository.Transition so that lifecycle
// rules are enforced in one place.
type Campaign struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name" validate:"required"`

	// MaxCallsPerMinute bounds originations per rolling minute.
	MaxCallsPerMinute int `json:"max_calls_per_minute" db:"max_calls_per_minute" validate:"gt=0"`

	Destination Destination `json:"destination"`
	Retry       RetryPolicy `json:"retry"`

	Status Status `json:"status" db:"status" validate:"oneof=paused active completed"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPaused    Status = "paused"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Destination describes where an answered lead is connected.
// Context is only meaningful for DestinationCustom; the other types use the
// dialer-wide contexts.
type Destination struct {
	Type      DestinationType `json:"type" db:"destination_type" validate:"oneof=extension queue ivr custom"`
	Extension string          `json:"extension" db:"destination_extension" validate:"required"`
	Context   string          `json:"context,omitempty" db:"destination_context" validate:"required_if=Type custom"`
}

type DestinationType string

const (
	DestinationExtension DestinationType = "extension"
	DestinationQueue     DestinationType = "queue"
	DestinationIVR       DestinationType = "ivr"
	DestinationCustom    DestinationType = "custom"
)

type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" db:"retry_max_attempts" validate:"gte=0"`
	Interval    time.Duration `json:"interval" db:"retry_interval_seconds" validate:"gte=0"`
}

// Limit is the number of originations a lead may consume. A zero MaxAttempts
// still allows the first attempt.
func (p RetryPolicy) Limit() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Lead is one phone number to be dialed within a campaign.
// Leads are created by bulk import and are never deleted by the dialer.
type Lead struct {
	ID         int64  `json:"id" db:"id"`
	CampaignID int64  `json:"campaign_id" db:"campaign_id"`
	Phone      string `json:"phone" db:"phone"`
	Name       string `json:"name,omitempty" db:"name"`

	Status   LeadStatus `json:"status" db:"status"`
	Attempts int        `json:"attempts" db:"attempts"`

	LastAttempt *time.Time `json:"last_attempt,omitempty" db:"last_attempt"`
	// NextAttempt is set only when a lead returns to pending for a retry.
	NextAttempt *time.Time `json:"next_attempt,omitempty" db:"next_attempt"`

	// Disposition is empty when unset (NULL in storage).
	Disposition string `json:"disposition,omitempty" db:"disposition"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type LeadStatus string

const (
	LeadPending  LeadStatus = "pending"
	LeadDialed   LeadStatus = "dialed"
	LeadRinging  LeadStatus = "ringing"
	LeadAnswered LeadStatus = "answered"
	LeadBusy     LeadStatus = "busy"
	LeadNoAnswer LeadStatus = "no_answer"
	LeadFailed   LeadStatus = "failed"
)

// ResettableStatuses are the lead states cleared back to pending when a
// campaign is stopped.
var ResettableStatuses = []LeadStatus{LeadDialed, LeadFailed, LeadNoAnswer, LeadBusy}

// InFlightStatuses are the lead states that keep a campaign from completing.
var InFlightStatuses = []LeadStatus{LeadPending, LeadDialed, LeadRinging}

// Dialable reports whether the lead is eligible for the next pacing cycle.
func (l Lead) Dialable(now time.Time) bool {
	if l.Status != LeadPending {
		return false
	}
	return l.NextAttempt == nil || !l.NextAttempt.After(now)
}

// Reset returns the lead to its never-dialed state.
func (l *Lead) Reset(now time.Time) {
	l.Status = LeadPending
	l.Attempts = 0
	l.LastAttempt = nil
	l.NextAttempt = nil
	l.Disposition = ""
	l.UpdatedAt = now
}

// TransitionRequest moves a campaign from one status to another.
// ResetLeads lists lead statuses to reset as part of the same unit of work.
// When LeadIDs is non-empty only those leads are reset.
type TransitionRequest struct {
	CampaignID int64
	From       Status
	To         Status
	ResetLeads []LeadStatus
	LeadIDs    []int64
}

type TransitionResult struct {
	Campaign   Campaign `json:"campaign"`
	LeadsReset int      `json:"leads_reset"`
}
