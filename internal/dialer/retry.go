package dialer

import (
	"time"

	"outbound-dialer/internal/campaigns"
	"outbound-dialer/internal/metrics"
)

// retryable are the terminal non-answer outcomes the retry policy applies to.
var retryable = map[campaigns.LeadStatus]bool{
	campaigns.LeadBusy:     true,
	campaigns.LeadNoAnswer: true,
	campaigns.LeadFailed:   true,
}

// scheduleRetry returns l to pending with a next attempt when the campaign's
// policy still allows one. The caller holds the lead lock and persists l.
func scheduleRetry(l *campaigns.Lead, policy campaigns.RetryPolicy, now time.Time) bool {
	if !retryable[l.Status] {
		return false
	}
	if l.Attempts >= policy.Limit() {
		return false
	}
	next := now.Add(policy.Interval)
	l.Status = campaigns.LeadPending
	l.NextAttempt = &next
	l.UpdatedAt = now
	metrics.RetriesScheduled.Inc()
	return true
}
