package reporting

import (
	"time"

	"outbound-dialer/internal/campaigns"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CampaignSummaryRequest selects the campaign's calls started in [From, To).
type CampaignSummaryRequest struct {
	CampaignID int64     `json:"campaign_id"`
	Range      TimeRange `json:"range"`
}

// CampaignSummary aggregates closed calls of one campaign.
//
// Answered counts calls the resolver classified as answered; Connected is the
// subset that reached an agent. The difference is AnsweredUnconnected.
type CampaignSummary struct {
	CampaignID int64     `json:"campaign_id"`
	Range      TimeRange `json:"range"`

	TotalCalls int `json:"total_calls"`
	OpenCalls  int `json:"open_calls"`

	ByStatus      map[campaigns.LeadStatus]int `json:"by_status"`
	ByDisposition map[string]int               `json:"by_disposition"`

	Answered            int `json:"answered"`
	Connected           int `json:"connected"`
	AnsweredUnconnected int `json:"answered_unconnected"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// AnswerRate and ConnectionRate are over closed calls.
	AnswerRate     float64 `json:"answer_rate"`
	ConnectionRate float64 `json:"connection_rate"`
}
