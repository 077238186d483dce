package reporting

import (
	"context"
	"errors"
	"time"

	"outbound-dialer/internal/calls"
	"outbound-dialer/internal/campaigns"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
// calls.Repository implementations satisfy it.
type Repository interface {
	List(ctx context.Context, campaignID int64, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// CampaignSummary classifies closed calls with calls.ResolveDisposition so
// reports and lead statuses never disagree.
func (s *Service) CampaignSummary(ctx context.Context, req CampaignSummaryRequest) (CampaignSummary, error) {
	if req.CampaignID <= 0 {
		return CampaignSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CampaignSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CampaignSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.List(ctx, req.CampaignID, req.Range.From, req.Range.To)
	if err != nil {
		return CampaignSummary{}, err
	}

	out := CampaignSummary{
		CampaignID:    req.CampaignID,
		Range:         req.Range,
		ByStatus:      map[campaigns.LeadStatus]int{},
		ByDisposition: map[string]int{},
	}
	closed := 0
	for _, c := range rows {
		out.TotalCalls++
		if !c.Closed() {
			out.OpenCalls++
			continue
		}
		closed++
		d := calls.ResolveDisposition(c.Cause)
		out.ByStatus[d.Status]++
		out.ByDisposition[d.Label]++
		out.TotalDurationSeconds += c.DurationSeconds

		if d.Status == campaigns.LeadAnswered {
			out.Answered++
			if c.Bridged {
				out.Connected++
			} else {
				out.AnsweredUnconnected++
			}
		}
	}
	if closed > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / closed
		out.AnswerRate = float64(out.Answered) / float64(closed)
		out.ConnectionRate = float64(out.Connected) / float64(closed)
	}
	return out, nil
}
