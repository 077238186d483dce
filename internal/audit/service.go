package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information.
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CampaignID <= 0 {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogTransition records a campaign status change.
func (s *Service) LogTransition(ctx context.Context, campaignID int64, from, to string) error {
	return s.Append(ctx, Event{
		CampaignID: campaignID,
		Type:       EventTypeLifecycle,
		Message:    fmt.Sprintf("%s -> %s", from, to),
		Metadata:   metadata(map[string]any{"from": from, "to": to}),
	})
}

// LogLeadsReset records the bulk lead reset performed by stop.
func (s *Service) LogLeadsReset(ctx context.Context, campaignID int64, count int, statuses []string) error {
	return s.Append(ctx, Event{
		CampaignID: campaignID,
		Type:       EventTypeLeadsReset,
		Message:    fmt.Sprintf("%d leads reset to pending", count),
		Metadata:   metadata(map[string]any{"count": count, "statuses": statuses}),
	})
}

// LogBridgeFailure records an answered call that could not reach its agent.
func (s *Service) LogBridgeFailure(ctx context.Context, campaignID, leadID int64, channelID, stage string, cause error) error {
	msg := "agent connection failed at " + stage
	md := map[string]any{"stage": stage}
	if cause != nil {
		md["error"] = cause.Error()
	}
	return s.Append(ctx, Event{
		CampaignID: campaignID,
		LeadID:     leadID,
		ChannelID:  channelID,
		Type:       EventTypeBridge,
		Message:    msg,
		Metadata:   metadata(md),
	})
}

// LogCompleted records a campaign reaching completed.
func (s *Service) LogCompleted(ctx context.Context, campaignID int64) error {
	return s.Append(ctx, Event{
		CampaignID: campaignID,
		Type:       EventTypeCompleted,
		Message:    "no dialable leads remain",
	})
}

func metadata(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
