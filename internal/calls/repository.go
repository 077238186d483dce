package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("calls: not found")
	ErrDuplicateChannel = errors.New("calls: channel already has a call record")
)

// Repository persists Call records keyed by channel identifier.
type Repository interface {
	Create(ctx context.Context, c Call) (Call, error)
	GetByChannel(ctx context.Context, channelID string) (Call, error)
	Update(ctx context.Context, c Call) error
	// List returns the campaign's calls started in [from, to), oldest first.
	List(ctx context.Context, campaignID int64, from, to time.Time) ([]Call, error)
}
