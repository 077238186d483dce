package dialer

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"outbound-dialer/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PacingGuard keeps at most one pacing cycle per campaign running.
// TryAcquire returns ok=false when another cycle holds the campaign.
type PacingGuard interface {
	TryAcquire(ctx context.Context, campaignID int64) (release func(), ok bool, err error)
}

// LocalPacingGuard guards cycles within one process.
type LocalPacingGuard struct {
	locks *keyedMutex
}

func NewLocalPacingGuard() *LocalPacingGuard {
	return &LocalPacingGuard{locks: newKeyedMutex()}
}

func (g *LocalPacingGuard) TryAcquire(ctx context.Context, campaignID int64) (func(), bool, error) {
	release, ok := g.locks.TryLock(campaignKey(campaignID))
	return release, ok, nil
}

const defaultLeaseTTL = 2 * time.Minute

// RedisPacingGuard extends LocalPacingGuard across processes with an
// expiring Redis lease that is renewed while the cycle runs.
type RedisPacingGuard struct {
	local  *LocalPacingGuard
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

func NewRedisPacingGuard(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *RedisPacingGuard {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisPacingGuard{
		local:  NewLocalPacingGuard(),
		rdb:    rdb,
		ttl:    ttl,
		prefix: "dialer:pacing:",
		log:    log,
	}
}

func (g *RedisPacingGuard) TryAcquire(ctx context.Context, campaignID int64) (func(), bool, error) {
	releaseLocal, ok, _ := g.local.TryAcquire(ctx, campaignID)
	if !ok {
		return nil, false, nil
	}

	key := g.prefix + strconv.FormatInt(campaignID, 10)
	owner := uuid.NewString()
	acquired, err := utils.AcquireLease(ctx, g.rdb, key, owner, g.ttl)
	if err != nil || !acquired {
		releaseLocal()
		return nil, false, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go g.renew(key, owner, stop, done)

	return func() {
		close(stop)
		<-done
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := utils.ReleaseLease(rctx, g.rdb, key, owner); err != nil {
			g.log.Warn("pacing lease release failed", "campaign_id", campaignID, "error", err)
		}
		releaseLocal()
	}, true, nil
}

func (g *RedisPacingGuard) renew(key, owner string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(g.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			held, err := utils.ExtendLease(ctx, g.rdb, key, owner, g.ttl)
			cancel()
			if err != nil || !held {
				g.log.Warn("pacing lease renewal failed", "key", key, "held", held, "error", err)
			}
		}
	}
}
