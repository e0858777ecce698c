package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/linkhealth/internal/logger"
)

// errLockLost means the lock expired and was taken over by another run.
var errLockLost = errors.New("audit lock no longer held")

// locker serializes audits per owner.
type locker interface {
	acquire(ctx context.Context, ownerID string) (auditLease, bool, error)
}

// auditLease is one acquisition of an owner's lock.
type auditLease interface {
	// refresh extends the lease TTL while the run is still in flight.
	refresh(ctx context.Context) error
	release()
}

// ownerLock serializes audits per owner with a Redis SET NX lock. The TTL
// reclaims the lock if the holder dies mid-run.
type ownerLock struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func newOwnerLock(client *redis.Client, ttl time.Duration, log logger.Logger) *ownerLock {
	return &ownerLock{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func lockKey(ownerID string) string {
	return "linkhealth:audit-lock:" + ownerID
}

// acquire takes the owner's lock. The lease only touches the key while it
// still holds this acquisition's token, so an expired lock taken over by
// another run is never extended or released from here.
func (l *ownerLock) acquire(ctx context.Context, ownerID string) (auditLease, bool, error) {
	token := uuid.New().String()
	key := lockKey(ownerID)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire audit lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	return &ownerLease{
		client: l.client,
		key:    key,
		token:  token,
		ttl:    l.ttl,
		logger: l.logger,
	}, true, nil
}

type ownerLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
	logger logger.Logger
}

// refresh resets the TTL so a long run cannot outlive its lock.
func (l *ownerLease) refresh(ctx context.Context) error {
	held, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		return fmt.Errorf("refresh audit lock: %w", err)
	}
	if held != l.token {
		return errLockLost
	}
	if err := l.client.Expire(ctx, l.key, l.ttl).Err(); err != nil {
		return fmt.Errorf("refresh audit lock: %w", err)
	}
	return nil
}

func (l *ownerLease) release() {
	// Release must not be cancelled with the run.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	held, getErr := l.client.Get(releaseCtx, l.key).Result()
	if getErr != nil || held != l.token {
		return
	}
	if delErr := l.client.Del(releaseCtx, l.key).Err(); delErr != nil {
		l.logger.Warn("release audit lock failed",
			logger.String("key", l.key), logger.Error(delErr))
	}
}
