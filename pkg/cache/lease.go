package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lease is a best-effort cross-instance mutex held in Redis. A nil client
// always grants the lease, which is the single-instance deployment.
type Lease struct {
	client *redis.Client
}

// NewLease wraps client.
func NewLease(client *redis.Client) *Lease {
	return &Lease{client: client}
}

// Acquire tries to take key for ttl. The returned release func is safe to call
// when ok is false.
func (l *Lease) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error) {
	noop := func(context.Context) {}
	if l == nil || l.client == nil {
		return noop, true, nil
	}
	token := uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return noop, false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return noop, false, nil
	}
	return func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, true, nil
}
