// Package redis provides a Redis-backed lock that lets one replica at a time
// run a detection pass.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultLockKey is the key all replicas contend on.
const DefaultLockKey = "alert-monitor:detection-pass"

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PassLock is a single-key lease with a TTL. The TTL bounds how long a
// crashed holder can block other replicas.
type PassLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewClient creates a Redis client.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewPassLock creates a lock on key with the given lease TTL.
func NewPassLock(client *redis.Client, key string, ttl time.Duration) *PassLock {
	return &PassLock{client: client, key: key, ttl: ttl}
}

// Acquire tries once to take the lease. It reports false without an error
// when another holder has it.
func (l *PassLock) Acquire(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", l.key, err)
		}
		return nil
	}
	return release, true, nil
}

// CheckReadiness pings Redis.
func (l *PassLock) CheckReadiness(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
