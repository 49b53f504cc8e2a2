package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Release and extend must compare-and-act atomically, otherwise a worker
// whose lock expired mid-dispatch could delete the key a rival now holds.
var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)

	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// RedisLock implements DistLock via SET NX with a TTL. Each instance stamps
// the key with its own random owner token, so only the holder can release
// or extend; the TTL frees the lock if the holding worker dies mid-dispatch.
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLock creates a Redis-backed lock for the given key.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    "lock:" + key,
		owner:  newOwnerToken(),
		ttl:    ttl,
	}
}

func newOwnerToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Acquire tries to take the lock. Returns true if this instance now holds
// it; false means another holder has it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	held, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return held, nil
}

// Release frees the lock if this instance still owns it. Releasing a lock
// held by someone else leaves it untouched.
func (l *RedisLock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Result()
	return err
}

// Extend pushes out the TTL for long-running dispatch batches. The lock
// must still be owned by this instance; an expired-and-retaken key is left
// alone.
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	_, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Result()
	return err
}
