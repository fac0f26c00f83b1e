// Package joblock provides a Redis-backed distributed singleton guard for
// scheduled jobs (spec §5): a second tick must observe an "already running"
// flag and skip, and a crashed worker must not leave a permanently-stuck
// flag. The lock's TTL, not explicit cleanup, is what guarantees recovery
// from a crashed holder.
package joblock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrAlreadyRunning is returned by Acquire when another instance currently
// holds the lock for this job class.
var ErrAlreadyRunning = errors.New("joblock: job already running")

// Locker acquires and releases per-job-class locks.
type Locker struct {
	client *redis.Client
}

// New wraps an already-configured Redis client.
func New(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Handle represents a held lock; Release must be deferred by the caller.
type Handle struct {
	locker *Locker
	key    string
	token  string
}

func lockKey(jobName string) string {
	return fmt.Sprintf("job-lock:%s", jobName)
}

// Acquire attempts to take the lock for jobName with the given TTL. If
// another process already holds it, Acquire returns ErrAlreadyRunning and
// the caller must skip this tick rather than wait.
func (l *Locker) Acquire(ctx context.Context, jobName string, ttl time.Duration) (*Handle, error) {
	key := lockKey(jobName)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("joblock: acquire %s: %w", jobName, err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return &Handle{locker: l, key: key, token: token}, nil
}

// releaseScript only deletes the key if it still holds our token, so a
// lock we've since lost (e.g. TTL expired and someone else acquired it)
// is never deleted out from under its new holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// Release frees the lock, a no-op if it has already expired or been taken
// over by another holder.
func (h *Handle) Release(ctx context.Context) error {
	_, err := h.locker.client.Eval(ctx, releaseScript, []string{h.key}, h.token).Result()
	if err != nil {
		return fmt.Errorf("joblock: release %s: %w", h.key, err)
	}
	return nil
}
