package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua pushes the expiry of a lock forward only while the caller still
// owns it. Returns 1 on success, 0 if the lock was lost.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager using Redis SETNX with a TTL and
// Lua-based conditional unlock and extension.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	extendSc *redis.Script
	onLost   func(key string)
}

// NewLockManager creates a LockManager backed by the given Client. onLost,
// if non-nil, is called when a held lock can no longer be extended.
func NewLockManager(c *Client, onLost func(key string)) *LockManager {
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
		extendSc: redis.NewScript(extendLua),
		onLost:   onLost,
	}
}

// InstanceKey is the lock key guarding a trading pair.
func InstanceKey(pair string) string {
	return "cryptobear:" + pair
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire attempts to obtain a lock for key with the given TTL. On success it
// returns an unlock function that is safe to call more than once.
//
// It returns domain.ErrLockHeld if the lock is already held by another party.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := lm.acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { lm.release(key, token) }) }, nil
}

// Hold acquires key and keeps extending it every ttl/3 until ctx is done or
// the returned release function is called. The lock is released on either.
func (lm *LockManager) Hold(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := lm.acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}

	holdCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		lm.keepAlive(holdCtx, key, token, ttl)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			lm.release(key, token)
		})
	}, nil
}

func (lm *LockManager) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := lm.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", fmt.Errorf("redis: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	return token, nil
}

func (lm *LockManager) keepAlive(ctx context.Context, key, token string, ttl time.Duration) {
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := lm.extendSc.Run(ctx, lm.rdb, []string{lockKey(key)}, token, ttl.Milliseconds()).Int()
			if err != nil {
				// A transient error is retried on the next tick; the TTL leaves
				// room for two misses.
				continue
			}
			if n == 0 {
				if lm.onLost != nil {
					lm.onLost(key)
				}
				return
			}
		}
	}
}

// release uses a background context so unlock succeeds even if the caller's
// context is already cancelled.
func (lm *LockManager) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = lm.unlockSc.Run(ctx, lm.rdb, []string{lockKey(key)}, token).Err()
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
