// Package cache holds the locks that keep intake cycles from overlapping.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ideabox/core/port/out"
	"ideabox/pkg/logger"
)

const keyPrefix = "ideabox:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCycleLock is shared by every replica pointing at the same Redis.
type RedisCycleLock struct {
	client *redis.Client
}

var _ out.CycleLock = (*RedisCycleLock)(nil)

func NewRedisCycleLock(client *redis.Client) *RedisCycleLock {
	return &RedisCycleLock{client: client}
}

func (l *RedisCycleLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := keyPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			logger.WithError(err).WithField("lock", name).Warn("failed to release lock, it will expire")
		}
	}
	return release, true, nil
}

// LocalCycleLock serialises cycles within one process. ttl is ignored.
type LocalCycleLock struct {
	mu   sync.Mutex
	held map[string]bool
}

var _ out.CycleLock = (*LocalCycleLock)(nil)

func NewLocalCycleLock() *LocalCycleLock {
	return &LocalCycleLock{held: make(map[string]bool)}
}

func (l *LocalCycleLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}
	return release, true, nil
}
