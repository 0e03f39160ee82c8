package calls

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voice-assistant/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes work on a single call. Duplicate or retried webhooks for the
// same call id must not interleave their transcript writes.
type Locker interface {
	Lock(ctx context.Context, callID string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. Entries are dropped once nobody holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex { return &KeyedMutex{locks: map[string]*keyedEntry{}} }

func (k *KeyedMutex) Lock(ctx context.Context, callID string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[callID]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[callID] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(callID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(callID, e)
		})
	}, nil
}

func (k *KeyedMutex) release(callID string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, callID)
	}
}

// RedisLocker adds a Redis lease on top of a local KeyedMutex so replicas behind
// a load balancer serialize the same call. Redis failures degrade to the local lock.
type RedisLocker struct {
	local *KeyedMutex
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
	log   *slog.Logger
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisLocker{local: NewKeyedMutex(), rdb: rdb, ttl: ttl, retry: 50 * time.Millisecond, log: log}
}

func (l *RedisLocker) Lock(ctx context.Context, callID string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, callID)
	if err != nil {
		return nil, err
	}

	key := "call:lock:" + callID
	owner := uuid.NewString()
	for {
		ok, err := utils.AcquireLease(ctx, l.rdb, key, owner, l.ttl)
		if err != nil {
			l.log.Warn("call lease unavailable, using local lock only", "call_id", callID, "err", err)
			return unlockLocal, nil
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		if err := utils.ReleaseLease(context.WithoutCancel(ctx), l.rdb, key, owner); err != nil {
			l.log.Warn("call lease release failed", "call_id", callID, "err", err)
		}
		unlockLocal()
	}, nil
}
