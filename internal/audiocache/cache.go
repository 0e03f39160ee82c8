package audiocache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"voice-assistant/pkg/metrics"
	"voice-assistant/pkg/utils"
)

// Generator produces audio for a cache miss.
type Generator func(ctx context.Context) ([]byte, error)

// Result of a lookup. Audio is shared between collapsed callers and must not
// be modified. It is nil on a store hit.
type Result struct {
	Entry  Entry
	Audio  []byte
	Cached bool
	// Stored is false when the generated audio could not be written.
	Stored bool
}

type Options struct {
	// Timeout bounds one generation, independent of any caller.
	Timeout time.Duration
	// Redis enables a cross-instance lease per key. Optional.
	Redis        *redis.Client
	LeaseTTL     time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Cache is a content-addressed audio cache. Concurrent misses for one key
// trigger a single generation.
type Cache struct {
	store   Store
	group   singleflight.Group
	timeout time.Duration
	rdb     *redis.Client
	ttl     time.Duration
	poll    time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(store Store, opts Options) (*Cache, error) {
	if store == nil {
		return nil, errNoStore
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = opts.Timeout + 5*time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		store:   store,
		timeout: opts.Timeout,
		rdb:     opts.Redis,
		ttl:     opts.LeaseTTL,
		poll:    opts.PollInterval,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

func (c *Cache) Store() Store { return c.store }

// GetOrGenerate returns the stored entry for p or generates it once.
// A caller whose ctx ends stops waiting; the generation itself keeps going
// for the remaining callers.
func (c *Cache) GetOrGenerate(ctx context.Context, p Params, gen Generator) (Result, error) {
	key := Key(p)
	format := normalizeFormat(p.Format)

	e, ok, err := c.store.Get(ctx, key, format)
	if err != nil {
		c.log.WarnContext(ctx, "audio cache lookup failed", "key", key, "err", err)
	}
	if ok {
		c.metrics.RecordCacheLookup("hit")
		return Result{Entry: e, Cached: true, Stored: true}, nil
	}

	led := false
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		led = true
		c.metrics.RecordCacheLookup("miss")
		gctx, cancel := context.WithTimeout(detached, c.timeout)
		defer cancel()
		return c.generate(gctx, key, format, gen)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if !led {
			c.metrics.RecordCacheLookup("shared")
		}
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

func (c *Cache) generate(ctx context.Context, key, format string, gen Generator) (Result, error) {
	if c.rdb != nil {
		leaseKey := "audio:lease:" + key
		owner := uuid.NewString()
		got, err := utils.AcquireLease(ctx, c.rdb, leaseKey, owner, c.ttl)
		switch {
		case err != nil:
			c.log.WarnContext(ctx, "audio lease unavailable, generating locally", "key", key, "err", err)
		case got:
			defer func() {
				if err := utils.ReleaseLease(context.WithoutCancel(ctx), c.rdb, leaseKey, owner); err != nil {
					c.log.WarnContext(ctx, "audio lease release failed", "key", key, "err", err)
				}
			}()
		default:
			if e, ok := c.waitForEntry(ctx, key, format); ok {
				return Result{Entry: e, Cached: true, Stored: true}, nil
			}
		}
	}

	// Another instance may have finished between the first lookup and now.
	if e, ok, err := c.store.Get(ctx, key, format); err == nil && ok {
		return Result{Entry: e, Cached: true, Stored: true}, nil
	}

	audio, err := gen(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("audiocache: generate %s: %w", key, err)
	}
	if len(audio) == 0 {
		return Result{}, ErrEmptyAudio
	}

	e, err := c.store.Put(ctx, key, format, audio)
	if err != nil {
		c.log.ErrorContext(ctx, "audio cache write failed", "key", key, "err", err)
		return Result{Entry: Entry{Key: key, Format: format, Size: int64(len(audio))}, Audio: audio}, nil
	}
	return Result{Entry: e, Audio: audio, Stored: true}, nil
}

// waitForEntry polls the store while another instance holds the lease.
func (c *Cache) waitForEntry(ctx context.Context, key, format string) (Entry, bool) {
	deadline := time.NewTimer(c.ttl)
	defer deadline.Stop()
	tick := time.NewTicker(c.poll)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return Entry{}, false
		case <-deadline.C:
			return Entry{}, false
		case <-tick.C:
			if e, ok, err := c.store.Get(ctx, key, format); err == nil && ok {
				return e, true
			}
		}
	}
}
