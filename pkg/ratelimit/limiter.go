// Package ratelimit implements the Task Scheduler's sharded, per-task-kind
// token bucket rate limiter (spec §4.6, §4.8).
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"

	"golang.org/x/time/rate"
)

// Config configures the Limiter.
type Config struct {
	// Shards is the number of independent shards tokens are spread across
	// to reduce contention on high-throughput task kinds. Bounded below
	// by 1 (spec §4.8).
	Shards int
	// RequestsPerSecond is each shard's per-kind token bucket refill rate.
	RequestsPerSecond float64
	// Burst is each shard's per-kind token bucket capacity.
	Burst int
}

func (c Config) normalized() Config {
	if c.Shards < 1 {
		c.Shards = 1
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	return c
}

// shard owns a token bucket per task class. Refill uses a monotonic clock
// via golang.org/x/time/rate (elapsed wall time between calls), avoiding
// the drift spec §4.8 warns against.
type shard struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      Config
}

func newShard(cfg Config) *shard {
	return &shard{limiters: map[string]*rate.Limiter{}, cfg: cfg}
}

func (s *shard) limiterFor(kind string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[kind]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)
		s.limiters[kind] = l
	}
	return l
}

// Limiter is the sharded rate limiter consumed by the Task Scheduler
// between dependency-check and handler dispatch (spec §4.6 step 2, the
// only suspension point there per §4.8).
type Limiter struct {
	shards []*shard
	cfg    Config
}

// New constructs a Limiter with cfg.Shards independent shards, each
// holding its own map of per-kind token buckets.
func New(cfg Config) *Limiter {
	cfg = cfg.normalized()
	l := &Limiter{cfg: cfg, shards: make([]*shard, cfg.Shards)}
	for i := range l.shards {
		l.shards[i] = newShard(cfg)
	}
	return l
}

// shardFor deterministically routes kind to one of the limiter's shards
// by hash(kind), per spec §4.8's "N shards keyed by hash(kind, shard-seed)".
func (l *Limiter) shardFor(kind string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(kind))
	idx := int(h.Sum32()) % len(l.shards)
	if idx < 0 {
		idx += len(l.shards)
	}
	return l.shards[idx]
}

// Acquire suspends the caller until a token is available for kind, or
// until ctx is cancelled. This is the scheduler's one suspension point
// between dependency check and handler dispatch (spec §4.6, §4.8).
func (l *Limiter) Acquire(ctx context.Context, kind string) error {
	return l.shardFor(kind).limiterFor(kind).Wait(ctx)
}
