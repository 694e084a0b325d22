// Package ratelimit implements the per-key token bucket rate limiter (§4.7).
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

// Decision is the outcome of a Consume call.
type Decision struct {
	Allowed        bool
	RetryAfter     time.Duration // only meaningful when Allowed is false
	RemainingQuota int
}

type tokenBucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// refill applies §4.7 steps 2-3: tokens = min(capacity, tokens + elapsed*refill_rate).
func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// Limiter is a 64-way sharded map of per-key token buckets, striped by FNV hash of the key so
// concurrent requests for different keys rarely contend on the same lock (§9).
type Limiter struct {
	shards          [shardCount]*shard
	defaultCapacity float64
	windowSeconds   float64 // refill_rate = capacity/windowSeconds, held constant across overrides
	idleTTL         time.Duration

	stopSweep chan struct{}
}

// New builds a Limiter. defaultCapacity/windowSeconds describe the bucket used for any key whose
// APIKey.RateLimit override is nil (a capacity override keeps the same window, per §4.7). idleTTL
// is how long an untouched bucket survives before the background sweep evicts it; zero means no
// sweep runs.
func New(defaultCapacity, windowSeconds float64, idleTTL time.Duration) *Limiter {
	l := &Limiter{
		defaultCapacity: defaultCapacity,
		windowSeconds:   windowSeconds,
		idleTTL:         idleTTL,
	}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*tokenBucket)}
	}
	if idleTTL > 0 {
		l.stopSweep = make(chan struct{})
		go l.sweep()
	}
	return l
}

// Stop halts the background eviction sweep.
func (l *Limiter) Stop() {
	if l.stopSweep != nil {
		close(l.stopSweep)
	}
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// Consume attempts to take n tokens (n=1 per request per §4.7 step 1, unless the caller meters
// differently) from key's bucket. overrideCapacity, when non-zero, replaces the default capacity
// for this key, matching APIKey.RateLimit (§3).
func (l *Limiter) Consume(key string, n int, overrideCapacity int) Decision {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := l.defaultCapacity
	if overrideCapacity > 0 {
		capacity = float64(overrideCapacity)
	}
	refillRate := capacity
	if l.windowSeconds > 0 {
		refillRate = capacity / l.windowSeconds
	}

	bucket, ok := s.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: capacity, capacity: capacity, refillRate: refillRate, lastRefill: time.Now()}
		s.buckets[key] = bucket
	} else if bucket.capacity != capacity {
		bucket.capacity = capacity
		bucket.refillRate = refillRate
		if bucket.tokens > capacity {
			bucket.tokens = capacity
		}
	}

	now := time.Now()
	bucket.refill(now)

	need := float64(n)
	if bucket.tokens < need {
		var wait time.Duration
		if bucket.refillRate > 0 {
			wait = time.Duration((need-bucket.tokens)/bucket.refillRate*1000) * time.Millisecond
		}
		return Decision{Allowed: false, RetryAfter: wait, RemainingQuota: int(bucket.tokens)}
	}

	bucket.tokens -= need
	return Decision{Allowed: true, RemainingQuota: int(bucket.tokens)}
}

// sweep evicts buckets idle past idleTTL, mirroring the teacher's ticker-based cleanup.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopSweep:
			return
		case <-ticker.C:
			now := time.Now()
			for _, s := range l.shards {
				s.mu.Lock()
				for key, bucket := range s.buckets {
					if now.Sub(bucket.lastRefill) > l.idleTTL {
						delete(s.buckets, key)
					}
				}
				s.mu.Unlock()
			}
		}
	}
}
