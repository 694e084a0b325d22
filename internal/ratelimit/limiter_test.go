package ratelimit

import (
	"testing"
	"time"
)

func TestConsumeWithinCapacitySucceeds(t *testing.T) {
	l := New(5, 60, 0)
	for i := 0; i < 5; i++ {
		d := l.Consume("key-a", 1, 0)
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed, got denied", i)
		}
	}
}

func TestConsumeExhaustedBucketDenies(t *testing.T) {
	l := New(2, 60, 0)
	l.Consume("key-b", 1, 0)
	l.Consume("key-b", 1, 0)

	d := l.Consume("key-b", 1, 0)
	if d.Allowed {
		t.Fatal("expected the third request to be denied")
	}
	if d.RetryAfter <= 0 {
		t.Fatal("expected a positive RetryAfter on denial")
	}
}

func TestConsumeRefillsOverTime(t *testing.T) {
	l := New(1, 1, 0) // capacity 1, refills fully every second
	d := l.Consume("key-c", 1, 0)
	if !d.Allowed {
		t.Fatal("expected first request allowed")
	}

	// Simulate elapsed time by rewriting the bucket's lastRefill directly through the shard.
	s := l.shardFor("key-c")
	s.mu.Lock()
	s.buckets["key-c"].lastRefill = time.Now().Add(-2 * time.Second)
	s.mu.Unlock()

	d = l.Consume("key-c", 1, 0)
	if !d.Allowed {
		t.Fatal("expected bucket to have refilled after simulated elapsed time")
	}
}

func TestConsumeRespectsPerKeyOverrideCapacity(t *testing.T) {
	l := New(5, 60, 0)
	// key-d's APIKey.RateLimit override shrinks its bucket to 1.
	d := l.Consume("key-d", 1, 1)
	if !d.Allowed {
		t.Fatal("expected first request allowed under override capacity")
	}
	d = l.Consume("key-d", 1, 1)
	if d.Allowed {
		t.Fatal("expected second request denied under override capacity 1")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1, 60, 0)
	l.Consume("key-e", 1, 0)

	d := l.Consume("key-f", 1, 0)
	if !d.Allowed {
		t.Fatal("a different key's bucket must not be affected by key-e's consumption")
	}
}

func TestSweepEvictsIdleBuckets(t *testing.T) {
	l := New(5, 60, 50*time.Millisecond)
	defer l.Stop()

	l.Consume("key-g", 1, 0)

	time.Sleep(200 * time.Millisecond)

	s := l.shardFor("key-g")
	s.mu.Lock()
	_, exists := s.buckets["key-g"]
	s.mu.Unlock()
	if exists {
		t.Fatal("expected idle bucket to have been swept")
	}
}
