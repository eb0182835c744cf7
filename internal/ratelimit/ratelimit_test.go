package ratelimit

import (
	"testing"

	"islandregistry/internal/regerr"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(Config{RatePerSecond: 1, Burst: 5})
	for i := 0; i < 5; i++ {
		if _, err := l.Allow("alice", CostRead); err != nil {
			t.Fatalf("request %d unexpectedly denied: %v", i, err)
		}
	}
}

func TestAllowDeniesBeyondBurst(t *testing.T) {
	l := New(Config{RatePerSecond: 1, Burst: 3})
	for i := 0; i < 3; i++ {
		if _, err := l.Allow("alice", CostRead); err != nil {
			t.Fatalf("request %d unexpectedly denied: %v", i, err)
		}
	}
	_, err := l.Allow("alice", CostRead)
	if regerr.KindOf(err) != regerr.KindRateLimited {
		t.Fatalf("expected rate-limited, got %v", err)
	}
}

func TestAllowSeparateBucketsPerKey(t *testing.T) {
	l := New(Config{RatePerSecond: 1, Burst: 1})
	if _, err := l.Allow("alice", CostRead); err != nil {
		t.Fatalf("alice's first request should succeed: %v", err)
	}
	if _, err := l.Allow("bob", CostRead); err != nil {
		t.Fatalf("bob should have an independent bucket: %v", err)
	}
}

func TestAllowPublishCostExceedsBurst(t *testing.T) {
	l := New(Config{RatePerSecond: 1, Burst: 3})
	_, err := l.Allow("alice", CostPublish)
	if regerr.KindOf(err) != regerr.KindRateLimited {
		t.Fatalf("expected a publish costing more than the burst to be denied, got %v", err)
	}
}
