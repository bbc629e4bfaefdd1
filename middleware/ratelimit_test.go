package middleware

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestGetLimiter(t *testing.T) {
	rl := NewIPRateLimiter(1, 5, 10, 20)

	first := rl.GetLimiter("192.168.1.1")
	if first.Normal == nil || first.Cached == nil {
		t.Fatal("Expected both tier limiters to be created")
	}
	if again := rl.GetLimiter("192.168.1.1"); again != first {
		t.Error("Expected the same limiter pair for the same IP")
	}
	if other := rl.GetLimiter("10.0.0.1"); other == first {
		t.Error("Expected a different limiter pair for a different IP")
	}
	if rl.Size() != 2 {
		t.Errorf("Expected 2 tracked clients, got %d", rl.Size())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		addr     string
		expected string
	}{
		{"192.168.1.1:54321", "192.168.1.1"},
		{"[::1]:8080", "::1"},
		{"192.168.1.1", "192.168.1.1"},
	}
	for _, tt := range tests {
		if got := ClientIP(tt.addr); got != tt.expected {
			t.Errorf("ClientIP(%q) = %q, expected %q", tt.addr, got, tt.expected)
		}
	}
}

func TestTake_TwoTiers(t *testing.T) {
	rl := NewIPRateLimiter(rate.Every(time.Hour), 2, rate.Every(time.Hour), 3)
	ip := "192.168.1.1"

	expected := []string{
		TierNormal, TierNormal,
		TierCached, TierCached, TierCached,
		TierExceeded,
	}
	for i, want := range expected {
		if got, _ := rl.Take(ip); got != want {
			t.Errorf("Request %d: expected tier %q, got %q", i+1, want, got)
		}
	}

	if got, _ := rl.Take("10.0.0.1"); got != TierNormal {
		t.Errorf("Expected a fresh client to get the normal tier, got %q", got)
	}
}

func TestLimiterPairTokens(t *testing.T) {
	rl := NewIPRateLimiter(rate.Every(time.Hour), 5, rate.Every(time.Hour), 20)
	pair := rl.GetLimiter("192.168.1.1")

	if pair.GetNormalTokens() != 5 || pair.GetCachedTokens() != 20 {
		t.Fatalf("Expected full buckets, got %d/%d", pair.GetNormalTokens(), pair.GetCachedTokens())
	}
	pair.Normal.Allow()
	if pair.GetNormalTokens() != 4 {
		t.Errorf("Expected 4 normal tokens left, got %d", pair.GetNormalTokens())
	}
	if rl.GetNormalLimit() != 5 || rl.GetCachedLimit() != 20 {
		t.Error("Unexpected tier limits")
	}
}

func TestCleanup(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewIPRateLimiter(1, 5, 10, 20)
	rl.now = func() time.Time { return now }

	rl.GetLimiter("old")
	now = now.Add(time.Hour)
	rl.GetLimiter("recent")

	if removed := rl.Cleanup(30 * time.Minute); removed != 1 {
		t.Errorf("Expected 1 client removed, got %d", removed)
	}
	if rl.Size() != 1 {
		t.Errorf("Expected 1 client left, got %d", rl.Size())
	}
}
