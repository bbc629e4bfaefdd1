package stats

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	tests := []struct {
		path    string
		counter func(*Stats) int64
	}{
		{"/lyrics", func(s *Stats) int64 { return s.LyricsRequests.Load() }},
		{"/lyrics/parse", func(s *Stats) int64 { return s.ParseRequests.Load() }},
		{"/lyrics/active", func(s *Stats) int64 { return s.ParseRequests.Load() }},
		{"/sessions/abc/position", func(s *Stats) int64 { return s.SessionRequests.Load() }},
		{"/cache/backups", func(s *Stats) int64 { return s.CacheRequests.Load() }},
		{"/stats", func(s *Stats) int64 { return s.StatsRequests.Load() }},
		{"/health", func(s *Stats) int64 { return s.HealthRequests.Load() }},
		{"/", func(s *Stats) int64 { return s.OtherRequests.Load() }},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s := New()
			s.RecordRequest(tt.path)
			if got := tt.counter(s); got != 1 {
				t.Errorf("Expected route counter 1, got %d", got)
			}
			if s.TotalRequests.Load() != 1 {
				t.Errorf("Expected total 1, got %d", s.TotalRequests.Load())
			}
		})
	}
}

func TestRecordLoadAndProviders(t *testing.T) {
	s := New()
	s.RecordLoad("success")
	s.RecordLoad("not_found")
	s.RecordLoad("error")
	s.RecordLoad("loading")
	s.RecordProviderHit("remote")
	s.RecordProviderHit("local")
	s.RecordProviderHit("remote")

	if s.LoadsSucceeded.Load() != 1 || s.LoadsNotFound.Load() != 1 || s.LoadsFailed.Load() != 1 {
		t.Error("Expected one of each load outcome")
	}
	hits := s.ProviderHitsSnapshot()
	if hits["remote"] != 2 || hits["local"] != 1 {
		t.Errorf("Unexpected provider hits %v", hits)
	}
	if names := s.Providers(); len(names) != 2 || names[0] != "local" {
		t.Errorf("Expected sorted provider names, got %v", names)
	}
}

func TestResponseTimes(t *testing.T) {
	s := New()
	if s.MinResponseTime() != 0 || s.AvgResponseTime() != 0 {
		t.Error("Expected zero times before any request")
	}

	s.RecordResponseTime(10*time.Millisecond, "/lyrics")
	s.RecordResponseTime(30*time.Millisecond, "/health")

	if s.MinResponseTime() != 10*time.Millisecond {
		t.Errorf("Unexpected min %v", s.MinResponseTime())
	}
	if s.MaxResponseTime() != 30*time.Millisecond {
		t.Errorf("Unexpected max %v", s.MaxResponseTime())
	}
	if s.AvgResponseTime() != 20*time.Millisecond {
		t.Errorf("Unexpected avg %v", s.AvgResponseTime())
	}
	if s.AvgLyricsResponseTime() != 10*time.Millisecond {
		t.Errorf("Unexpected lyrics avg %v", s.AvgLyricsResponseTime())
	}
}

func TestCacheHitRate(t *testing.T) {
	s := New()
	if s.CacheHitRate() != 0 {
		t.Error("Expected 0 hit rate with no lookups")
	}
	s.RecordCacheHit()
	s.RecordCacheHit()
	s.RecordCacheHit()
	s.RecordCacheMiss()
	if s.CacheHitRate() != 75 {
		t.Errorf("Expected 75%%, got %v", s.CacheHitRate())
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")

	first := New()
	first.RecordRequest("/lyrics")
	first.RecordStatusCode(404)
	first.RecordProviderHit("local")
	first.RecordResponseTime(5*time.Millisecond, "/lyrics")
	first.SessionsCreated.Add(3)

	store, err := NewStore(path, first)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	store.StartAutoSave(time.Hour)
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := New()
	store, err = NewStore(path, second)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer store.Close()

	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if second.LyricsRequests.Load() != 1 || second.Status4xx.Load() != 1 || second.SessionsCreated.Load() != 3 {
		t.Error("Expected counters to survive a restart")
	}
	if second.ProviderHitsSnapshot()["local"] != 1 {
		t.Error("Expected provider hits to survive a restart")
	}
	if second.MinResponseTime() != 5*time.Millisecond {
		t.Errorf("Expected min response time restored, got %v", second.MinResponseTime())
	}
	if !second.StartTime.Equal(first.StartTime) {
		t.Error("Expected first start time to be preserved")
	}
}

func TestStoreLoadEmpty(t *testing.T) {
	s := New()
	store, err := NewStore(filepath.Join(t.TempDir(), "stats.db"), s)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Load(); err != nil {
		t.Fatalf("Load on empty store failed: %v", err)
	}
	if s.TotalRequests.Load() != 0 {
		t.Error("Expected zero counters")
	}
}
