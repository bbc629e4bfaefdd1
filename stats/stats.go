package stats

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Stats holds the server counters. All fields are safe for concurrent use.
type Stats struct {
	StartTime time.Time

	// Requests by route group
	TotalRequests   atomic.Int64
	LyricsRequests  atomic.Int64
	ParseRequests   atomic.Int64
	SessionRequests atomic.Int64
	CacheRequests   atomic.Int64
	StatsRequests   atomic.Int64
	HealthRequests  atomic.Int64
	OtherRequests   atomic.Int64

	CacheHits         atomic.Int64
	CacheMisses       atomic.Int64
	NegativeCacheHits atomic.Int64

	// Load outcomes, one per resolved song
	LoadsSucceeded atomic.Int64
	LoadsNotFound  atomic.Int64
	LoadsFailed    atomic.Int64

	SessionsCreated atomic.Int64
	SessionsClosed  atomic.Int64
	EventsStreamed  atomic.Int64

	RateLimitNormal   atomic.Int64
	RateLimitCached   atomic.Int64
	RateLimitExceeded atomic.Int64

	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Response times in microseconds
	totalResponseTime   atomic.Int64
	responseCount       atomic.Int64
	minResponseTime     atomic.Int64
	maxResponseTime     atomic.Int64
	lyricsResponseTime  atomic.Int64
	lyricsResponseCount atomic.Int64

	// provider name -> *atomic.Int64
	providerHits sync.Map
}

// New returns an empty Stats started now
func New() *Stats {
	s := &Stats{StartTime: time.Now()}
	s.minResponseTime.Store(maxInt64)
	return s
}

var global = New()

// Get returns the process-wide stats
func Get() *Stats {
	return global
}

// RecordRequest counts a request by the route group of its path
func (s *Stats) RecordRequest(path string) {
	s.TotalRequests.Add(1)
	switch {
	case path == "/lyrics":
		s.LyricsRequests.Add(1)
	case strings.HasPrefix(path, "/lyrics/"):
		s.ParseRequests.Add(1)
	case strings.HasPrefix(path, "/sessions"):
		s.SessionRequests.Add(1)
	case strings.HasPrefix(path, "/cache"):
		s.CacheRequests.Add(1)
	case path == "/stats":
		s.StatsRequests.Add(1)
	case path == "/health":
		s.HealthRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

func (s *Stats) RecordCacheHit()         { s.CacheHits.Add(1) }
func (s *Stats) RecordCacheMiss()        { s.CacheMisses.Add(1) }
func (s *Stats) RecordNegativeCacheHit() { s.NegativeCacheHits.Add(1) }

// RecordLoad counts a load outcome by load state kind
func (s *Stats) RecordLoad(kind string) {
	switch kind {
	case "success":
		s.LoadsSucceeded.Add(1)
	case "not_found":
		s.LoadsNotFound.Add(1)
	case "error":
		s.LoadsFailed.Add(1)
	}
}

// RecordProviderHit counts a document served by the named provider
func (s *Stats) RecordProviderHit(provider string) {
	counter, _ := s.providerHits.LoadOrStore(provider, &atomic.Int64{})
	counter.(*atomic.Int64).Add(1)
}

// ProviderHitsSnapshot returns the per-provider counts
func (s *Stats) ProviderHitsSnapshot() map[string]int64 {
	out := make(map[string]int64)
	s.providerHits.Range(func(k, v interface{}) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

// Providers returns the names of providers that served at least one document, sorted
func (s *Stats) Providers() []string {
	var names []string
	s.providerHits.Range(func(k, _ interface{}) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// RecordRateLimit counts rate limit tier usage: normal, cached or exceeded
func (s *Stats) RecordRateLimit(tier string) {
	switch tier {
	case "normal":
		s.RateLimitNormal.Add(1)
	case "cached":
		s.RateLimitCached.Add(1)
	case "exceeded":
		s.RateLimitExceeded.Add(1)
	}
}

func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordResponseTime records how long a request to path took
func (s *Stats) RecordResponseTime(duration time.Duration, path string) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}

	if path == "/lyrics" {
		s.lyricsResponseTime.Add(us)
		s.lyricsResponseCount.Add(1)
	}
}

func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// CacheHitRate returns hits as a percentage of hits plus misses
func (s *Stats) CacheHitRate() float64 {
	hits := s.CacheHits.Load()
	total := hits + s.CacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == maxInt64 {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

func (s *Stats) AvgLyricsResponseTime() time.Duration {
	count := s.lyricsResponseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.lyricsResponseTime.Load()/count) * time.Microsecond
}

// Snapshot returns a point-in-time view of all counters for the /stats endpoint
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.Round(time.Second).String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":    s.TotalRequests.Load(),
			"lyrics":   s.LyricsRequests.Load(),
			"parse":    s.ParseRequests.Load(),
			"sessions": s.SessionRequests.Load(),
			"cache":    s.CacheRequests.Load(),
			"stats":    s.StatsRequests.Load(),
			"health":   s.HealthRequests.Load(),
			"other":    s.OtherRequests.Load(),
		},
		"cache": map[string]interface{}{
			"hits":          s.CacheHits.Load(),
			"misses":        s.CacheMisses.Load(),
			"negative_hits": s.NegativeCacheHits.Load(),
			"hit_rate":      s.CacheHitRate(),
		},
		"loads": map[string]interface{}{
			"success":   s.LoadsSucceeded.Load(),
			"not_found": s.LoadsNotFound.Load(),
			"error":     s.LoadsFailed.Load(),
			"providers": s.ProviderHitsSnapshot(),
		},
		"sessions": map[string]interface{}{
			"created":         s.SessionsCreated.Load(),
			"closed":          s.SessionsClosed.Load(),
			"events_streamed": s.EventsStreamed.Load(),
		},
		"rate_limiting": map[string]interface{}{
			"normal_tier": s.RateLimitNormal.Load(),
			"cached_tier": s.RateLimitCached.Load(),
			"exceeded":    s.RateLimitExceeded.Load(),
		},
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"response_times": map[string]interface{}{
			"avg":        s.AvgResponseTime().String(),
			"min":        s.MinResponseTime().String(),
			"max":        s.MaxResponseTime().String(),
			"avg_lyrics": s.AvgLyricsResponseTime().String(),
		},
	}
}
