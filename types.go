package main

import (
	"lyrics-sync-go/cache"
	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services/providers"
)

type contextKey string

const (
	cacheOnlyModeKey contextKey = "cacheOnlyMode"
	rateLimitTypeKey contextKey = "rateLimitType"
)

// Cache status values for the X-Cache-Status header
const (
	cacheHit         = "HIT"
	cacheMiss        = "MISS"
	cacheNegativeHit = "NEGATIVE_HIT"
	cacheBypass      = "BYPASS"
)

// CacheDump represents the full cache contents
type CacheDump map[string]cache.CacheEntry

// CachePerformance contains cache hit/miss statistics
type CachePerformance struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	NegativeHits int64   `json:"negative_hits"`
	HitRate      float64 `json:"hit_rate_percent"`
}

// CacheDumpResponse is the response format for /cache endpoint
type CacheDumpResponse struct {
	Backend      string           `json:"backend"`
	NumberOfKeys int              `json:"number_of_keys"`
	SizeInKB     int              `json:"size_kb"`
	SizeInMB     float64          `json:"size_mb"`
	Performance  CachePerformance `json:"performance"`
	Cache        CacheDump        `json:"cache,omitempty"`
}

// InFlightRequest tracks concurrent lookups for the same song
type InFlightRequest struct {
	done     chan struct{} // closed once the fields below are set
	doc      *lyrics.Lyrics
	provider string
	err      error
}

// CachedLyrics is the cached form of a loaded document
type CachedLyrics struct {
	Lyrics   *lyrics.Lyrics `json:"lyrics"`
	Provider string         `json:"provider"`
	CachedAt int64          `json:"cachedAt"`
}

// NegativeCacheEntry stores info about failed lyrics lookups
type NegativeCacheEntry struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// LyricsResponse is returned by /lyrics and /lyrics/parse
type LyricsResponse struct {
	State      string         `json:"state"`
	Lyrics     *lyrics.Lyrics `json:"lyrics,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Format     string         `json:"format,omitempty"`
	Error      string         `json:"error,omitempty"`
	IsRTL      bool           `json:"isRtl"`
	WordByWord bool           `json:"wordByWord"`
	DurationMs int64          `json:"durationMs"`
	Duration   string         `json:"duration"`
	Issues     []lyrics.Issue `json:"issues,omitempty"`
}

// ActiveRequest asks which line and word are active in a document at TimeMs
type ActiveRequest struct {
	Lyrics *lyrics.Lyrics `json:"lyrics"`
	TimeMs int64          `json:"timeMs"`
}

// ActiveResponse reports the cursor for a point in time
type ActiveResponse struct {
	TimeMs    int64             `json:"timeMs"`
	LineIndex int               `json:"lineIndex"`
	WordIndex int               `json:"wordIndex"`
	Line      *lyrics.LyricLine `json:"line,omitempty"`
	Word      *lyrics.LyricWord `json:"word,omitempty"`
}

// CreateSessionRequest starts a session; PositionMs and Playing are applied
// once the session exists.
type CreateSessionRequest struct {
	providers.Request
	PositionMs int64 `json:"positionMs,omitempty"`
	Playing    bool  `json:"playing,omitempty"`
}

// PositionRequest updates a session's playback clock. Absent fields are left alone.
type PositionRequest struct {
	PositionMs *int64   `json:"positionMs"`
	Playing    *bool    `json:"playing"`
	Speed      *float64 `json:"speed"`
}
