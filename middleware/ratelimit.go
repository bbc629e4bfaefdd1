package middleware

import (
	"math"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Tier names reported in X-RateLimit-Type
const (
	TierBypass   = "bypass"
	TierNormal   = "normal"
	TierCached   = "cached"
	TierExceeded = "exceeded"
)

// LimiterPair holds the normal and cached tier limiters for one client
type LimiterPair struct {
	Normal   *rate.Limiter
	Cached   *rate.Limiter
	lastSeen time.Time
}

func (lp *LimiterPair) GetNormalTokens() int {
	return int(math.Floor(lp.Normal.Tokens()))
}

func (lp *LimiterPair) GetCachedTokens() int {
	return int(math.Floor(lp.Cached.Tokens()))
}

// IPRateLimiter applies two-tier rate limits per client IP.
// The normal tier serves any request; once it is spent the cached tier only
// serves responses that need no upstream work.
type IPRateLimiter struct {
	ips         map[string]*LimiterPair
	mu          sync.Mutex
	normalRate  rate.Limit
	normalBurst int
	cachedRate  rate.Limit
	cachedBurst int
	now         func() time.Time
}

func NewIPRateLimiter(normalRate rate.Limit, normalBurst int, cachedRate rate.Limit, cachedBurst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:         make(map[string]*LimiterPair),
		normalRate:  normalRate,
		normalBurst: normalBurst,
		cachedRate:  cachedRate,
		cachedBurst: cachedBurst,
		now:         time.Now,
	}
}

func (i *IPRateLimiter) GetNormalLimit() int {
	return i.normalBurst
}

func (i *IPRateLimiter) GetCachedLimit() int {
	return i.cachedBurst
}

// ClientIP strips the port from a RemoteAddr so one client shares one limiter
func ClientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// GetLimiter returns the limiter pair for ip, creating it on first use
func (i *IPRateLimiter) GetLimiter(ip string) *LimiterPair {
	i.mu.Lock()
	defer i.mu.Unlock()

	pair, ok := i.ips[ip]
	if !ok {
		pair = &LimiterPair{
			Normal: rate.NewLimiter(i.normalRate, i.normalBurst),
			Cached: rate.NewLimiter(i.cachedRate, i.cachedBurst),
		}
		i.ips[ip] = pair
	}
	pair.lastSeen = i.now()
	return pair
}

// Take decides which tier serves a request from ip
func (i *IPRateLimiter) Take(ip string) (string, *LimiterPair) {
	pair := i.GetLimiter(ip)
	switch {
	case pair.Normal.Allow():
		return TierNormal, pair
	case pair.Cached.Allow():
		return TierCached, pair
	default:
		return TierExceeded, pair
	}
}

// Size returns the number of tracked clients
func (i *IPRateLimiter) Size() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ips)
}

// Cleanup forgets clients not seen for longer than idle and returns how many were removed
func (i *IPRateLimiter) Cleanup(idle time.Duration) int {
	cutoff := i.now().Add(-idle)

	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for ip, pair := range i.ips {
		if pair.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			removed++
		}
	}
	return removed
}
