package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/middleware"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/stats"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

// publicPaths never need an API key
var publicPaths = []string{"/", "/health"}

// logStartupConfig reports the effective configuration
func logStartupConfig() {
	c := conf.Configuration
	log.Infof("%s Cache backend: %s", logcolors.LogConfig, c.CacheBackend)
	log.Infof("%s Provider order: %v (registered: %v)", logcolors.LogConfig, conf.Providers(), providerRegistry.List())
	if _, missing := providerRegistry.Resolve(conf.Providers()); len(missing) > 0 {
		log.Warnf("%s Providers %v are configured but not registered", logcolors.LogConfig, missing)
	}
	if c.RemoteBaseURL == "" {
		log.Infof("%s REMOTE_BASE_URL not set, remote provider disabled", logcolors.LogConfig)
	}
	if c.CacheAccessToken == "" {
		log.Warnf("%s CACHE_ACCESS_TOKEN not set, admin endpoints are disabled", logcolors.LogConfig)
	}
	if conf.FeatureFlags.CacheOnlyMode {
		log.Warnf("%s Cache-only mode enabled, providers will not be queried", logcolors.LogConfig)
	}
	log.Infof("%s Rate limits: %d/s burst %d, cached tier %d/s burst %d", logcolors.LogConfig,
		c.RateLimitPerSecond, c.RateLimitBurstLimit, c.CachedRateLimitPerSecond, c.CachedRateLimitBurstLimit)
}

// setupAlerts forwards operational events to the configured notifiers
func setupAlerts() *notifier.AlertHandler {
	notifiers := notifier.FromConfig(conf)
	if len(notifiers) == 0 {
		log.Infof("%s No notifiers configured, alerts disabled", logcolors.LogNotifier)
		return nil
	}

	handler := notifier.NewAlertHandler(notifier.AlertConfig{
		Notifiers:        notifiers,
		CooldownDuration: time.Duration(conf.Notifiers.AlertCooldownMins) * time.Minute,
	})
	handler.Start()
	return handler
}

// buildHandler wraps the router with API key, logging, CORS and rate limiting
func buildHandler(router http.Handler, limiter *middleware.IPRateLimiter) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   conf.Origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.APIKeyHeader},
		ExposedHeaders:   []string{"X-Cache-Status", "X-Provider", "X-RateLimit-Type", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
	})

	authed := middleware.APIKeyMiddleware(conf.Configuration.APIKey, conf.Configuration.APIKeyRequired, publicPaths)(router)
	logged := middleware.LoggingMiddleware(authed)
	return limitMiddleware(c.Handler(logged), limiter)
}

// startLimiterCleanup forgets clients that have been quiet for idle
func startLimiterCleanup(ctx context.Context, limiter *middleware.IPRateLimiter, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Cleanup(idle); n > 0 {
					log.Debugf("%s Dropped %d idle clients", logcolors.LogRateLimit, n)
				}
			}
		}
	}()
}

func limitMiddleware(next http.Handler, limiter *middleware.IPRateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check for API key to bypass rate limits
		if middleware.ValidAPIKey(r.Header.Get(middleware.APIKeyHeader), conf.Configuration.APIKey) {
			stats.Get().RecordRateLimit(middleware.TierBypass)
			w.Header().Set("X-RateLimit-Bypass", "true")
			ctx := context.WithValue(r.Context(), rateLimitTypeKey, middleware.TierBypass)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		ip := middleware.ClientIP(r.RemoteAddr)
		tier, limiters := limiter.Take(ip)
		stats.Get().RecordRateLimit(tier)

		switch tier {
		case middleware.TierNormal:
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.GetNormalLimit()))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", limiters.GetNormalTokens()))
			w.Header().Set("X-RateLimit-Type", tier)
			ctx := context.WithValue(r.Context(), rateLimitTypeKey, tier)
			next.ServeHTTP(w, r.WithContext(ctx))

		case middleware.TierCached:
			// Cached tier allows, but only for cached responses
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.GetCachedLimit()))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", limiters.GetCachedTokens()))
			w.Header().Set("X-RateLimit-Type", tier)
			log.Debugf("%s IP %s exceeded normal tier, using cached tier", logcolors.LogRateLimit, ip)
			ctx := context.WithValue(r.Context(), cacheOnlyModeKey, true)
			ctx = context.WithValue(ctx, rateLimitTypeKey, tier)
			next.ServeHTTP(w, r.WithContext(ctx))

		default:
			log.Warnf("%s IP %s exceeded both rate limit tiers", logcolors.LogRateLimit, ip)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.GetCachedLimit()))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Type", middleware.TierExceeded)
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	})
}
