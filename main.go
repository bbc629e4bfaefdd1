package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/middleware"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/session"
	"lyrics-sync-go/stats"

	_ "lyrics-sync-go/services/providers/local"
	_ "lyrics-sync-go/services/providers/remote"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var conf = config.Get()

var (
	lyricsCache    cache.Backend
	sessionManager *session.Manager
	rateLimiter    *middleware.IPRateLimiter
	inFlightReqs   sync.Map
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)

	level, err := log.ParseLevel(conf.Configuration.LogLevel)
	if err != nil {
		log.Warnf("%s Unknown LOG_LEVEL %q, using info", logcolors.LogConfig, conf.Configuration.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// newSessionManager builds the session manager from configuration
func newSessionManager() *session.Manager {
	return session.NewManager(session.ManagerOptions{
		Options: session.Options{
			Loader:         lyricsLoader{cacheOnly: conf.FeatureFlags.CacheOnlyMode},
			UpdateInterval: time.Duration(conf.Configuration.LyricsUpdateIntervalMs) * time.Millisecond,
		},
		IdleTimeout: time.Duration(conf.Configuration.SessionIdleTimeoutMins) * time.Minute,
		OnClose: func(id string) {
			stats.Get().SessionsClosed.Add(1)
		},
	})
}

func main() {
	var err error
	lyricsCache, err = cache.Open(conf)
	if err != nil {
		log.Fatalf("%s Failed to open cache: %v", logcolors.LogCacheInit, err)
	}

	statsStore, err := stats.NewStore(conf.Configuration.StatsDBPath, stats.Get())
	if err != nil {
		log.Warnf("%s Stats will not persist: %v", logcolors.LogStats, err)
	} else {
		if err := statsStore.Load(); err != nil {
			log.Warnf("%s Failed to load saved stats: %v", logcolors.LogStats, err)
		}
		statsStore.StartAutoSave(5 * time.Minute)
	}

	sessionManager = newSessionManager()

	rateLimiter = middleware.NewIPRateLimiter(
		rate.Limit(conf.Configuration.RateLimitPerSecond), conf.Configuration.RateLimitBurstLimit,
		rate.Limit(conf.Configuration.CachedRateLimitPerSecond), conf.Configuration.CachedRateLimitBurstLimit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startLimiterCleanup(ctx, rateLimiter, 10*time.Minute, 30*time.Minute)

	router := mux.NewRouter()
	setupRoutes(router)

	logStartupConfig()
	setupAlerts()

	server := &http.Server{
		Addr:              ":" + conf.Configuration.Port,
		Handler:           buildHandler(router, rateLimiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("%s Server listening on port %s", logcolors.LogServer, conf.Configuration.Port)
		notifier.PublishServerStarted(conf.Configuration.Port, conf.Providers())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("%s Server failed: %v", logcolors.LogServer, err)
		}
	}()

	<-ctx.Done()
	log.Infof("%s Shutting down", logcolors.LogServer)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Sessions go first so open event streams end and the server can drain
	if err := sessionManager.Shutdown(shutdownCtx); err != nil {
		log.Warnf("%s Sessions did not stop cleanly: %v", logcolors.LogSession, err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("%s Server shutdown: %v", logcolors.LogServer, err)
	}
	if statsStore != nil {
		if err := statsStore.Close(); err != nil {
			log.Warnf("%s Failed to save stats: %v", logcolors.LogStats, err)
		}
	}
	if err := lyricsCache.Close(); err != nil {
		log.Warnf("%s Failed to close cache: %v", logcolors.LogCache, err)
	}
}
