package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/stats"

	log "github.com/sirupsen/logrus"
)

// errCacheOnly is returned when a lookup would need a provider but only cached data may be served
var errCacheOnly = errors.New("lyrics are not cached and fresh lookups are currently disabled")

// sharedFetchTimeout bounds a deduplicated provider lookup once no single caller owns it
const sharedFetchTimeout = 30 * time.Second

// providerRegistry is where providers look for sources; tests swap it
var providerRegistry = providers.GetRegistry()

// resolveLyrics finds the document for req: cache, then negative cache, then
// the configured providers in order. Concurrent lookups for the same song
// share one provider round trip.
func resolveLyrics(ctx context.Context, req providers.Request, cacheOnly bool) (doc *lyrics.Lyrics, provider, cacheStatus string, err error) {
	defer func() {
		stats.Get().RecordLoad(lyrics.StateFromResult(doc, err).Kind())
	}()

	key := buildCacheKey(req)
	if key == "" {
		if cacheOnly {
			return nil, "", cacheBypass, errCacheOnly
		}
		doc, provider, err = fetchLyrics(ctx, req)
		return doc, provider, cacheBypass, err
	}

	if cached, ok := getCachedLyrics(key); ok {
		stats.Get().RecordCacheHit()
		log.Infof("%s Found cached lyrics for %s", logcolors.LogCacheLyrics, req)
		return cached.Lyrics, cached.Provider, cacheHit, nil
	}

	if reason, ok := getNegativeCache(key); ok {
		stats.Get().RecordNegativeCacheHit()
		log.Infof("%s Returning cached 'no lyrics' response for: %s", logcolors.LogCacheNegative, req)
		return nil, "", cacheNegativeHit, fmt.Errorf("%w: %s", lyrics.ErrNotFound, reason)
	}

	stats.Get().RecordCacheMiss()
	if cacheOnly {
		log.Warnf("%s Cache-only mode but no cache found for: %s", logcolors.LogCacheLyrics, req)
		return nil, "", cacheMiss, errCacheOnly
	}

	fresh := &InFlightRequest{done: make(chan struct{})}
	actual, loaded := inFlightReqs.LoadOrStore(key, fresh)
	pending := actual.(*InFlightRequest)
	if loaded {
		log.Infof("%s Waiting for in-flight request for %s", logcolors.LogLoader, req)
	} else {
		go runSharedFetch(ctx, key, req, fresh)
	}

	select {
	case <-pending.done:
		return pending.doc, pending.provider, cacheMiss, pending.err
	case <-ctx.Done():
		return nil, "", cacheMiss, ctx.Err()
	}
}

// runSharedFetch performs the provider lookup every waiter on key shares.
// It runs detached from the caller that started it, so one caller giving up
// does not fail the others.
func runSharedFetch(ctx context.Context, key string, req providers.Request, flight *InFlightRequest) {
	defer close(flight.done)

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
	defer cancel()

	flight.doc, flight.provider, flight.err = fetchLyrics(fetchCtx, req)

	switch {
	case flight.err == nil:
		log.Infof("%s Caching lyrics for: %s (provider: %s)", logcolors.LogCacheLyrics, req, flight.provider)
		setCachedLyrics(key, flight.doc, flight.provider)
	case errors.Is(flight.err, lyrics.ErrNotFound):
		setNegativeCache(key, "Lyrics not available for this track")
	}

	// Results are cached before later callers can start a new flight
	inFlightReqs.Delete(key)
}

// fetchLyrics asks the configured providers
func fetchLyrics(ctx context.Context, req providers.Request) (*lyrics.Lyrics, string, error) {
	doc, provider, err := providers.FetchFirst(ctx, providerRegistry, conf.Providers(), req)
	if err != nil {
		return nil, "", err
	}
	stats.Get().RecordProviderHit(provider)
	return doc, provider, nil
}

// lyricsLoader resolves documents for playback sessions
type lyricsLoader struct {
	cacheOnly bool
}

func (l lyricsLoader) Load(ctx context.Context, req providers.Request) (*lyrics.Lyrics, error) {
	doc, provider, _, err := resolveLyrics(ctx, req, l.cacheOnly)
	if err == nil {
		log.Debugf("%s Loaded %s from %s", logcolors.LogLoader, req, provider)
	}
	return doc, err
}
