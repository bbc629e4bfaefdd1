package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/providers/remote"
	"lyrics-sync-go/stats"

	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 2 << 20

// firstParam returns the first non-empty value among the given query aliases
func firstParam(q url.Values, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// parseSongQuery builds a song request from query parameters.
// Duration is given in seconds and may be fractional.
func parseSongQuery(q url.Values) (providers.Request, error) {
	req := providers.Request{
		Title:    firstParam(q, "s", "song", "title"),
		Artist:   firstParam(q, "a", "artist"),
		Album:    firstParam(q, "al", "album"),
		FilePath: firstParam(q, "path"),
	}

	if d := firstParam(q, "d", "duration"); d != "" {
		seconds, err := strconv.ParseFloat(d, 64)
		if err != nil || seconds < 0 {
			return req, fmt.Errorf("invalid duration %q", d)
		}
		req.DurationMs = int64(seconds * 1000)
	}
	if id := firstParam(q, "id"); id != "" {
		songID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return req, fmt.Errorf("invalid id %q", id)
		}
		req.SongID = songID
	}

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, checkLocalPath(req.FilePath)
}

// checkLocalPath only lets clients name audio files under MUSIC_DIR
func checkLocalPath(path string) error {
	if path == "" {
		return nil
	}
	root := conf.Configuration.MusicDir
	if root == "" {
		return errors.New("local file lookups are disabled")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q is outside the music directory", path)
	}
	return nil
}

// newLyricsResponse describes a load state for the API
func newLyricsResponse(state lyrics.LoadState, provider string) LyricsResponse {
	resp := LyricsResponse{State: state.Kind(), Provider: provider}
	switch s := state.(type) {
	case lyrics.Success:
		resp.Lyrics = s.Lyrics
		resp.IsRTL = providers.IsRTLLanguage(s.Lyrics.Language)
		resp.WordByWord = s.Lyrics.SupportsWordByWord()
		resp.DurationMs = s.Lyrics.TotalDurationMs()
		resp.Issues = s.Lyrics.Diagnose()
	case lyrics.NotFound:
		resp.Error = "Lyrics not available for this track"
	case lyrics.Error:
		resp.Error = s.Message
	}
	resp.Duration = lyrics.FormatDuration(resp.DurationMs)
	return resp
}

// errorStatus maps a failed load to an HTTP status code
func errorStatus(err error) int {
	var pe *providers.ProviderError
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func getLyrics(w http.ResponseWriter, r *http.Request) {
	req, err := parseSongQuery(r.URL.Query())
	if err != nil {
		Respond(w, r).Error(http.StatusUnprocessableEntity, err.Error())
		return
	}

	cacheOnlyMode, _ := r.Context().Value(cacheOnlyModeKey).(bool)
	cacheOnly := cacheOnlyMode || conf.FeatureFlags.CacheOnlyMode

	doc, provider, cacheStatus, err := resolveLyrics(r.Context(), req, cacheOnly)
	resp := Respond(w, r).SetCacheStatus(cacheStatus).SetProvider(provider)

	if errors.Is(err, errCacheOnly) {
		if cacheOnlyMode {
			stats.Get().RecordRateLimit("exceeded")
			w.Header().Set("Retry-After", "60")
			resp.Status(http.StatusTooManyRequests, map[string]interface{}{
				"error":   "Rate limit exceeded. This request requires cached data, but no cache is available for this query.",
				"message": "Please try again later or reduce your request rate.",
			})
			return
		}
		resp.Error(http.StatusServiceUnavailable, err.Error())
		return
	}

	state := lyrics.StateFromResult(doc, err)
	body := newLyricsResponse(state, provider)

	switch state.(type) {
	case lyrics.Success:
		resp.JSON(body)
	case lyrics.NotFound:
		resp.Status(http.StatusNotFound, body)
	default:
		log.Errorf("%s Error loading lyrics for %s: %v", logcolors.LogLoader, req, err)
		resp.Status(errorStatus(err), body)
	}
}

// parseLyrics parses an uploaded lyric file. The format comes from ?format=
// or is detected from the content.
func parseLyrics(w http.ResponseWriter, r *http.Request) {
	if cacheOnly, _ := r.Context().Value(cacheOnlyModeKey).(bool); cacheOnly {
		w.Header().Set("Retry-After", "1")
		Respond(w, r).Error(http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		Respond(w, r).Error(http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	content := string(body)

	var (
		doc    *lyrics.Lyrics
		format services.Format
	)
	if name := r.URL.Query().Get("format"); name != "" {
		format, err = services.ParseFormat(name)
		if err == nil {
			doc, err = services.Parse(format, content)
		}
	} else {
		doc, format, err = services.ParseAuto(content)
	}
	if err != nil {
		log.Warnf("%s Rejected upload: %v", logcolors.LogWarning, err)
		Respond(w, r).Error(http.StatusBadRequest, err.Error())
		return
	}

	state := lyrics.StateFromResult(doc, nil)
	resp := newLyricsResponse(state, "")
	resp.Format = string(format)
	if _, ok := state.(lyrics.NotFound); ok {
		Respond(w, r).Status(http.StatusUnprocessableEntity, resp)
		return
	}
	Respond(w, r).JSON(resp)
}

// newActiveResponse reports what is active in doc at timeMs
func newActiveResponse(doc *lyrics.Lyrics, timeMs int64) ActiveResponse {
	cursor := doc.Locate(timeMs)
	resp := ActiveResponse{
		TimeMs:    timeMs,
		LineIndex: cursor.LineIndex,
		WordIndex: cursor.WordIndex,
	}
	if line, ok := cursor.Line(doc); ok {
		resp.Line = line
	}
	if word, ok := cursor.Word(doc); ok {
		resp.Word = word
	}
	return resp
}

// activeLyrics answers a cursor query against a document supplied by the client
func activeLyrics(w http.ResponseWriter, r *http.Request) {
	var req ActiveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		Respond(w, r).Error(http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if req.Lyrics == nil {
		Respond(w, r).Error(http.StatusBadRequest, "lyrics is required")
		return
	}

	Respond(w, r).JSON(newActiveResponse(req.Lyrics, req.TimeMs))
}

func getStats(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	snapshot := stats.Get().Snapshot()

	numKeys, sizeInKB := lyricsCache.Stats()
	snapshot["cache_storage"] = map[string]interface{}{
		"backend": conf.Configuration.CacheBackend,
		"keys":    numKeys,
		"size_kb": sizeInKB,
		"size_mb": float64(sizeInKB) / 1024,
	}

	snapshot["active_sessions"] = sessionManager.Count()
	snapshot["rate_limited_clients"] = rateLimiter.Size()

	snapshot["circuit_breaker"] = remote.Default().Breaker().Status()

	Respond(w, r).JSON(snapshot)
}

func getHealthStatus(w http.ResponseWriter, r *http.Request) {
	breaker := remote.Default().Breaker().Status()

	health := map[string]interface{}{
		"status":          "ok",
		"providers":       conf.Providers(),
		"sessions":        sessionManager.Count(),
		"circuit_breaker": breaker.State,
	}

	if breaker.State == circuitbreaker.StateOpen {
		health["status"] = "degraded"
		health["circuit_breaker_retry_in"] = breaker.TimeUntilRetry
	}

	if _, missing := providerRegistry.Resolve(conf.Providers()); len(missing) > 0 {
		health["status"] = "degraded"
		health["unknown_providers"] = missing
	}

	if authorized(r) {
		health["registered_providers"] = providerRegistry.List()
		health["circuit_breaker_failures"] = breaker.Failures
	}

	Respond(w, r).JSON(health)
}

func getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	Respond(w, r).JSON(remote.Default().Breaker().Status())
}

func resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	breaker := remote.Default().Breaker()
	breaker.Reset()
	log.Infof("%s Circuit breaker reset via API", logcolors.CircuitBreakerPrefix(breaker.Name()))

	Respond(w, r).JSON(map[string]interface{}{
		"message": "Circuit breaker reset",
		"state":   breaker.State().String(),
	})
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		Respond(w, r).Error(http.StatusNotFound, "Not found. See / for available endpoints.")
		return
	}

	Respond(w, r).JSON(map[string]interface{}{
		"help": "Load time-synced lyrics and follow playback with sessions.",
		"endpoints": map[string]string{
			"GET /lyrics?s=&a=&al=&d=":     "Load lyrics for a song (d in seconds) or a local file (path=)",
			"POST /lyrics/parse?format=":   "Parse an uploaded TTML, LRC, SRT or VTT file",
			"POST /lyrics/active":          "Find the active line and word in a document at timeMs",
			"POST /sessions":               "Start a playback session for a song",
			"GET /sessions":                "List sessions (admin token)",
			"GET /sessions/{id}":           "Session state, clock and cursor",
			"DELETE /sessions/{id}":        "Close a session",
			"POST /sessions/{id}/position": "Update positionMs, playing or speed",
			"GET /sessions/{id}/active?t=": "Cursor at an arbitrary time",
			"PUT /sessions/{id}/song":      "Switch to another song",
			"GET /sessions/{id}/events":    "Server-sent cursor events",
			"GET /health":                  "Service health",
			"GET /stats":                   "Request counters (admin)",
			"GET /cache":                   "Cache dump (admin)",
			"POST /cache/backup":           "Back up the cache (admin)",
			"GET|DELETE /cache/backups":    "List or delete backups (admin)",
			"POST /cache/restore?backup=":  "Restore a backup (admin)",
			"POST /cache/clear?negative=":  "Clear the cache (admin)",
			"GET /circuit-breaker":         "Remote provider breaker (admin)",
			"POST /circuit-breaker/reset":  "Reset the breaker (admin)",
		},
		"formats": services.SupportedFormats,
	})
}
