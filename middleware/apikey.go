package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// APIKeyHeader carries the client's API key
const APIKeyHeader = "X-API-Key"

// ValidAPIKey reports whether provided matches the configured key
func ValidAPIKey(provided, configured string) bool {
	if provided == "" || configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}

// isPublic matches exact paths and "prefix*" patterns
func isPublic(path string, exact map[string]bool, prefixes []string) bool {
	if exact[path] {
		return true
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// APIKeyMiddleware rejects requests without a valid X-API-Key when required is set.
// Paths in publicPaths always pass; a trailing * makes an entry a prefix match.
// A required key that was never configured lets everything through with a warning.
func APIKeyMiddleware(apiKey string, required bool, publicPaths []string) func(http.Handler) http.Handler {
	exact := make(map[string]bool)
	var prefixes []string
	for _, p := range publicPaths {
		if strings.HasSuffix(p, "*") {
			prefixes = append(prefixes, strings.TrimSuffix(p, "*"))
		} else {
			exact[p] = true
		}
	}

	if required && apiKey == "" {
		log.Warnf("%s API key required but API_KEY is empty, requests will not be checked", logcolors.LogAPIKey)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required || apiKey == "" || isPublic(r.URL.Path, exact, prefixes) {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get(APIKeyHeader)
			if ValidAPIKey(provided, apiKey) {
				next.ServeHTTP(w, r)
				return
			}

			msg := `{"error":"Invalid API key","message":"The provided API key is not valid"}`
			if provided == "" {
				msg = `{"error":"API key required","message":"Provide a valid API key via X-API-Key header"}`
			}
			log.Warnf("%s Rejected %s %s from %s", logcolors.LogAPIKey, r.Method, r.URL.Path, ClientIP(r.RemoteAddr))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(msg))
		})
	}
}
