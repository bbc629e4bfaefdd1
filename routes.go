package main

import (
	"net/http"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes for the API
func setupRoutes(router *mux.Router) {
	// Lyrics lookups and stateless timeline queries
	router.HandleFunc("/lyrics", getLyrics).Methods(http.MethodGet)
	router.HandleFunc("/lyrics/parse", parseLyrics).Methods(http.MethodPost)
	router.HandleFunc("/lyrics/active", activeLyrics).Methods(http.MethodPost)

	// Playback sessions
	router.HandleFunc("/sessions", createSession).Methods(http.MethodPost)
	router.HandleFunc("/sessions", listSessions).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", getSession).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", deleteSession).Methods(http.MethodDelete)
	router.HandleFunc("/sessions/{id}/position", updatePosition).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/active", getSessionActive).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/song", changeSong).Methods(http.MethodPut)
	router.HandleFunc("/sessions/{id}/events", streamEvents).Methods(http.MethodGet)

	// Cache management endpoints
	router.HandleFunc("/cache", getCacheDump)
	router.HandleFunc("/cache/backup", backupCache)
	router.HandleFunc("/cache/backups", listBackups).Methods(http.MethodGet, http.MethodDelete)
	router.HandleFunc("/cache/restore", restoreCache)
	router.HandleFunc("/cache/clear", clearCache)

	// Health and stats endpoints
	router.HandleFunc("/health", getHealthStatus)
	router.HandleFunc("/stats", getStats)

	// Circuit breaker endpoints
	router.HandleFunc("/circuit-breaker", getCircuitBreakerStatus)
	router.HandleFunc("/circuit-breaker/reset", resetCircuitBreaker)

	// Help endpoint
	router.HandleFunc("/", helpHandler)
}
