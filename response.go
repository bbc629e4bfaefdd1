package main

import (
	"encoding/json"
	"net/http"
)

// APIResponse writes JSON replies carrying the service's standard headers:
// X-Cache-Status and X-Provider when set, X-RateLimit-Type from the request context.
type APIResponse struct {
	w     http.ResponseWriter
	r     *http.Request
	extra http.Header
}

// Respond starts a reply to r
func Respond(w http.ResponseWriter, r *http.Request) *APIResponse {
	return &APIResponse{w: w, r: r, extra: http.Header{}}
}

func (a *APIResponse) SetCacheStatus(status string) *APIResponse {
	return a.set("X-Cache-Status", status)
}

func (a *APIResponse) SetProvider(provider string) *APIResponse {
	return a.set("X-Provider", provider)
}

func (a *APIResponse) set(key, value string) *APIResponse {
	if value != "" {
		a.extra.Set(key, value)
	}
	return a
}

// Status writes the headers, the status code and data as JSON
func (a *APIResponse) Status(statusCode int, data interface{}) error {
	h := a.w.Header()
	h.Set("Content-Type", "application/json")
	for key, values := range a.extra {
		h[key] = values
	}
	if tier, _ := a.r.Context().Value(rateLimitTypeKey).(string); tier != "" {
		h.Set("X-RateLimit-Type", tier)
	}
	a.w.WriteHeader(statusCode)

	// lyric text keeps its & < > unescaped
	enc := json.NewEncoder(a.w)
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}

// JSON replies 200 OK
func (a *APIResponse) JSON(data interface{}) error {
	return a.Status(http.StatusOK, data)
}

// Error replies {"error": message}
func (a *APIResponse) Error(statusCode int, message string) error {
	return a.Status(statusCode, map[string]string{"error": message})
}
