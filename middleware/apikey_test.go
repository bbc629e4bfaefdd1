package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAPIKeyMiddleware(t *testing.T) {
	public := []string{"/health", "/"}
	publicPrefix := []string{"/health", "/lyrics/*"}

	tests := []struct {
		name     string
		apiKey   string
		required bool
		public   []string
		path     string
		header   string
		expected int
		bodyHas  string
	}{
		{"Not required", "secret", false, public, "/lyrics", "", http.StatusOK, ""},
		{"Required but unconfigured", "", true, public, "/lyrics", "", http.StatusOK, ""},
		{"Public path", "secret", true, public, "/health", "", http.StatusOK, ""},
		{"Public prefix", "secret", true, publicPrefix, "/lyrics/parse", "", http.StatusOK, ""},
		{"Prefix does not cover root", "secret", true, publicPrefix, "/lyrics", "", http.StatusUnauthorized, "API key required"},
		{"Missing key", "secret", true, public, "/sessions", "", http.StatusUnauthorized, "API key required"},
		{"Wrong key", "secret", true, public, "/sessions", "nope", http.StatusUnauthorized, "Invalid API key"},
		{"Valid key", "secret", true, public, "/sessions", "secret", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handler := APIKeyMiddleware(tt.apiKey, tt.required, tt.public)(next)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, rec.Code)
			}
			if tt.bodyHas != "" && !strings.Contains(rec.Body.String(), tt.bodyHas) {
				t.Errorf("Expected body to contain %q, got %q", tt.bodyHas, rec.Body.String())
			}
		})
	}
}

func TestValidAPIKey(t *testing.T) {
	if ValidAPIKey("", "") {
		t.Error("Empty keys must never match")
	}
	if ValidAPIKey("a", "") || ValidAPIKey("", "a") {
		t.Error("A missing side must never match")
	}
	if !ValidAPIKey("key", "key") {
		t.Error("Expected matching keys to be valid")
	}
}
