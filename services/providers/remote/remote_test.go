package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services/providers"
)

const sampleTTML = `<tt xmlns="http://www.w3.org/ns/ttml" timing="line" xml:lang="en"><body><div>` +
	`<p begin="1.0" end="2.0">First</p><p begin="2.0" end="3.0">Second</p></div></body></tt>`

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*RemoteProvider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "test", Threshold: 2, Cooldown: time.Hour})
	return NewProvider(server.URL, 2*time.Second, breaker), server
}

func TestFetchLyrics_TTML(t *testing.T) {
	var gotQuery string
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getLyrics" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ttml":` + quote(sampleTTML) + `}`))
	})

	doc, err := p.FetchLyrics(context.Background(), providers.Request{
		Title: "Song", Artist: "Band", Album: "Record", DurationMs: 215_400,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if gotQuery != "a=Band&al=Record&d=215&s=Song" {
		t.Errorf("Unexpected query %q", gotQuery)
	}
	if len(doc.Lines) != 2 || doc.Lines[1].Text != "Second" {
		t.Errorf("Unexpected document: %+v", doc.Lines)
	}
	if doc.Source != "remote:ttml" {
		t.Errorf("Expected source remote:ttml, got %q", doc.Source)
	}
}

func TestFetchLyrics_SyncedLRC(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"syncedLyrics":"[00:01.00]One\n[00:02.00]Two","plainLyrics":"One\nTwo"}`))
	})

	doc, err := p.FetchLyrics(context.Background(), providers.Request{Title: "Song"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Source != "remote:lrc" {
		t.Errorf("Expected synced lyrics to win, got source %q", doc.Source)
	}
	if doc.Lines[0].EndTimeMs != 2000 {
		t.Errorf("Expected timed lines, got %+v", doc.Lines[0])
	}
}

func TestFetchLyrics_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
	}{
		{"404", http.StatusNotFound, `{"error":"no lyrics"}`},
		{"Empty payload", http.StatusOK, `{}`},
		{"Blank lyrics", http.StatusOK, `{"plainLyrics":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := p.FetchLyrics(context.Background(), providers.Request{Title: "Song"})
			if !errors.Is(err, lyrics.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
			if p.Breaker().Failures() != 0 {
				t.Error("Not found must not count against the breaker")
			}
		})
	}
}

func TestFetchLyrics_Disabled(t *testing.T) {
	p := NewProvider("", 0, nil)
	if _, err := p.FetchLyrics(context.Background(), providers.Request{Title: "Song"}); !errors.Is(err, lyrics.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for disabled provider, got %v", err)
	}
}

func TestFetchLyrics_BreakerOpens(t *testing.T) {
	var calls int32
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	req := providers.Request{Title: "Song"}
	for i := 0; i < 2; i++ {
		_, err := p.FetchLyrics(context.Background(), req)
		var pe *providers.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("Expected ProviderError, got %v", err)
		}
		if !errors.Is(err, ErrUpstream) {
			t.Errorf("Expected ErrUpstream, got %v", err)
		}
	}

	if !p.Breaker().IsOpen() {
		t.Fatal("Expected breaker to be open")
	}

	_, err := p.FetchLyrics(context.Background(), req)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected no upstream call while open, got %d calls", got)
	}
}

func TestFetchLyrics_ClientErrorDoesNotTrip(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	for i := 0; i < 3; i++ {
		if _, err := p.FetchLyrics(context.Background(), providers.Request{Title: "Song"}); err == nil {
			t.Fatal("Expected error for 400")
		}
	}
	if p.Breaker().IsOpen() {
		t.Error("4xx responses must not open the breaker")
	}
}

func TestFetchLyrics_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.FetchLyrics(ctx, providers.Request{Title: "Song"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if p.Breaker().Failures() != 0 {
		t.Error("Caller cancellation must not count against the breaker")
	}
}

func TestDecode_Instrumental(t *testing.T) {
	doc, err := Decode(&Response{Instrumental: true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Lines[0].Text != "[Instrumental Only]" {
		t.Errorf("Unexpected instrumental line %q", doc.Lines[0].Text)
	}
}

func TestDecode_BadTTML(t *testing.T) {
	_, err := Decode(&Response{TTML: "<tt><body>"})
	var pe *providers.ProviderError
	if !errors.As(err, &pe) {
		t.Errorf("Expected ProviderError, got %v", err)
	}
}

func quote(s string) string {
	out := []byte{'"'}
	for _, r := range s {
		switch r {
		case '"':
			out = append(out, '\\', '"')
		case '\\':
			out = append(out, '\\', '\\')
		default:
			out = append(out, string(r)...)
		}
	}
	return string(append(out, '"'))
}
