package providers

import (
	"context"
	"errors"
	"testing"

	"lyrics-sync-go/lyrics"
)

func TestFetchFirst(t *testing.T) {
	req := Request{SongID: 7, Title: "Song", Artist: "Band"}

	t.Run("First document wins", func(t *testing.T) {
		r := NewRegistry()
		first := newMockProvider("local")
		second := newMockProvider("remote")
		r.Register(first)
		r.Register(second)

		doc, name, err := FetchFirst(context.Background(), r, []string{"local", "remote"}, req)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if name != "local" {
			t.Errorf("Expected local to win, got %q", name)
		}
		if second.calls != 0 {
			t.Errorf("Expected remote not to be asked, got %d calls", second.calls)
		}
		if doc.SongID != 7 || doc.Title != "Song" || doc.Artist != "Band" {
			t.Errorf("Expected song identity to be filled in, got %+v", doc)
		}
	})

	t.Run("Falls through not found", func(t *testing.T) {
		r := NewRegistry()
		r.Register(notFoundProvider("local"))
		r.Register(newMockProvider("remote"))

		_, name, err := FetchFirst(context.Background(), r, []string{"local", "remote"}, req)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if name != "remote" {
			t.Errorf("Expected remote, got %q", name)
		}
	})

	t.Run("Empty document counts as not found", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockProvider{name: "local", doc: &lyrics.Lyrics{Lines: []lyrics.LyricLine{{Text: "  "}}}})

		_, _, err := FetchFirst(context.Background(), r, []string{"local"}, req)
		if !errors.Is(err, lyrics.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("All not found", func(t *testing.T) {
		r := NewRegistry()
		r.Register(notFoundProvider("local"))
		r.Register(notFoundProvider("remote"))

		_, _, err := FetchFirst(context.Background(), r, []string{"local", "remote"}, req)
		if !errors.Is(err, lyrics.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Failure is reported when nothing succeeds", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockProvider{name: "remote", err: errors.New("connection refused")})
		r.Register(notFoundProvider("local"))

		_, _, err := FetchFirst(context.Background(), r, []string{"remote", "local"}, req)
		var pe *ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("Expected ProviderError, got %v", err)
		}
		if pe.Provider != "remote" {
			t.Errorf("Expected remote failure, got %q", pe.Provider)
		}
		if errors.Is(err, lyrics.ErrNotFound) {
			t.Error("An outage must not look like a missing song")
		}
	})

	t.Run("Failure is ignored when a later provider succeeds", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockProvider{name: "remote", err: errors.New("timeout")})
		r.Register(newMockProvider("local"))

		_, name, err := FetchFirst(context.Background(), r, []string{"remote", "local"}, req)
		if err != nil || name != "local" {
			t.Errorf("Expected local success, got %q / %v", name, err)
		}
	})

	t.Run("Unknown providers are skipped", func(t *testing.T) {
		r := NewRegistry()
		r.Register(newMockProvider("local"))

		_, name, err := FetchFirst(context.Background(), r, []string{"missing", "local"}, req)
		if err != nil || name != "local" {
			t.Errorf("Expected local success, got %q / %v", name, err)
		}
	})

	t.Run("Cancelled context", func(t *testing.T) {
		r := NewRegistry()
		p := newMockProvider("local")
		r.Register(p)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := FetchFirst(ctx, r, []string{"local"}, req)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
		if p.calls != 0 {
			t.Error("Expected no provider calls after cancellation")
		}
	})
}
