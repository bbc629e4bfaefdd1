package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services/providers"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestCandidates(t *testing.T) {
	p := NewProvider("/lyrics")

	got := p.Candidates(providers.Request{Title: "Song", Artist: "AC/DC", FilePath: "/music/track.mp3"})
	expected := []string{
		"/music/track.ttml",
		"/music/track.lrc",
		"/music/track.srt",
		"/music/track.vtt",
		filepath.Join("/lyrics", "AC_DC - Song.ttml"),
		filepath.Join("/lyrics", "AC_DC - Song.lrc"),
		filepath.Join("/lyrics", "AC_DC - Song.srt"),
		filepath.Join("/lyrics", "AC_DC - Song.vtt"),
		filepath.Join("/lyrics", "Song.ttml"),
		filepath.Join("/lyrics", "Song.lrc"),
		filepath.Join("/lyrics", "Song.srt"),
		filepath.Join("/lyrics", "Song.vtt"),
	}

	if len(got) != len(expected) {
		t.Fatalf("Expected %d candidates, got %d: %v", len(expected), len(got), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Candidate %d: expected %q, got %q", i, expected[i], got[i])
		}
	}
}

func TestCandidates_LyricsFileDirectly(t *testing.T) {
	p := NewProvider("/lyrics")
	got := p.Candidates(providers.Request{FilePath: "/music/track.lrc", Title: "Song"})
	if len(got) != 1 || got[0] != "/music/track.lrc" {
		t.Errorf("Expected only the lyrics file itself, got %v", got)
	}
}

func TestFetchLyrics_SidecarPreference(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "track.mp3")
	writeFile(t, audio, "not really audio")
	writeFile(t, filepath.Join(dir, "track.lrc"), "[00:01.00]From LRC")
	writeFile(t, filepath.Join(dir, "track.srt"), "1\n00:00:01,000 --> 00:00:02,000\nFrom SRT")

	p := NewProvider("")
	doc, err := p.FetchLyrics(context.Background(), providers.Request{FilePath: audio})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Lines[0].Text != "From LRC" {
		t.Errorf("Expected LRC to be preferred over SRT, got %q", doc.Lines[0].Text)
	}
}

func TestFetchLyrics_LyricsDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Band - Song.vtt"), "WEBVTT\n\n00:01.000 --> 00:02.000\nShared dir")

	p := NewProvider(dir)
	doc, err := p.FetchLyrics(context.Background(), providers.Request{Title: "Song", Artist: "Band"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Source != "vtt" || doc.Lines[0].Text != "Shared dir" {
		t.Errorf("Unexpected document: %+v", doc)
	}
}

func TestFetchLyrics_NotFound(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "track.mp3")
	writeFile(t, audio, "no tags here")

	p := NewProvider(dir)
	_, err := p.FetchLyrics(context.Background(), providers.Request{Title: "Missing", FilePath: audio})
	if !errors.Is(err, lyrics.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFetchLyrics_BrokenSidecar(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "track.mp3")
	writeFile(t, audio, "no tags here")
	writeFile(t, filepath.Join(dir, "track.ttml"), "<tt><body><div><p>unclosed")

	p := NewProvider("")
	_, err := p.FetchLyrics(context.Background(), providers.Request{FilePath: audio})

	var pe *providers.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProviderError for malformed sidecar, got %v", err)
	}
	if pe.Provider != ProviderName {
		t.Errorf("Expected provider %q, got %q", ProviderName, pe.Provider)
	}
}

func TestFetchLyrics_BrokenSidecarFallsThrough(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "track.mp3")
	writeFile(t, audio, "no tags here")
	writeFile(t, filepath.Join(dir, "track.ttml"), "<tt><body><div><p>unclosed")
	writeFile(t, filepath.Join(dir, "track.lrc"), "[00:01.00]Backup")

	p := NewProvider("")
	doc, err := p.FetchLyrics(context.Background(), providers.Request{FilePath: audio})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Lines[0].Text != "Backup" {
		t.Errorf("Expected the LRC sidecar, got %q", doc.Lines[0].Text)
	}
}

func TestReadEmbedded_NoTags(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "track.mp3")
	writeFile(t, audio, "plain bytes without any tag header")

	if _, err := ReadEmbedded(audio); !errors.Is(err, lyrics.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFromTagText(t *testing.T) {
	t.Run("Synced text", func(t *testing.T) {
		doc, err := FromTagText("[00:01.00]One\n[00:02.00]Two")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if doc.Source != EmbeddedSource {
			t.Errorf("Expected source %q, got %q", EmbeddedSource, doc.Source)
		}
		if doc.Lines[1].StartTimeMs != 2000 {
			t.Errorf("Expected timed lines, got %+v", doc.Lines)
		}
	})

	t.Run("Plain text", func(t *testing.T) {
		doc, err := FromTagText("One\nTwo\nThree")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(doc.Lines) != 3 {
			t.Errorf("Expected 3 lines, got %d", len(doc.Lines))
		}
		if doc.ActiveLineIndex(5000) != lyrics.NoMatch {
			t.Error("Unsynced lines should not be active after time zero")
		}
	})
}

func TestSafeFileName(t *testing.T) {
	if got := SafeFileName(` AC/DC: "Live"? `); got != `AC_DC_ _Live__` {
		t.Errorf("SafeFileName() = %q", got)
	}
}

func TestProviderIdentity(t *testing.T) {
	var _ providers.Provider = NewProvider("")

	p := NewProvider("")
	if p.Name() != "local" {
		t.Errorf("Unexpected name %q", p.Name())
	}
	if !providers.GetRegistry().Has(ProviderName) {
		t.Error("Expected local provider to register itself")
	}
}
