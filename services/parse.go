package services

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services/lrc"
	"lyrics-sync-go/services/subtitle"
	"lyrics-sync-go/services/ttml"
)

// Format identifies a lyric file format
type Format string

const (
	FormatTTML Format = "ttml"
	FormatLRC  Format = "lrc"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
)

// SupportedFormats lists formats in sidecar lookup preference order
var SupportedFormats = []Format{FormatTTML, FormatLRC, FormatSRT, FormatVTT}

var (
	ErrUnsupportedFormat = errors.New("unsupported lyrics format")
	ErrEmptyContent      = errors.New("empty lyrics content")
)

var lrcSniffRegex = regexp.MustCompile(`(?m)^\s*\[\d{1,3}:\d{2}`)

// ParseFormat converts a user supplied name ("LRC", ".vtt") to a Format
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")))
	for _, supported := range SupportedFormats {
		if f == supported {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// FormatFromPath returns the format implied by a file extension
func FormatFromPath(path string) (Format, bool) {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return "", false
	}
	return f, true
}

// IsLyricsFile reports whether path has a supported lyrics extension
func IsLyricsFile(path string) bool {
	_, ok := FormatFromPath(path)
	return ok
}

// DetectFormat sniffs the format of raw lyric content
func DetectFormat(content string) (Format, bool) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(content, "\ufeff"))
	switch {
	case trimmed == "":
		return "", false
	case strings.HasPrefix(trimmed, "WEBVTT"):
		return FormatVTT, true
	case strings.HasPrefix(trimmed, "<?xml") || strings.Contains(trimmed, "<tt"):
		return FormatTTML, true
	case strings.Contains(trimmed, "-->"):
		return FormatSRT, true
	case lrcSniffRegex.MatchString(trimmed):
		return FormatLRC, true
	}
	return "", false
}

// Parse parses content in the given format
func Parse(format Format, content string) (*lyrics.Lyrics, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	switch format {
	case FormatTTML:
		return ttml.Parse(content)
	case FormatLRC:
		return lrc.Parse(lrc.Normalize(content))
	case FormatSRT:
		return subtitle.ParseSRT(content)
	case FormatVTT:
		return subtitle.ParseVTT(content)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// ParseAuto detects the format and parses content. Untimed text that matches
// no format is returned as unsynced lines.
func ParseAuto(content string) (*lyrics.Lyrics, Format, error) {
	if strings.TrimSpace(content) == "" {
		return nil, "", ErrEmptyContent
	}

	format, ok := DetectFormat(content)
	if !ok {
		return lrc.ParsePlain(content), "", nil
	}

	doc, err := Parse(format, content)
	return doc, format, err
}

// ParseFile parses content using the format implied by path, falling back to sniffing
func ParseFile(path, content string) (*lyrics.Lyrics, error) {
	if format, ok := FormatFromPath(path); ok {
		return Parse(format, content)
	}
	doc, _, err := ParseAuto(content)
	return doc, err
}
