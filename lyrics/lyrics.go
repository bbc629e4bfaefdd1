package lyrics

import (
	"errors"
	"strings"
)

const (
	// ExtendedWordThresholdMs is the duration above which a word counts as a held syllable
	ExtendedWordThresholdMs = 750

	// NoMatch is returned by index lookups when nothing is active
	NoMatch = -1
)

// ErrNotFound is returned by loaders when no lyrics exist for a song
var ErrNotFound = errors.New("lyrics not found")

// LyricWord is a timed span inside a line, used for word-by-word highlighting
type LyricWord struct {
	StartTimeMs int64  `json:"startTimeMs"`
	EndTimeMs   int64  `json:"endTimeMs"`
	Text        string `json:"text"`
}

// DurationMs returns the word's length in milliseconds
func (w LyricWord) DurationMs() int64 {
	return w.EndTimeMs - w.StartTimeMs
}

// IsExtended reports whether the word is held longer than ExtendedWordThresholdMs
func (w LyricWord) IsExtended() bool {
	return w.DurationMs() > ExtendedWordThresholdMs
}

// IsActiveAt reports whether timeMs falls inside the word's inclusive window
func (w LyricWord) IsActiveAt(timeMs int64) bool {
	return timeMs >= w.StartTimeMs && timeMs <= w.EndTimeMs
}

// LyricLine is one displayed line of lyrics.
// Words may be empty when the source only has line-level timing.
type LyricLine struct {
	StartTimeMs int64       `json:"startTimeMs"`
	EndTimeMs   int64       `json:"endTimeMs"`
	Text        string      `json:"text"`
	Words       []LyricWord `json:"words"`
}

// DurationMs returns the line's length in milliseconds
func (l *LyricLine) DurationMs() int64 {
	return l.EndTimeMs - l.StartTimeMs
}

// IsActiveAt reports whether timeMs falls inside the line's inclusive window
func (l *LyricLine) IsActiveAt(timeMs int64) bool {
	return timeMs >= l.StartTimeMs && timeMs <= l.EndTimeMs
}

// HasExtendedWords reports whether any word in the line is extended
func (l *LyricLine) HasExtendedWords() bool {
	for _, w := range l.Words {
		if w.IsExtended() {
			return true
		}
	}
	return false
}

// Lyrics is a complete lyric document for one song.
//
// A document is never modified after it has been built. Lines are kept in the
// order the parser produced them; queries rely on that order but do not check it.
type Lyrics struct {
	SongID       int64       `json:"songId"`
	Title        string      `json:"title"`
	Artist       string      `json:"artist"`
	Lines        []LyricLine `json:"lines"`
	Language     string      `json:"language"`
	Source       string      `json:"source"`
	IsTranslated bool        `json:"isTranslated"`
}

// IsEmpty reports whether the document has no lines or only blank ones
func (d *Lyrics) IsEmpty() bool {
	if d == nil {
		return true
	}
	for _, line := range d.Lines {
		if strings.TrimSpace(line.Text) != "" {
			return false
		}
	}
	return true
}

// SupportsWordByWord reports whether at least one line carries word timing
func (d *Lyrics) SupportsWordByWord() bool {
	if d == nil {
		return false
	}
	for _, line := range d.Lines {
		if len(line.Words) > 0 {
			return true
		}
	}
	return false
}

// TotalDurationMs returns the latest line end time, or 0 for an empty document
func (d *Lyrics) TotalDurationMs() int64 {
	if d == nil {
		return 0
	}
	var total int64
	for i, line := range d.Lines {
		if i == 0 || line.EndTimeMs > total {
			total = line.EndTimeMs
		}
	}
	return total
}
