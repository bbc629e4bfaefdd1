package lrc

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"lyrics-sync-go/lyrics"
)

var (
	// Line timestamp: [mm:ss.xx], [mm:ss.xxx], [mm:ss:xx] or [mm:ss]
	lrcTimeRegex = regexp.MustCompile(`\[(\d{1,3}):(\d{2})(?:[\.:](\d{1,3}))?\]`)

	// Enhanced LRC word timestamp: <mm:ss.xx>
	wordTimeRegex = regexp.MustCompile(`<(\d{1,3}):(\d{2})(?:[\.:](\d{1,3}))?>`)

	// Metadata tags pattern: [tag:value]
	metadataRegex = regexp.MustCompile(`^\[([a-zA-Z]+):([^\]]*)\]$`)
)

// DefaultLastLineMs is the duration given to the final line, which has no successor to end it
const DefaultLastLineMs = 5000

// SourceName is stored in Lyrics.Source for documents built by this package
const SourceName = "lrc"

var ErrNoTimedLines = errors.New("lrc: no timed lines")

type entry struct {
	startMs int64
	text    string
	words   []stamp
}

type stamp struct {
	startMs int64
	text    string
}

// Parse parses LRC (including enhanced, word-timed LRC) into a lyric document
func Parse(content string) (*lyrics.Lyrics, error) {
	lines, metadata, err := ParseLRC(content)
	if err != nil {
		return nil, err
	}

	return &lyrics.Lyrics{
		Title:    metadata["title"],
		Artist:   metadata["artist"],
		Lines:    lines,
		Language: DetectLanguage(metadata, content),
		Source:   SourceName,
	}, nil
}

// ParseLRC parses LRC format lyrics into lines plus the metadata tags found.
// Lines are returned sorted by start time. A line ends where the next timed
// line starts; the last line gets DefaultLastLineMs.
func ParseLRC(content string) ([]lyrics.LyricLine, map[string]string, error) {
	metadata := make(map[string]string)
	var entries []entry

	content = strings.TrimPrefix(content, "\ufeff")
	for _, rawLine := range strings.Split(content, "\n") {
		rawLine = strings.TrimSpace(rawLine)
		if rawLine == "" {
			continue
		}

		// Check for metadata tags like [ar:Artist], [ti:Title], etc.
		if matches := metadataRegex.FindStringSubmatch(rawLine); len(matches) == 3 {
			value := strings.TrimSpace(matches[2])
			switch strings.ToLower(matches[1]) {
			case "ar":
				metadata["artist"] = value
			case "ti":
				metadata["title"] = value
			case "al":
				metadata["album"] = value
			case "by":
				metadata["creator"] = value
			case "offset":
				metadata["offset"] = value
			case "la", "lang", "language":
				metadata["language"] = value
			}
			continue
		}

		// Find all timestamps at the beginning
		var timestamps []int64
		text := rawLine
		for {
			match := lrcTimeRegex.FindStringSubmatchIndex(text)
			if match == nil || match[0] != 0 {
				break
			}
			timestamps = append(timestamps, stampMs(text, match))
			text = text[match[1]:]
		}
		if len(timestamps) == 0 {
			continue
		}

		text, words := splitWords(strings.TrimSpace(text))

		// Multiple leading timestamps repeat the line at each time
		for _, startMs := range timestamps {
			entries = append(entries, entry{startMs: startMs, text: text, words: words})
		}
	}

	if len(entries) == 0 {
		return nil, metadata, ErrNoTimedLines
	}

	offset, _ := strconv.ParseInt(strings.TrimPrefix(metadata["offset"], "+"), 10, 64)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].startMs < entries[j].startMs
	})

	lines := make([]lyrics.LyricLine, 0, len(entries))
	for i, e := range entries {
		// Timed lines without text only mark where the previous line ends
		if e.text == "" {
			continue
		}

		endMs := e.startMs + DefaultLastLineMs
		for j := i + 1; j < len(entries); j++ {
			if entries[j].startMs > e.startMs {
				endMs = entries[j].startMs
				break
			}
		}

		line := lyrics.LyricLine{
			StartTimeMs: shift(e.startMs, offset),
			EndTimeMs:   shift(endMs, offset),
			Text:        e.text,
		}
		for wi, w := range e.words {
			wordEnd := endMs
			if wi+1 < len(e.words) {
				wordEnd = e.words[wi+1].startMs
			}
			if w.text == "" {
				continue
			}
			line.Words = append(line.Words, lyrics.LyricWord{
				StartTimeMs: shift(w.startMs, offset),
				EndTimeMs:   shift(wordEnd, offset),
				Text:        w.text,
			})
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return nil, metadata, ErrNoTimedLines
	}

	return lines, metadata, nil
}

// splitWords extracts enhanced LRC word stamps. It returns the plain line
// text and the stamped segments; segments is nil when the line has none.
func splitWords(text string) (string, []stamp) {
	locs := wordTimeRegex.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, nil
	}

	var words []stamp
	var plain []string
	for i, loc := range locs {
		segEnd := len(text)
		if i+1 < len(locs) {
			segEnd = locs[i+1][0]
		}
		segment := strings.TrimSpace(text[loc[1]:segEnd])
		words = append(words, stamp{startMs: stampMs(text, loc), text: segment})
		if segment != "" {
			plain = append(plain, segment)
		}
	}

	// Text before the first stamp has no timing of its own
	if prefix := strings.TrimSpace(text[:locs[0][0]]); prefix != "" {
		plain = append([]string{prefix}, plain...)
	}

	return strings.Join(plain, " "), words
}

// stampMs converts a submatch index slice of a time regex into milliseconds
func stampMs(s string, loc []int) int64 {
	minutes, _ := strconv.ParseInt(s[loc[2]:loc[3]], 10, 64)
	seconds, _ := strconv.ParseInt(s[loc[4]:loc[5]], 10, 64)

	var millis int64
	if loc[6] >= 0 {
		frac := s[loc[6]:loc[7]]
		millis, _ = strconv.ParseInt(frac, 10, 64)
		switch len(frac) {
		case 1:
			millis *= 100
		case 2:
			millis *= 10 // Convert centiseconds to milliseconds
		}
	}

	return minutes*60*1000 + seconds*1000 + millis
}

// shift applies the [offset:] tag. A positive offset makes lyrics appear sooner.
func shift(ms, offset int64) int64 {
	ms -= offset
	if ms < 0 {
		return 0
	}
	return ms
}

// IsSynced reports whether content carries at least one LRC line timestamp
func IsSynced(content string) bool {
	for _, rawLine := range strings.Split(content, "\n") {
		if loc := lrcTimeRegex.FindStringIndex(strings.TrimSpace(rawLine)); loc != nil && loc[0] == 0 {
			return true
		}
	}
	return false
}

// ParsePlain turns unsynced text into zero-window lines at time zero
func ParsePlain(content string) *lyrics.Lyrics {
	var lines []lyrics.LyricLine
	content = strings.TrimPrefix(content, "\ufeff")
	for _, rawLine := range strings.Split(content, "\n") {
		rawLine = strings.TrimSpace(rawLine)
		if rawLine == "" {
			continue
		}
		lines = append(lines, lyrics.LyricLine{Text: rawLine})
	}

	return &lyrics.Lyrics{
		Lines:    lines,
		Language: DetectLanguage(nil, content),
		Source:   "plain",
	}
}
