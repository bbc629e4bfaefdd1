// Package subtitle parses SRT and WebVTT cues into lyric lines.
package subtitle

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"

	log "github.com/sirupsen/logrus"
)

var (
	// 00:00:01,000 (SRT) or 00:01.000 / 00:00:01.000 (VTT)
	timestampRegex = regexp.MustCompile(`^(?:(\d+):)?(\d{1,2}):(\d{2})[,.](\d{1,3})$`)

	// VTT karaoke timestamps inside cue text: <00:01.500>
	inlineTimeRegex = regexp.MustCompile(`<((?:\d+:)?\d{1,2}:\d{2}[.,]\d{1,3})>`)

	// Formatting tags: <i>, </b>, <c.yellow>, <v Singer>, <font color="x">
	markupRegex = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
)

var ErrNoCues = errors.New("subtitle: no cues")

type cue struct {
	startMs int64
	endMs   int64
	text    string
}

// ParseSRT parses SubRip content
func ParseSRT(content string) (*lyrics.Lyrics, error) {
	return parse(content, "srt")
}

// ParseVTT parses WebVTT content. Inline timestamps in a cue split it into words.
func ParseVTT(content string) (*lyrics.Lyrics, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(strings.TrimSpace(content), "WEBVTT") {
		return nil, fmt.Errorf("subtitle: missing WEBVTT header")
	}
	return parse(content, "vtt")
}

func parse(content, source string) (*lyrics.Lyrics, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var lines []lyrics.LyricLine
	for _, block := range splitBlocks(content) {
		first := strings.TrimSpace(block[0])
		if strings.HasPrefix(first, "WEBVTT") || strings.HasPrefix(first, "NOTE") ||
			first == "STYLE" || first == "REGION" {
			continue
		}

		c, ok := parseCue(block)
		if !ok {
			log.Debugf("%s Skipping block without cue timing: %q", logcolors.LogParserSubtitle, first)
			continue
		}
		lines = append(lines, buildLine(c))
	}

	if len(lines) == 0 {
		return nil, ErrNoCues
	}

	log.Debugf("%s Parsed %d %s cues", logcolors.LogParserSubtitle, len(lines), source)

	return &lyrics.Lyrics{
		Lines:    lines,
		Language: "en",
		Source:   source,
	}, nil
}

// splitBlocks splits content on blank lines, dropping empty blocks
func splitBlocks(content string) [][]string {
	var blocks [][]string
	var current []string
	for _, raw := range strings.Split(content, "\n") {
		if strings.TrimSpace(raw) == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, raw)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

// parseCue finds the timing line of a block (after an optional identifier) and collects the text below it
func parseCue(block []string) (cue, bool) {
	for i, raw := range block {
		if !strings.Contains(raw, "-->") {
			continue
		}

		parts := strings.SplitN(raw, "-->", 2)
		startMs, err := parseTimestamp(parts[0])
		if err != nil {
			return cue{}, false
		}

		// VTT cue settings follow the end time
		endField := strings.Fields(parts[1])
		if len(endField) == 0 {
			return cue{}, false
		}
		endMs, err := parseTimestamp(endField[0])
		if err != nil {
			return cue{}, false
		}

		var text []string
		for _, t := range block[i+1:] {
			if t = strings.TrimSpace(t); t != "" {
				text = append(text, t)
			}
		}
		return cue{startMs: startMs, endMs: endMs, text: strings.Join(text, " ")}, true
	}
	return cue{}, false
}

func parseTimestamp(s string) (int64, error) {
	m := timestampRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	hours, _ := strconv.ParseInt(m[1], 10, 64)
	minutes, _ := strconv.ParseInt(m[2], 10, 64)
	seconds, _ := strconv.ParseInt(m[3], 10, 64)
	millis, _ := strconv.ParseInt(m[4], 10, 64)
	switch len(m[4]) {
	case 1:
		millis *= 100
	case 2:
		millis *= 10
	}

	return ((hours*60+minutes)*60+seconds)*1000 + millis, nil
}

func buildLine(c cue) lyrics.LyricLine {
	locs := inlineTimeRegex.FindAllStringSubmatchIndex(c.text, -1)
	if len(locs) == 0 {
		return lyrics.LyricLine{StartTimeMs: c.startMs, EndTimeMs: c.endMs, Text: cleanText(c.text)}
	}

	line := lyrics.LyricLine{StartTimeMs: c.startMs, EndTimeMs: c.endMs}

	// Text before the first inline stamp starts with the cue
	if lead := cleanText(c.text[:locs[0][0]]); lead != "" {
		line.Words = append(line.Words, lyrics.LyricWord{StartTimeMs: c.startMs, EndTimeMs: c.endMs, Text: lead})
	}

	for i, loc := range locs {
		at, err := parseTimestamp(c.text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		// The lead word ends where the first stamp begins
		if i == 0 && len(line.Words) == 1 {
			line.Words[0].EndTimeMs = at
		}

		segEnd := len(c.text)
		next := c.endMs
		if i+1 < len(locs) {
			segEnd = locs[i+1][0]
			if n, err := parseTimestamp(c.text[locs[i+1][2]:locs[i+1][3]]); err == nil {
				next = n
			}
		}

		if text := cleanText(c.text[loc[1]:segEnd]); text != "" {
			line.Words = append(line.Words, lyrics.LyricWord{StartTimeMs: at, EndTimeMs: next, Text: text})
		}
	}

	texts := make([]string, len(line.Words))
	for i, w := range line.Words {
		texts[i] = w.Text
	}
	line.Text = strings.Join(texts, " ")

	return line
}

// cleanText strips formatting tags and collapses whitespace
func cleanText(s string) string {
	s = inlineTimeRegex.ReplaceAllString(s, " ")
	s = markupRegex.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
