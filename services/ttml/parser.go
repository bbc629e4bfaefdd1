package ttml

import (
	"encoding/xml"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"

	log "github.com/sirupsen/logrus"
)

const (
	TimingNone = "none"
	TimingLine = "line"
	TimingWord = "word"
)

// SourceName is stored in Lyrics.Source for documents built by this package
const SourceName = "ttml"

var tagRegex = regexp.MustCompile(`<[^>]+>`)

// ParseTime parses a TTML clock value to milliseconds.
// Accepts "h:mm:ss.fff", "m:ss.fff", "ss.fff" and offset values such as "12.3s" or "450ms".
func ParseTime(timeStr string) (int64, error) {
	timeStr = strings.TrimSpace(timeStr)
	if timeStr == "" {
		return 0, fmt.Errorf("empty time value")
	}

	if strings.HasSuffix(timeStr, "ms") {
		ms, err := strconv.ParseFloat(strings.TrimSuffix(timeStr, "ms"), 64)
		if err != nil {
			return 0, err
		}
		return int64(ms + 0.5), nil
	}
	timeStr = strings.TrimSuffix(timeStr, "s")

	parts := strings.Split(timeStr, ":")

	var hours, minutes, seconds float64
	var err error

	switch len(parts) {
	case 1:
		seconds, err = strconv.ParseFloat(parts[0], 64)
	case 2:
		minutes, err = strconv.ParseFloat(parts[0], 64)
		if err == nil {
			seconds, err = strconv.ParseFloat(parts[1], 64)
		}
	case 3:
		hours, err = strconv.ParseFloat(parts[0], 64)
		if err == nil {
			minutes, err = strconv.ParseFloat(parts[1], 64)
		}
		if err == nil {
			seconds, err = strconv.ParseFloat(parts[2], 64)
		}
	default:
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}
	if err != nil {
		return 0, err
	}

	totalSeconds := hours*3600 + minutes*60 + seconds
	if totalSeconds < 0 {
		return 0, fmt.Errorf("negative time value: %s", timeStr)
	}
	// Round rather than truncate so 1.001s does not become 1000ms
	return int64(totalSeconds*1000 + 0.5), nil
}

// Parse parses a TTML document into lyrics
func Parse(content string) (*lyrics.Lyrics, error) {
	doc, _, err := ParseWithTiming(content)
	return doc, err
}

// ParseWithTiming parses a TTML document and also reports its timing type (none, line or word)
func ParseWithTiming(content string) (*lyrics.Lyrics, string, error) {
	log.Debugf("%s Starting to parse TTML content (length: %d bytes)", logcolors.LogParserTTML, len(content))

	var ttml document
	if err := xml.Unmarshal([]byte(content), &ttml); err != nil {
		return nil, "", fmt.Errorf("failed to parse TTML XML: %w", err)
	}

	// Check both timing attributes (regular and itunes namespace)
	timingType := strings.ToLower(ttml.Timing)
	if timingType == "" {
		timingType = strings.ToLower(ttml.ITunesTiming)
	}
	if timingType == "" {
		timingType = TimingLine
	}

	var lines []lyrics.LyricLine
	for divIdx, div := range ttml.Body.Divs {
		log.Debugf("%s Processing div %d (songPart: %s) with %d paragraphs", logcolors.LogParserTTML, divIdx, div.SongPart, len(div.Paragraphs))

		for i, para := range div.Paragraphs {
			var (
				line lyrics.LyricLine
				ok   bool
			)
			switch {
			case timingType == TimingNone:
				line, ok = unsyncedLine(para)
			case len(para.Spans) > 0:
				line, ok = spanLine(para)
			default:
				line, ok = paragraphLine(para)
			}
			if !ok {
				log.Debugf("%s Skipping paragraph %d in div %d", logcolors.LogParserTTML, i, divIdx)
				continue
			}
			lines = append(lines, line)
		}
	}

	language := ttml.Lang
	if language == "" {
		language = ttml.Body.Lang
	}
	if language == "" {
		language = "en"
	}

	log.Infof("%s Extracted %d lines from TTML (type: %s)", logcolors.LogParserTTML, len(lines), timingType)

	return &lyrics.Lyrics{
		Title:    strings.TrimSpace(ttml.Title),
		Lines:    lines,
		Language: language,
		Source:   SourceName,
	}, timingType, nil
}

// paragraphText returns the visible text of a paragraph with markup removed and whitespace collapsed
func paragraphText(para paragraph) string {
	text := html.UnescapeString(tagRegex.ReplaceAllString(para.Inner, ""))
	return strings.Join(strings.Fields(text), " ")
}

func unsyncedLine(para paragraph) (lyrics.LyricLine, bool) {
	text := paragraphText(para)
	if text == "" {
		return lyrics.LyricLine{}, false
	}
	return lyrics.LyricLine{Text: text}, true
}

func paragraphLine(para paragraph) (lyrics.LyricLine, bool) {
	text := paragraphText(para)
	if text == "" {
		return lyrics.LyricLine{}, false
	}

	startMs, err := ParseTime(para.Begin)
	if err != nil {
		log.Warnf("%s Failed to parse line start time %q: %v", logcolors.LogParserTTML, para.Begin, err)
		return lyrics.LyricLine{}, false
	}
	endMs, err := ParseTime(para.End)
	if err != nil {
		log.Warnf("%s Failed to parse line end time %q: %v", logcolors.LogParserTTML, para.End, err)
		return lyrics.LyricLine{}, false
	}

	return lyrics.LyricLine{StartTimeMs: startMs, EndTimeMs: endMs, Text: text}, true
}

// spanLine builds a word-timed line. Each timed span becomes a word; text in
// the paragraph between spans (punctuation, brackets around background vocals)
// becomes a zero-duration word so the words still spell out the line.
func spanLine(para paragraph) (lyrics.LyricLine, bool) {
	fullText := paragraphText(para)

	var spans []span
	for _, sp := range para.Spans {
		if len(sp.Nested) > 0 && sp.Role == "x-bg" {
			spans = append(spans, sp.Nested...)
			continue
		}
		spans = append(spans, sp)
	}

	var words []lyrics.LyricWord
	var earliest int64 = -1
	var latest int64
	textIdx := 0

	for _, sp := range spans {
		wordText := strings.TrimSpace(html.UnescapeString(sp.Text))
		if wordText == "" {
			continue
		}

		startMs, err := ParseTime(sp.Begin)
		if err != nil {
			log.Warnf("%s Failed to parse span start time %q: %v", logcolors.LogParserTTML, sp.Begin, err)
			continue
		}
		endMs, err := ParseTime(sp.End)
		if err != nil {
			log.Warnf("%s Failed to parse span end time %q: %v", logcolors.LogParserTTML, sp.End, err)
			continue
		}

		if earliest == -1 || startMs < earliest {
			earliest = startMs
		}
		if endMs > latest {
			latest = endMs
		}

		if next := strings.Index(fullText[textIdx:], wordText); next >= 0 {
			next += textIdx
			if gap := strings.TrimSpace(fullText[textIdx:next]); gap != "" {
				gapAt := startMs
				if len(words) > 0 {
					gapAt = words[len(words)-1].EndTimeMs
				}
				words = append(words, lyrics.LyricWord{StartTimeMs: gapAt, EndTimeMs: gapAt, Text: gap})
			}
			textIdx = next + len(wordText)
		} else {
			log.Debugf("%s Span text %q not found in paragraph text %q", logcolors.LogParserTTML, wordText, fullText)
		}

		words = append(words, lyrics.LyricWord{StartTimeMs: startMs, EndTimeMs: endMs, Text: wordText})
	}

	if len(words) == 0 {
		return lyrics.LyricLine{}, false
	}

	// Trailing text after the last span, usually a closing bracket
	if tail := strings.TrimSpace(fullText[textIdx:]); tail != "" {
		at := words[len(words)-1].EndTimeMs
		words = append(words, lyrics.LyricWord{StartTimeMs: at, EndTimeMs: at, Text: tail})
	}

	return lyrics.LyricLine{
		StartTimeMs: earliest,
		EndTimeMs:   latest,
		Text:        fullText,
		Words:       words,
	}, true
}
