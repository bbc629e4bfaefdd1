package ttml

import (
	"testing"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		name        string
		timeStr     string
		expectedMs  int64
		expectError bool
	}{
		{"Seconds only with decimal", "12.34", 12340, false},
		{"Seconds only integer", "5", 5000, false},
		{"Minutes and seconds", "1:30.5", 90500, false},
		{"Minutes and seconds no decimal", "2:15", 135000, false},
		{"Hours minutes and seconds", "1:02:30.250", 3750250, false},
		{"Zero time", "0:00:00", 0, false},
		{"Milliseconds precision", "0:00:00.123", 123, false},
		{"Large time value", "2:30:45.678", 9045678, false},
		{"Seconds offset", "12.3s", 12300, false},
		{"Milliseconds offset", "450ms", 450, false},
		{"Rounded not truncated", "1.001", 1001, false},
		{"Invalid format too many colons", "1:2:3:4", 0, true},
		{"Invalid format non-numeric", "abc", 0, true},
		{"Invalid minutes", "x:10", 0, true},
		{"Empty", "", 0, true},
		{"Negative", "-1.5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseTime(tt.timeStr)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for input %q, got nil", tt.timeStr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for input %q: %v", tt.timeStr, err)
			}
			if result != tt.expectedMs {
				t.Errorf("Expected %d ms for input %q, got %d ms", tt.expectedMs, tt.timeStr, result)
			}
		})
	}
}

func TestParse_UnsyncedLyrics(t *testing.T) {
	ttml := `<?xml version="1.0" encoding="UTF-8"?>
<tt xmlns="http://www.w3.org/ns/ttml" timing="none" xml:lang="fr">
	<body>
		<div>
			<p>First line of lyrics</p>
			<p>Second line of lyrics</p>
			<p>Third line with <span>HTML tags</span></p>
		</div>
	</body>
</tt>`

	doc, timingType, err := ParseWithTiming(ttml)
	if err != nil {
		t.Fatalf("Unexpected error parsing unsynced TTML: %v", err)
	}

	if timingType != TimingNone {
		t.Errorf("Expected timing type 'none', got %q", timingType)
	}
	if doc.Language != "fr" {
		t.Errorf("Expected language fr from xml:lang, got %q", doc.Language)
	}

	expectedLines := []string{
		"First line of lyrics",
		"Second line of lyrics",
		"Third line with HTML tags",
	}
	if len(doc.Lines) != len(expectedLines) {
		t.Fatalf("Expected %d lines, got %d", len(expectedLines), len(doc.Lines))
	}

	for i, expectedText := range expectedLines {
		line := doc.Lines[i]
		if line.Text != expectedText {
			t.Errorf("Line %d: expected %q, got %q", i, expectedText, line.Text)
		}
		if line.StartTimeMs != 0 || line.EndTimeMs != 0 {
			t.Errorf("Line %d: expected zero window, got [%d, %d]", i, line.StartTimeMs, line.EndTimeMs)
		}
		if len(line.Words) != 0 {
			t.Errorf("Line %d: expected no words, got %d", i, len(line.Words))
		}
	}
	if doc.SupportsWordByWord() {
		t.Error("Unsynced lyrics must not support word-by-word")
	}
}

func TestParse_WordLevel(t *testing.T) {
	ttml := `<?xml version="1.0" encoding="UTF-8"?>
<tt xmlns="http://www.w3.org/ns/ttml" xmlns:itunes="http://music.apple.com/lyric-ttml-internal" itunes:timing="Word">
	<body>
		<div>
			<p begin="0:00:01.000" end="0:00:03.500"><span begin="0:00:01.000" end="0:00:01.500">Hello</span> <span begin="0:00:02.000" end="0:00:03.500">world</span></p>
		</div>
	</body>
</tt>`

	doc, timingType, err := ParseWithTiming(ttml)
	if err != nil {
		t.Fatalf("Unexpected error parsing word-level TTML: %v", err)
	}

	if timingType != TimingWord {
		t.Errorf("Expected timing type 'word', got %q", timingType)
	}
	if len(doc.Lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(doc.Lines))
	}

	line := doc.Lines[0]
	if line.Text != "Hello world" {
		t.Errorf("Expected text 'Hello world', got %q", line.Text)
	}
	if line.StartTimeMs != 1000 || line.EndTimeMs != 3500 {
		t.Errorf("Expected window [1000, 3500], got [%d, %d]", line.StartTimeMs, line.EndTimeMs)
	}

	expectedWords := []struct {
		text       string
		start, end int64
	}{
		{"Hello", 1000, 1500},
		{"world", 2000, 3500},
	}
	if len(line.Words) != len(expectedWords) {
		t.Fatalf("Expected %d words, got %d: %+v", len(expectedWords), len(line.Words), line.Words)
	}
	for i, expected := range expectedWords {
		w := line.Words[i]
		if w.Text != expected.text || w.StartTimeMs != expected.start || w.EndTimeMs != expected.end {
			t.Errorf("Word %d: expected %+v, got %+v", i, expected, w)
		}
	}

	// The gap between the words belongs to no word
	if got := line.ActiveWordIndex(1750); got != -1 {
		t.Errorf("Expected no active word in the gap, got %d", got)
	}
	if !line.HasExtendedWords() {
		t.Error("Expected 'world' (1500ms) to be an extended word")
	}
}

func TestParse_LineLevel(t *testing.T) {
	ttml := `<?xml version="1.0" encoding="UTF-8"?>
<tt xmlns="http://www.w3.org/ns/ttml" timing="line">
	<body>
		<div>
			<p begin="10.5s" end="12s">Rock &amp; roll</p>
			<p begin="0:00:12.000" end="0:00:15.000">Second</p>
		</div>
	</body>
</tt>`

	doc, err := Parse(ttml)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(doc.Lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(doc.Lines))
	}
	if doc.Lines[0].Text != "Rock & roll" {
		t.Errorf("Expected entities decoded, got %q", doc.Lines[0].Text)
	}
	if doc.Lines[0].StartTimeMs != 10500 || doc.Lines[0].EndTimeMs != 12000 {
		t.Errorf("Expected window [10500, 12000], got [%d, %d]", doc.Lines[0].StartTimeMs, doc.Lines[0].EndTimeMs)
	}
	if got := doc.ActiveLineIndex(12000); got != 0 {
		t.Errorf("Expected shared boundary to resolve to the first line, got %d", got)
	}
}

func TestParse_NestedBackgroundVocals(t *testing.T) {
	ttml := `<?xml version="1.0" encoding="UTF-8"?>
<tt xmlns="http://www.w3.org/ns/ttml" timing="word">
	<body>
		<div>
			<p begin="0:00:01.000" end="0:00:03.000">
				<span begin="0:00:01.000" end="0:00:02.000">Main</span>
				<span role="x-bg">(<span begin="0:00:02.000" end="0:00:02.500">Nested</span>
					<span begin="0:00:02.500" end="0:00:03.000">Background</span>)</span>
			</p>
		</div>
	</body>
</tt>`

	doc, err := Parse(ttml)
	if err != nil {
		t.Fatalf("Unexpected error parsing TTML with nested background vocals: %v", err)
	}
	if len(doc.Lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(doc.Lines))
	}

	line := doc.Lines[0]
	if line.Text != "Main (Nested Background)" {
		t.Errorf("Expected full text, got %q", line.Text)
	}

	texts := []string{"Main", "(", "Nested", "Background", ")"}
	if len(line.Words) != len(texts) {
		t.Fatalf("Expected %d words, got %d: %+v", len(texts), len(line.Words), line.Words)
	}
	for i, text := range texts {
		if line.Words[i].Text != text {
			t.Errorf("Word %d: expected %q, got %q", i, text, line.Words[i].Text)
		}
	}

	// Punctuation between spans is an instantaneous word
	if line.Words[1].DurationMs() != 0 || line.Words[1].StartTimeMs != 2000 {
		t.Errorf("Expected zero-duration gap word at 2000, got %+v", line.Words[1])
	}
	if line.EndTimeMs != 3000 {
		t.Errorf("Expected line to end with the last background word, got %d", line.EndTimeMs)
	}
}

func TestParse_EmptyParagraphs(t *testing.T) {
	ttml := `<?xml version="1.0" encoding="UTF-8"?>
<tt xmlns="http://www.w3.org/ns/ttml" timing="word">
	<body>
		<div>
			<p begin="0:00:01.000" end="0:00:02.000"></p>
			<p begin="0:00:02.000" end="0:00:03.000">
				<span begin="0:00:02.000" end="0:00:03.000">Valid</span>
			</p>
		</div>
	</body>
</tt>`

	doc, err := Parse(ttml)
	if err != nil {
		t.Fatalf("Unexpected error parsing TTML with empty paragraphs: %v", err)
	}
	if len(doc.Lines) != 1 {
		t.Fatalf("Expected 1 line (empty paragraph skipped), got %d", len(doc.Lines))
	}
	if doc.Lines[0].Text != "Valid" {
		t.Errorf("Expected 'Valid', got %q", doc.Lines[0].Text)
	}
}

func TestParse_BadTimesSkipped(t *testing.T) {
	ttml := `<tt xmlns="http://www.w3.org/ns/ttml">
	<body><div>
		<p begin="soon" end="later">Broken</p>
		<p begin="1" end="2">Fine</p>
	</div></body>
</tt>`

	doc, err := Parse(ttml)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(doc.Lines) != 1 || doc.Lines[0].Text != "Fine" {
		t.Errorf("Expected only the well-timed line, got %+v", doc.Lines)
	}
}

func TestParse_InvalidXML(t *testing.T) {
	invalidTTML := `<?xml version="1.0" encoding="UTF-8"?>
<tt xmlns="http://www.w3.org/ns/ttml">
	<body>
		<div>
			<p>Unclosed paragraph
		</div>
	</body>`

	if _, err := Parse(invalidTTML); err == nil {
		t.Error("Expected error parsing invalid XML, got nil")
	}
}

func TestParse_DefaultsAndMetadata(t *testing.T) {
	ttml := `<?xml version="1.0" encoding="UTF-8"?>
<tt xmlns="http://www.w3.org/ns/ttml" xmlns:ttm="http://www.w3.org/ns/ttml#metadata">
	<head>
		<metadata>
			<ttm:title>Song Name</ttm:title>
			<ttm:agent type="person" id="v1"/>
		</metadata>
	</head>
	<body>
		<div>
			<p begin="0:00:01.000" end="0:00:02.000" agent="v1">Test line</p>
		</div>
	</body>
</tt>`

	doc, timingType, err := ParseWithTiming(ttml)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if timingType != TimingLine {
		t.Errorf("Expected default timing type 'line', got %q", timingType)
	}
	if doc.Language != "en" {
		t.Errorf("Expected default language en, got %q", doc.Language)
	}
	if doc.Title != "Song Name" {
		t.Errorf("Expected title from metadata, got %q", doc.Title)
	}
	if doc.Source != SourceName {
		t.Errorf("Expected source %q, got %q", SourceName, doc.Source)
	}
}
