package lyrics

// Cursor is the result of locating a playback position inside a document
type Cursor struct {
	LineIndex int `json:"lineIndex"`
	WordIndex int `json:"wordIndex"`
}

// NoCursor is the cursor for a position where no line is active
var NoCursor = Cursor{LineIndex: NoMatch, WordIndex: NoMatch}

// ActiveLineIndex returns the index of the first line whose window contains timeMs,
// or NoMatch. Overlapping lines resolve to the earliest one in document order.
func (d *Lyrics) ActiveLineIndex(timeMs int64) int {
	if d == nil {
		return NoMatch
	}
	for i := range d.Lines {
		if d.Lines[i].IsActiveAt(timeMs) {
			return i
		}
	}
	return NoMatch
}

// ActiveLine returns the active line at timeMs, if any
func (d *Lyrics) ActiveLine(timeMs int64) (*LyricLine, bool) {
	idx := d.ActiveLineIndex(timeMs)
	if idx == NoMatch {
		return nil, false
	}
	return &d.Lines[idx], true
}

// ActiveWordIndex returns the index of the first word containing timeMs.
// A word is never active while its line is not, even if the word's own
// window would match.
func (l *LyricLine) ActiveWordIndex(timeMs int64) int {
	if l == nil || !l.IsActiveAt(timeMs) {
		return NoMatch
	}
	for i := range l.Words {
		if l.Words[i].IsActiveAt(timeMs) {
			return i
		}
	}
	return NoMatch
}

// Locate resolves both the active line and the active word at timeMs
func (d *Lyrics) Locate(timeMs int64) Cursor {
	idx := d.ActiveLineIndex(timeMs)
	if idx == NoMatch {
		return NoCursor
	}
	return Cursor{
		LineIndex: idx,
		WordIndex: d.Lines[idx].ActiveWordIndex(timeMs),
	}
}

// Line returns the line the cursor points at
func (c Cursor) Line(d *Lyrics) (*LyricLine, bool) {
	if d == nil || c.LineIndex < 0 || c.LineIndex >= len(d.Lines) {
		return nil, false
	}
	return &d.Lines[c.LineIndex], true
}

// Word returns the word the cursor points at
func (c Cursor) Word(d *Lyrics) (*LyricWord, bool) {
	line, ok := c.Line(d)
	if !ok || c.WordIndex < 0 || c.WordIndex >= len(line.Words) {
		return nil, false
	}
	return &line.Words[c.WordIndex], true
}
