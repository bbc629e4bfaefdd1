package lyrics

import "fmt"

// Issue kinds found by Diagnose
const (
	IssueReversedLine  = "reversed_line"
	IssueReversedWord  = "reversed_word"
	IssueOverlap       = "overlapping_lines"
	IssueUnordered     = "unordered_lines"
	IssueWordOutside   = "word_outside_line"
	IssueUnorderedWord = "unordered_words"
)

// Issue describes suspicious timing in a document
type Issue struct {
	Kind      string `json:"kind"`
	LineIndex int    `json:"lineIndex"`
	WordIndex int    `json:"wordIndex"`
	Message   string `json:"message"`
}

// Diagnose reports timing problems without changing the document.
// Queries stay well defined on malformed input, so these are warnings only.
func (d *Lyrics) Diagnose() []Issue {
	if d == nil {
		return nil
	}

	var issues []Issue
	for i := range d.Lines {
		line := &d.Lines[i]
		if line.EndTimeMs < line.StartTimeMs {
			issues = append(issues, Issue{
				Kind:      IssueReversedLine,
				LineIndex: i,
				WordIndex: NoMatch,
				Message:   fmt.Sprintf("line ends at %dms before it starts at %dms", line.EndTimeMs, line.StartTimeMs),
			})
		}

		if i > 0 {
			prev := &d.Lines[i-1]
			if line.StartTimeMs < prev.StartTimeMs {
				issues = append(issues, Issue{
					Kind:      IssueUnordered,
					LineIndex: i,
					WordIndex: NoMatch,
					Message:   fmt.Sprintf("line starts at %dms, before previous line at %dms", line.StartTimeMs, prev.StartTimeMs),
				})
			} else if line.StartTimeMs < prev.EndTimeMs {
				issues = append(issues, Issue{
					Kind:      IssueOverlap,
					LineIndex: i,
					WordIndex: NoMatch,
					Message:   fmt.Sprintf("line starts at %dms while previous line runs until %dms", line.StartTimeMs, prev.EndTimeMs),
				})
			}
		}

		for j, w := range line.Words {
			if w.EndTimeMs < w.StartTimeMs {
				issues = append(issues, Issue{
					Kind:      IssueReversedWord,
					LineIndex: i,
					WordIndex: j,
					Message:   fmt.Sprintf("word %q ends before it starts", w.Text),
				})
			}
			if w.StartTimeMs < line.StartTimeMs || w.EndTimeMs > line.EndTimeMs {
				issues = append(issues, Issue{
					Kind:      IssueWordOutside,
					LineIndex: i,
					WordIndex: j,
					Message:   fmt.Sprintf("word %q [%d-%d] is outside line [%d-%d]", w.Text, w.StartTimeMs, w.EndTimeMs, line.StartTimeMs, line.EndTimeMs),
				})
			}
			if j > 0 && w.StartTimeMs < line.Words[j-1].StartTimeMs {
				issues = append(issues, Issue{
					Kind:      IssueUnorderedWord,
					LineIndex: i,
					WordIndex: j,
					Message:   fmt.Sprintf("word %q starts before the previous word", w.Text),
				})
			}
		}
	}
	return issues
}
