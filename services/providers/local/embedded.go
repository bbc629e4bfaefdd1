package local

import (
	"fmt"
	"os"
	"strings"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services/lrc"

	"github.com/dhowden/tag"
	log "github.com/sirupsen/logrus"
)

// EmbeddedSource is stored in Lyrics.Source for lyrics read from audio tags
const EmbeddedSource = "embedded"

// ReadEmbedded reads lyrics stored in the audio file's tags (ID3 USLT, MP4 ©lyr, Vorbis LYRICS).
// Timed LRC text is parsed as LRC, anything else becomes unsynced lines.
func ReadEmbedded(path string) (*lyrics.Lyrics, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil || metadata == nil {
		return nil, fmt.Errorf("%s: no readable tags: %w", path, lyrics.ErrNotFound)
	}

	text := strings.TrimSpace(metadata.Lyrics())
	if text == "" {
		return nil, fmt.Errorf("%s: no embedded lyrics: %w", path, lyrics.ErrNotFound)
	}

	doc, err := FromTagText(text)
	if err != nil {
		return nil, err
	}

	doc.Title = strings.TrimSpace(metadata.Title())
	doc.Artist = strings.TrimSpace(metadata.Artist())

	log.Infof("%s Read %d embedded lines from %s (%s)", logcolors.LogEmbedded, len(doc.Lines), path, metadata.Format())
	return doc, nil
}

// FromTagText builds a document from the lyrics text of an audio tag
func FromTagText(text string) (*lyrics.Lyrics, error) {
	var doc *lyrics.Lyrics
	if lrc.IsSynced(text) {
		parsed, err := lrc.Parse(lrc.Normalize(text))
		if err != nil {
			return nil, err
		}
		doc = parsed
	} else {
		doc = lrc.ParsePlain(text)
	}

	if doc.IsEmpty() {
		return nil, lyrics.ErrNotFound
	}
	doc.Source = EmbeddedSource
	return doc, nil
}
