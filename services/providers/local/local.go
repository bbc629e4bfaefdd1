package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services"
	"lyrics-sync-go/services/providers"

	log "github.com/sirupsen/logrus"
)

// ProviderName is the identifier for the local file provider
const ProviderName = "local"

// LocalProvider finds lyrics on disk: sidecar files next to the audio file,
// files in a shared lyrics directory, and lyrics embedded in audio tags.
type LocalProvider struct {
	lyricsDir string
}

// NewProvider creates a local provider. lyricsDir may be empty.
func NewProvider(lyricsDir string) *LocalProvider {
	return &LocalProvider{lyricsDir: lyricsDir}
}

// Name returns the provider identifier
func (p *LocalProvider) Name() string {
	return ProviderName
}

// FetchLyrics looks for lyrics in sidecar files first, then in embedded tags
func (p *LocalProvider) FetchLyrics(ctx context.Context, req providers.Request) (*lyrics.Lyrics, error) {
	var parseErr error

	for _, candidate := range p.Candidates(req) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := os.ReadFile(candidate)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Warnf("%s Cannot read %s: %v", logcolors.LogLocal, candidate, err)
			}
			continue
		}

		doc, err := services.ParseFile(candidate, string(content))
		if err != nil {
			log.Warnf("%s Failed to parse %s: %v", logcolors.LogLocal, candidate, err)
			if parseErr == nil {
				parseErr = providers.NewProviderError(ProviderName, "failed to parse "+filepath.Base(candidate), err)
			}
			continue
		}
		if doc.IsEmpty() {
			continue
		}

		log.Infof("%s Loaded %s (%d lines)", logcolors.LogLocal, candidate, len(doc.Lines))
		return doc, nil
	}

	if req.FilePath != "" && !services.IsLyricsFile(req.FilePath) {
		doc, err := ReadEmbedded(req.FilePath)
		switch {
		case err == nil:
			return doc, nil
		case !errors.Is(err, lyrics.ErrNotFound):
			log.Debugf("%s %v", logcolors.LogEmbedded, err)
		}
	}

	if parseErr != nil {
		return nil, parseErr
	}
	return nil, fmt.Errorf("%s: %w", ProviderName, lyrics.ErrNotFound)
}

// Candidates lists the files that may hold lyrics for req, in lookup order.
// A request for a lyrics file itself yields just that file.
func (p *LocalProvider) Candidates(req providers.Request) []string {
	var out []string

	if req.FilePath != "" {
		if services.IsLyricsFile(req.FilePath) {
			return []string{req.FilePath}
		}
		base := strings.TrimSuffix(req.FilePath, filepath.Ext(req.FilePath))
		for _, f := range services.SupportedFormats {
			out = append(out, base+"."+string(f))
		}
	}

	if p.lyricsDir != "" && req.Title != "" {
		names := []string{SafeFileName(req.Title)}
		if req.Artist != "" {
			names = append([]string{SafeFileName(req.Artist + " - " + req.Title)}, names...)
		}
		for _, name := range names {
			for _, f := range services.SupportedFormats {
				out = append(out, filepath.Join(p.lyricsDir, name+"."+string(f)))
			}
		}
	}

	return out
}

// SafeFileName replaces characters that are not allowed in file names
func SafeFileName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	return strings.TrimSpace(replacer.Replace(name))
}

// init registers the local provider with the global registry
func init() {
	providers.Register(NewProvider(config.Get().Configuration.LyricsDir))
}
