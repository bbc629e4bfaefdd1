package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"

	log "github.com/sirupsen/logrus"
)

// FetchFirst asks each named provider in turn and returns the first non-empty
// document along with the provider that produced it.
//
// When every provider reports not found the error wraps lyrics.ErrNotFound.
// When at least one provider failed outright and none succeeded, the first
// failure is returned as a *ProviderError so callers can tell an outage from
// a song that simply has no lyrics.
func FetchFirst(ctx context.Context, r *Registry, names []string, req Request) (*lyrics.Lyrics, string, error) {
	chain, missing := r.Resolve(names)
	if len(missing) > 0 {
		log.Warnf("%s Skipping unregistered providers %v", logcolors.LogFallback, missing)
	}

	var firstErr error
	tried := make([]string, 0, len(chain))

	for _, p := range chain {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		name := p.Name()
		tried = append(tried, name)

		doc, err := p.FetchLyrics(ctx, req)
		switch {
		case err == nil && !doc.IsEmpty():
			fillFromRequest(doc, req)
			log.Infof("%s %s found lyrics for %s (%d lines)", logcolors.LogSuccess, name, req, len(doc.Lines))
			return doc, name, nil
		case err == nil, errors.Is(err, lyrics.ErrNotFound):
			log.Debugf("%s %s has no lyrics for %s", logcolors.LogFallback, name, req)
		default:
			log.Warnf("%s %s failed for %s: %v", logcolors.LogFallback, name, req, err)
			if firstErr == nil {
				var pe *ProviderError
				if errors.As(err, &pe) {
					firstErr = pe
				} else {
					firstErr = NewProviderError(name, "fetch failed", err)
				}
			}
		}
	}

	if firstErr != nil {
		return nil, "", firstErr
	}
	return nil, "", fmt.Errorf("%w: tried [%s]", lyrics.ErrNotFound, strings.Join(tried, ", "))
}

// fillFromRequest copies song identity onto a freshly built document
// before it is shared with any reader.
func fillFromRequest(doc *lyrics.Lyrics, req Request) {
	if doc.SongID == 0 {
		doc.SongID = req.SongID
	}
	if doc.Title == "" {
		doc.Title = req.Title
	}
	if doc.Artist == "" {
		doc.Artist = req.Artist
	}
}
