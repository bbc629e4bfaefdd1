package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"lyrics-sync-go/lyrics"
)

// Provider is a source of lyric documents
type Provider interface {
	// Name identifies the provider in PROVIDER_ORDER, logs and X-Provider
	Name() string

	// FetchLyrics loads the document for a song. A song without lyrics
	// yields an error wrapping lyrics.ErrNotFound.
	FetchLyrics(ctx context.Context, req Request) (*lyrics.Lyrics, error)
}

// ErrUnknownProvider is returned for names nobody registered
var ErrUnknownProvider = errors.New("unknown provider")

// Registry maps provider names to providers
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

var global = NewRegistry()

// GetRegistry returns the registry providers add themselves to from init
func GetRegistry() *Registry {
	return global
}

// Register adds p, replacing any provider with the same name
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	p, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// List returns registered names in alphabetical order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up names in order. Unknown names are returned separately
// rather than failing the whole lookup.
func (r *Registry) Resolve(names []string) (found []Provider, missing []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range names {
		if p, ok := r.byName[name]; ok {
			found = append(found, p)
		} else {
			missing = append(missing, name)
		}
	}
	return found, missing
}

// Register adds p to the global registry
func Register(p Provider) {
	global.Register(p)
}
