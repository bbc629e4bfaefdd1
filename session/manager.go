package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/providers"

	log "github.com/sirupsen/logrus"
)

// ManagerOptions configures a Manager
type ManagerOptions struct {
	Options

	// IdleTimeout closes sessions no client has touched for this long. Zero disables reaping.
	IdleTimeout time.Duration

	// ReapInterval is how often idle sessions are looked for. Defaults to a minute.
	ReapInterval time.Duration

	// OnClose is called after a session is closed through Close or by the reaper
	OnClose func(id string)
}

// Manager owns the live sessions and their ticker goroutines
type Manager struct {
	opts ManagerOptions

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager and starts its idle reaper when IdleTimeout is set
func NewManager(opts ManagerOptions) *Manager {
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}

	if opts.IdleTimeout > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.reap()
		}()
	}
	return m
}

// Create starts a session following req
func (m *Manager) Create(req providers.Request) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	s := New(m.opts.Options)
	m.sessions[s.ID()] = s
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		s.Run(m.ctx)
	}()

	if err := s.ChangeSong(req); err != nil {
		return nil, err
	}

	log.Infof("%s Created session %s (%d active)", logcolors.LogSession, logcolors.Session(s.ID()), m.Count())
	return s, nil
}

// Get returns the session with id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns all sessions, oldest first
func (m *Manager) List() []*Session {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt().Equal(list[j].CreatedAt()) {
			return list[i].ID() < list[j].ID()
		}
		return list[i].CreatedAt().Before(list[j].CreatedAt())
	})
	return list
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes and forgets the session with id
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	if m.opts.OnClose != nil {
		m.opts.OnClose(id)
	}
	return nil
}

// Shutdown closes every session and waits for their goroutines, or until ctx is done
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	log.Infof("%s Shutting down %d sessions", logcolors.LogSession, len(sessions))

	m.cancel()
	for _, s := range sessions {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) reap() {
	ticker := time.NewTicker(m.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.ReapIdle()
		}
	}
}

// ReapIdle closes sessions idle for longer than IdleTimeout and returns how many were closed.
// Sessions with an open event subscription are never idle.
func (m *Manager) ReapIdle() int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}
	now := time.Now
	if m.opts.Now != nil {
		now = m.opts.Now
	}
	cutoff := now().Add(-m.opts.IdleTimeout)

	var idle []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) && s.Subscribers() == 0 {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		if err := m.Close(id); err == nil {
			log.Infof("%s Reaped idle session %s", logcolors.LogSession, logcolors.Session(id))
		}
	}
	return len(idle)
}
