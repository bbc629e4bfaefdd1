package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services/providers"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrSessionNotFound is returned for unknown session ids
	ErrSessionNotFound = errors.New("session not found")

	// ErrClosed is returned when operating on a closed session or manager
	ErrClosed = errors.New("session closed")
)

const (
	DefaultUpdateInterval   = 100 * time.Millisecond
	DefaultSubscriberBuffer = 16
)

// Loader resolves the lyric document for a song
type Loader interface {
	Load(ctx context.Context, req providers.Request) (*lyrics.Lyrics, error)
}

// LoaderFunc adapts a function to the Loader interface
type LoaderFunc func(ctx context.Context, req providers.Request) (*lyrics.Lyrics, error)

func (f LoaderFunc) Load(ctx context.Context, req providers.Request) (*lyrics.Lyrics, error) {
	return f(ctx, req)
}

// Event is published to subscribers whenever the cursor or load state changes
type Event struct {
	SessionID  string        `json:"sessionId"`
	State      string        `json:"state"`
	PositionMs int64         `json:"positionMs"`
	Cursor     lyrics.Cursor `json:"cursor"`
	Line       string        `json:"line,omitempty"`
	Word       string        `json:"word,omitempty"`
}

// Snapshot is the externally visible state of a session
type Snapshot struct {
	ID          string            `json:"id"`
	State       string            `json:"state"`
	Error       string            `json:"error,omitempty"`
	Song        providers.Request `json:"song"`
	Clock       ClockState        `json:"clock"`
	Cursor      lyrics.Cursor     `json:"cursor"`
	Line        *lyrics.LyricLine `json:"line,omitempty"`
	Word        string            `json:"word,omitempty"`
	Subscribers int               `json:"subscribers"`
	CreatedAt   time.Time         `json:"createdAt"`
	LastActive  time.Time         `json:"lastActive"`
}

// Session follows one listener's playback of a song and tracks the active lyric.
//
// The load state is swapped with a single atomic store, so readers never see a
// half-built document. Everything else is guarded by mu.
type Session struct {
	id        string
	createdAt time.Time
	clock     *Clock
	loader    Loader
	interval  time.Duration
	bufSize   int
	now       func() time.Time

	state atomic.Pointer[lyrics.LoadState]

	mu         sync.Mutex
	song       providers.Request
	cursor     lyrics.Cursor
	lastKind   string
	subs       map[int]chan Event
	nextSub    int
	lastActive time.Time
	loadGen    uint64
	loadCancel context.CancelFunc
	closed     bool

	done    chan struct{}
	loading sync.WaitGroup
}

// Options configures new sessions
type Options struct {
	Loader           Loader
	UpdateInterval   time.Duration
	SubscriberBuffer int
	Now              func() time.Time
}

// New creates a session in the Loading state. Call ChangeSong to start loading
// and Run to start ticking.
func New(opts Options) *Session {
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = DefaultUpdateInterval
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		id:         uuid.New().String(),
		createdAt:  opts.Now(),
		clock:      NewClock(opts.Now),
		loader:     opts.Loader,
		interval:   opts.UpdateInterval,
		bufSize:    opts.SubscriberBuffer,
		now:        opts.Now,
		cursor:     lyrics.NoCursor,
		subs:       make(map[int]chan Event),
		lastActive: opts.Now(),
		done:       make(chan struct{}),
	}
	s.setState(lyrics.Loading{})
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Clock() *Clock {
	return s.clock
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// State returns the current load state
func (s *Session) State() lyrics.LoadState {
	return *s.state.Load()
}

func (s *Session) setState(state lyrics.LoadState) {
	s.state.Store(&state)
}

// Song returns the song currently followed
func (s *Session) Song() providers.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.song
}

// LastActive is the last time a client touched the session
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// Done is closed when the session is closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ChangeSong switches to req, resets the clock, and loads its lyrics in the
// background. A load still running for the previous song is cancelled and its
// result discarded.
func (s *Session) ChangeSong(req providers.Request) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.loadCancel != nil {
		s.loadCancel()
	}
	s.loadGen++
	gen := s.loadGen
	ctx, cancel := context.WithCancel(context.Background())
	s.loadCancel = cancel
	s.song = req
	s.lastActive = s.now()
	s.loading.Add(1)
	// Loading must be stored under mu, or a concurrent ChangeSong can bury a newer result
	s.clock.Pause()
	s.clock.SeekTo(0)
	s.setState(lyrics.Loading{})
	s.mu.Unlock()

	s.Tick()

	log.Infof("%s %s Loading %s", logcolors.LogSession, logcolors.Session(s.id), req)

	go func() {
		defer s.loading.Done()
		defer cancel()
		s.load(ctx, gen, req)
	}()
	return nil
}

func (s *Session) load(ctx context.Context, gen uint64, req providers.Request) {
	var (
		doc *lyrics.Lyrics
		err error
	)
	if s.loader == nil {
		err = lyrics.ErrNotFound
	} else {
		doc, err = s.loader.Load(ctx, req)
	}

	state := lyrics.StateFromResult(doc, err)

	s.mu.Lock()
	if gen != s.loadGen || s.closed || ctx.Err() != nil {
		s.mu.Unlock()
		log.Debugf("%s %s Discarding stale load for %s", logcolors.LogLoader, logcolors.Session(s.id), req)
		return
	}
	s.setState(state)
	s.mu.Unlock()

	switch st := state.(type) {
	case lyrics.Error:
		log.Warnf("%s %s Load failed for %s: %s", logcolors.LogLoader, logcolors.Session(s.id), req, st.Message)
	case lyrics.Success:
		log.Infof("%s %s Loaded %d lines for %s", logcolors.LogLoader, logcolors.Session(s.id), len(st.Lyrics.Lines), req)
	default:
		log.Infof("%s %s No lyrics for %s", logcolors.LogLoader, logcolors.Session(s.id), req)
	}

	s.Tick()
}

// Play resumes the clock
func (s *Session) Play() {
	s.clock.Play()
	s.touch()
	s.Tick()
}

// Pause stops the clock
func (s *Session) Pause() {
	s.clock.Pause()
	s.touch()
	s.Tick()
}

// SeekTo moves the clock to positionMs
func (s *Session) SeekTo(positionMs int64) {
	s.clock.SeekTo(positionMs)
	s.touch()
	s.Tick()
}

// SetSpeed changes the playback rate
func (s *Session) SetSpeed(speed float64) error {
	if err := s.clock.SetSpeed(speed); err != nil {
		return err
	}
	s.touch()
	s.Tick()
	return nil
}

// ActiveAt locates an arbitrary time in the current document without moving the clock
func (s *Session) ActiveAt(timeMs int64) lyrics.Cursor {
	doc, ok := lyrics.Document(s.State())
	if !ok {
		return lyrics.NoCursor
	}
	return doc.Locate(timeMs)
}

// Tick recomputes the cursor at the current position and publishes an event
// when it or the load state changed. It returns the current cursor.
func (s *Session) Tick() lyrics.Cursor {
	state := s.State()
	pos := s.clock.Position()

	cursor := lyrics.NoCursor
	doc, ok := lyrics.Document(state)
	if ok {
		cursor = doc.Locate(pos)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cursor
	}
	if cursor == s.cursor && state.Kind() == s.lastKind {
		return cursor
	}
	s.cursor = cursor
	s.lastKind = state.Kind()

	event := Event{
		SessionID:  s.id,
		State:      state.Kind(),
		PositionMs: pos,
		Cursor:     cursor,
	}
	if ok {
		if line, found := cursor.Line(doc); found {
			event.Line = line.Text
		}
		if word, found := cursor.Word(doc); found {
			event.Word = word.Text
		}
	}

	log.Debugf("%s %s line=%d word=%d at %s", logcolors.LogCursor, logcolors.Session(s.id), cursor.LineIndex, cursor.WordIndex, lyrics.FormatShortDuration(pos))
	s.publishLocked(event)
	return cursor
}

// publishLocked must be called with mu held. Full subscriber buffers drop the event.
func (s *Session) publishLocked(event Event) {
	for id, ch := range s.subs {
		select {
		case ch <- event:
		default:
			log.Debugf("%s %s Subscriber %d is slow, dropping event", logcolors.LogSession, logcolors.Session(s.id), id)
		}
	}
}

// Subscribe returns a channel of cursor events and a function that cancels the
// subscription. The channel is closed on cancel or when the session closes.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, s.bufSize)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.lastActive = s.now()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Subscribers returns the number of open event subscriptions
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Run ticks every update interval until ctx is cancelled or the session closes
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Snapshot returns the current state of the session
func (s *Session) Snapshot() Snapshot {
	state := s.State()
	clock := s.clock.Snapshot()

	s.mu.Lock()
	song := s.song
	song.FilePath = "" // server-local path, never echoed back
	snap := Snapshot{
		ID:          s.id,
		State:       state.Kind(),
		Song:        song,
		Clock:       clock,
		Subscribers: len(s.subs),
		CreatedAt:   s.createdAt,
		LastActive:  s.lastActive,
	}
	s.mu.Unlock()

	if e, ok := state.(lyrics.Error); ok {
		snap.Error = e.Message
	}

	snap.Cursor = lyrics.NoCursor
	if doc, ok := lyrics.Document(state); ok {
		snap.Cursor = doc.Locate(clock.PositionMs)
		if line, found := snap.Cursor.Line(doc); found {
			snap.Line = line
		}
		if word, found := snap.Cursor.Word(doc); found {
			snap.Word = word.Text
		}
	}
	return snap
}

// Close stops the session, cancels any load in flight, closes subscriber
// channels and waits for the load goroutine to exit. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.loadCancel != nil {
		s.loadCancel()
	}
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	close(s.done)
	s.mu.Unlock()

	s.loading.Wait()
	log.Infof("%s %s Closed", logcolors.LogSession, logcolors.Session(s.id))
}
