package session

import (
	"errors"
	"sync"
	"time"

	"lyrics-sync-go/lyrics"
)

// ErrInvalidSpeed is returned when a playback speed is not positive
var ErrInvalidSpeed = errors.New("speed must be greater than zero")

// Clock models the playback position of a song reported by a client.
// While playing, the position is extrapolated from the last anchor.
type Clock struct {
	mu       sync.RWMutex
	now      func() time.Time
	anchorMs int64
	anchorAt time.Time
	playing  bool
	speed    float64
}

// ClockState is a point-in-time view of a clock
type ClockState struct {
	PositionMs int64   `json:"positionMs"`
	Position   string  `json:"position"`
	Playing    bool    `json:"playing"`
	Speed      float64 `json:"speed"`
}

// NewClock creates a paused clock at position 0. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, anchorAt: now(), speed: 1}
}

// positionLocked must be called with mu held
func (c *Clock) positionLocked() int64 {
	pos := c.anchorMs
	if c.playing {
		elapsed := c.now().Sub(c.anchorAt)
		pos += int64(float64(elapsed.Milliseconds()) * c.speed)
	}
	if pos < 0 {
		return 0
	}
	return pos
}

// reanchor folds elapsed play time into the anchor
func (c *Clock) reanchor() {
	c.anchorMs = c.positionLocked()
	c.anchorAt = c.now()
}

// Position returns the current playback position in milliseconds
func (c *Clock) Position() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positionLocked()
}

func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.anchorAt = c.now()
	c.playing = true
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.reanchor()
	c.playing = false
}

// SeekTo jumps to positionMs. Seeking backwards is allowed; negative values clamp to 0.
func (c *Clock) SeekTo(positionMs int64) {
	if positionMs < 0 {
		positionMs = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorMs = positionMs
	c.anchorAt = c.now()
}

func (c *Clock) SetSpeed(speed float64) error {
	if speed <= 0 {
		return ErrInvalidSpeed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchor()
	c.speed = speed
	return nil
}

func (c *Clock) Playing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playing
}

// Snapshot returns the clock state with a display-formatted position
func (c *Clock) Snapshot() ClockState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos := c.positionLocked()
	return ClockState{
		PositionMs: pos,
		Position:   lyrics.FormatShortDuration(pos),
		Playing:    c.playing,
		Speed:      c.speed,
	}
}
