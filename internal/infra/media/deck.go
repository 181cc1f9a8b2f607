// Package media provides a server-side media element that tracks playback of a remote MP3 source.
package media

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hajimehoshi/go-mp3"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrNotLoaded is returned when playback is requested before the source can play.
	ErrNotLoaded = errors.New("media source not ready")
	// ErrClosed is returned after the deck is closed.
	ErrClosed = errors.New("media deck closed")
)

// EventType represents a media event type.
type EventType int

const (
	EventEnded EventType = iota // Position reached the duration
	EventError                  // Source failed to load
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents a media event.
type Event struct {
	Type EventType
	URL  string
	Gen  uint64 // Generation of the source the event belongs to
	Err  error
}

// Config holds deck configuration.
type Config struct {
	Offline      bool          // Skip fetching sources; every load is ready at once
	LoadTimeout  time.Duration // Upper bound for fetching and decoding the first frame
	TickInterval time.Duration // Resolution of the end-of-track timer
}

// Deck is a single media element: one source at a time, a play/pause flag and a position.
type Deck struct {
	mu sync.Mutex

	url      string
	gen      uint64
	ready    bool
	playing  bool
	duration time.Duration

	// Position is offset while paused, offset + (now - startedAt) while playing
	offset    time.Duration
	startedAt time.Time

	loadCancel  context.CancelFunc
	timerCancel func()

	httpClient *http.Client
	config     Config
	eventCh    chan Event
	closed     bool
}

// NewDeck creates a new deck.
func NewDeck(config Config) *Deck {
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 15 * time.Second
	}
	if config.TickInterval <= 0 {
		config.TickInterval = 100 * time.Millisecond
	}
	return &Deck{
		httpClient: &http.Client{},
		config:     config,
		eventCh:    make(chan Event, 10),
	}
}

// Events returns the event channel.
func (d *Deck) Events() <-chan Event {
	return d.eventCh
}

// Load replaces the source and resets the position.
// The returned channel receives one value once the source can play (nil) or failed.
// fallback is used as duration when the stream does not tell its length.
func (d *Deck) Load(ctx context.Context, url string, fallback time.Duration) <-chan error {
	ready := make(chan error, 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		ready <- ErrClosed
		return ready
	}

	d.stopTimerLocked()
	if d.loadCancel != nil {
		d.loadCancel()
		d.loadCancel = nil
	}

	d.gen++
	d.url = url
	d.ready = false
	d.playing = false
	d.offset = 0
	d.duration = fallback

	if d.config.Offline {
		d.ready = true
		ready <- nil
		return ready
	}

	loadCtx, cancel := context.WithTimeout(ctx, d.config.LoadTimeout)
	d.loadCancel = cancel
	gen := d.gen

	go func() {
		defer cancel()

		length, err := d.inspect(loadCtx, url)

		d.mu.Lock()
		if gen != d.gen || d.closed {
			// Superseded by another load
			d.mu.Unlock()
			ready <- errors.Wrap(context.Canceled, "source replaced")
			return
		}
		d.loadCancel = nil
		if err == nil {
			d.ready = true
			if length > 0 {
				d.duration = length
			}
		} else {
			d.sendEventLocked(Event{Type: EventError, URL: url, Gen: gen, Err: err})
		}
		d.mu.Unlock()

		if err == nil {
			zlog.Debug().Msgf("media: source ready: url=%s duration=%v", url, length)
		} else {
			zlog.Warn().Msgf("media: source failed: url=%s error=%v", url, err)
		}
		ready <- err
	}()

	return ready
}

// Generation returns the generation of the current source. Every Load increments it.
func (d *Deck) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen
}

// inspect fetches the source and decodes the first frames.
// It returns the stream length when the decoder knows it.
func (d *Deck) inspect(ctx context.Context, url string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch source")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.Newf("source fetch status %d", resp.StatusCode)
	}

	decoder, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode source")
	}

	buf := make([]byte, 4096)
	if _, err := io.ReadFull(decoder, buf); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, errors.Wrap(err, "failed to read samples")
	}

	// 16-bit stereo PCM
	if n := decoder.Length(); n > 0 && decoder.SampleRate() > 0 {
		return time.Duration(n/4) * time.Second / time.Duration(decoder.SampleRate()), nil
	}
	return 0, nil
}

// Play starts or resumes the loaded source.
func (d *Deck) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if !d.ready {
		return ErrNotLoaded
	}
	if d.playing {
		return nil
	}

	d.playing = true
	d.startedAt = toWallTime(time.Now())
	d.scheduleEndLocked()
	return nil
}

// Pause stops the position from advancing.
func (d *Deck) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if !d.playing {
		return nil
	}

	d.offset = d.positionLocked()
	d.playing = false
	d.stopTimerLocked()
	return nil
}

// Seek sets the current time, clamped to the source duration.
func (d *Deck) Seek(pos time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.url == "" {
		return ErrNotLoaded
	}

	if pos < 0 {
		pos = 0
	}
	if d.duration > 0 && pos > d.duration {
		pos = d.duration
	}
	d.offset = pos
	if d.playing {
		d.startedAt = toWallTime(time.Now())
		d.scheduleEndLocked()
	}
	return nil
}

// Position returns the current time.
func (d *Deck) Position() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionLocked()
}

// Duration returns the source duration.
func (d *Deck) Duration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duration
}

// Playing reports whether the position is advancing.
func (d *Deck) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// Close stops playback and closes the event channel.
func (d *Deck) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.playing = false
	d.stopTimerLocked()
	if d.loadCancel != nil {
		d.loadCancel()
		d.loadCancel = nil
	}
	close(d.eventCh)
}

func (d *Deck) positionLocked() time.Duration {
	pos := d.offset
	if d.playing {
		pos += toWallTime(time.Now()).Sub(d.startedAt)
	}
	if d.duration > 0 && pos > d.duration {
		pos = d.duration
	}
	return pos
}

// scheduleEndLocked (re)starts the end-of-track timer.
// Must be called with lock held.
func (d *Deck) scheduleEndLocked() {
	d.stopTimerLocked()
	if d.duration <= 0 {
		return
	}

	gen := d.gen
	remaining := d.duration - d.offset
	d.timerCancel = d.startWallClockTimer(remaining, func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		if d.closed || gen != d.gen || !d.playing {
			return
		}
		d.timerCancel = nil
		d.offset = d.duration
		d.playing = false
		d.sendEventLocked(Event{Type: EventEnded, URL: d.url, Gen: gen})
	})
}

func (d *Deck) stopTimerLocked() {
	if d.timerCancel != nil {
		d.timerCancel()
		d.timerCancel = nil
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (d *Deck) sendEventLocked(e Event) {
	if d.closed {
		return
	}
	select {
	case d.eventCh <- e:
	default:
		// Channel full, drop event
	}
}

// startWallClockTimer starts a timer that triggers callback after duration, using wall clock.
// Returns a cancel function.
func (d *Deck) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())
	tick := d.config.TickInterval

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
