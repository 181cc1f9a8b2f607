package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/song"
	"github.com/osa030/moodmelody/internal/infra/media"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrNoSong         = errors.New("no song selected")
	ErrQueueEmpty     = errors.New("queue is empty")
	ErrNotPlaying     = errors.New("not playing")
	ErrNotPaused      = errors.New("not paused")
	ErrInvalidEmotion = errors.New("invalid emotion")
)

// PlaylistSource resolves the playlist for an emotion.
type PlaylistSource interface {
	Playlist(e emotion.Emotion) song.Playlist
}

// Media is the element the controller drives as a side effect.
type Media interface {
	Load(ctx context.Context, url string, fallback time.Duration) <-chan error
	Generation() uint64
	Play() error
	Pause() error
	Seek(pos time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	Events() <-chan media.Event
}

// Config holds controller configuration.
type Config struct {
	InitialEmotion emotion.Emotion // Emotion before the first detection
	Shuffler       Shuffler        // Randomizes songs during queue rebuilds
}

// Controller owns the current emotion, queue, history and playback flags.
type Controller struct {
	mu sync.RWMutex

	playlists PlaylistSource
	media     Media

	emotion emotion.Emotion
	queue   []song.Song
	history []song.Song

	// Current song state
	current   *song.Song
	state     State
	loadedID  string // Song whose source the media element holds
	loadGen   uint64 // Incremented on every source swap
	sourceGen uint64 // Media generation of the loaded source
	loading   bool   // Waiting for the ready signal

	config Config

	// Events
	eventCh chan Event
	closed  bool

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a new playback controller.
func NewController(playlists PlaylistSource, m Media, config Config) *Controller {
	if !config.InitialEmotion.Valid() {
		config.InitialEmotion = emotion.Neutral
	}
	if config.Shuffler == nil {
		config.Shuffler = RandomShuffle
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		playlists: playlists,
		media:     m,
		emotion:   config.InitialEmotion,
		queue:     make([]song.Song, 0),
		history:   make([]song.Song, 0),
		state:     StateIdle,
		config:    config,
		eventCh:   make(chan Event, 32),
		ctx:       ctx,
		cancel:    cancel,
	}

	c.wg.Add(1)
	go c.watchMedia()

	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// OnEmotion applies a detected emotion.
// The queue is rebuilt only while gates are active; an idle controller starts the new queue head.
// Returns whether the current emotion changed.
func (c *Controller) OnEmotion(e emotion.Emotion, gates Gates) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !e.Valid() || e == c.emotion {
		return false
	}

	c.setEmotionLocked(e)

	if gates.Active() {
		c.rebuildLocked()
		if c.current == nil && len(c.queue) > 0 {
			c.playSongLocked(c.queue[0])
		}
	}

	return true
}

// SetEmotion is the manual override: it rebuilds regardless of gates and starts the queue head.
func (c *Controller) SetEmotion(e emotion.Emotion) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !e.Valid() {
		return errors.Wrapf(ErrInvalidEmotion, "emotion=%q", e)
	}

	if e != c.emotion {
		c.setEmotionLocked(e)
	}

	c.rebuildLocked()
	if len(c.queue) > 0 {
		c.playSongLocked(c.queue[0])
	}

	return nil
}

// EnsureQueue rebuilds the queue when it is empty or belongs to another emotion.
// It is a no-op while gates are inactive or the playlist is empty.
func (c *Controller) EnsureQueue(gates Gates) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !gates.Active() {
		return
	}

	playlist := c.playlists.Playlist(c.emotion)
	if len(playlist.Songs) == 0 {
		return
	}

	if len(c.queue) == 0 || c.queue[0].Emotion != c.emotion {
		c.rebuildLocked()
		if c.current == nil {
			c.playSongLocked(c.queue[0])
		}
	}
}

// PlaySong makes s the current song and starts playing it.
func (c *Controller) PlaySong(s song.Song) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.playSongLocked(s)
}

// Next advances circularly through the queue.
// With an empty queue it falls back to the first song of the current emotion's playlist.
func (c *Controller) Next() (song.Song, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.nextLocked()
}

// Previous moves circularly backward through the queue.
func (c *Controller) Previous() (song.Song, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return song.Song{}, ErrQueueEmpty
	}
	if c.current == nil {
		return song.Song{}, ErrNoSong
	}

	idx := song.IndexOf(c.queue, c.current.ID)
	s := c.queue[previousIndex(idx, len(c.queue))]
	c.playSongLocked(s)
	return s, nil
}

// TogglePlay pauses a playing song or resumes a paused one.
func (c *Controller) TogglePlay() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return c.state, ErrNoSong
	}

	if c.state == StatePlaying {
		c.pauseLocked()
	} else {
		c.resumeLocked()
	}
	return c.state, nil
}

// Pause pauses the current playback.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoSong
	}
	if c.state != StatePlaying {
		return ErrNotPlaying
	}

	c.pauseLocked()
	return nil
}

// Resume resumes paused playback.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoSong
	}
	if c.state != StatePaused {
		return ErrNotPaused
	}

	c.resumeLocked()
	return nil
}

// Seek sets the position of the current song.
func (c *Controller) Seek(pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoSong
	}
	if err := c.media.Seek(pos); err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	return nil
}

// Status returns a snapshot of the playback state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := Status{
		State:       c.state,
		Emotion:     c.emotion,
		QueueLength: len(c.queue),
	}
	if c.current != nil {
		cur := *c.current
		status.Current = &cur
		status.Duration = cur.Duration
		if c.loadedID == cur.ID && !c.loading {
			status.Position = c.media.Position()
			if d := c.media.Duration(); d > 0 {
				status.Duration = d
			}
		}
	}
	return status
}

// CurrentEmotion returns the current emotion.
func (c *Controller) CurrentEmotion() emotion.Emotion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.emotion
}

// CurrentSong returns the current song.
func (c *Controller) CurrentSong() (song.Song, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return song.Song{}, false
	}
	return *c.current, true
}

// Queue returns a copy of the queue.
func (c *Controller) Queue() []song.Song {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]song.Song, len(c.queue))
	copy(result, c.queue)
	return result
}

// History returns a copy of the play history, oldest first.
func (c *Controller) History() []song.Song {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]song.Song, len(c.history))
	copy(result, c.history)
	return result
}

// ClearHistory empties the play history.
func (c *Controller) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = make([]song.Song, 0)
}

// Close stops the controller and closes the event channel.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	close(c.eventCh)
}

func (c *Controller) setEmotionLocked(e emotion.Emotion) {
	c.emotion = e
	zlog.Info().Msgf("playback: emotion changed: emotion=%s", e)
	c.sendEventLocked(Event{
		Type:    EventEmotionChanged,
		Song:    c.currentCopyLocked(),
		State:   c.state,
		Emotion: e,
	})
}

// rebuildLocked replaces the queue with the current emotion's playlist, top-tier first.
// Must be called with lock held.
func (c *Controller) rebuildLocked() {
	playlist := c.playlists.Playlist(c.emotion)
	c.queue = buildQueue(playlist.Songs, c.config.Shuffler)

	zlog.Debug().Msgf("playback: queue rebuilt: emotion=%s size=%d", c.emotion, len(c.queue))
	c.sendEventLocked(Event{
		Type:    EventQueueRebuilt,
		Song:    c.currentCopyLocked(),
		State:   c.state,
		Emotion: c.emotion,
	})
}

func (c *Controller) nextLocked() (song.Song, error) {
	if len(c.queue) > 0 {
		idx := -1
		if c.current != nil {
			idx = song.IndexOf(c.queue, c.current.ID)
		}
		s := c.queue[nextIndex(idx, len(c.queue))]
		c.playSongLocked(s)
		return s, nil
	}

	playlist := c.playlists.Playlist(c.emotion)
	if len(playlist.Songs) == 0 {
		return song.Song{}, ErrQueueEmpty
	}
	s := playlist.Songs[0]
	c.playSongLocked(s)
	return s, nil
}

// playSongLocked makes s current, records history and drives the media element.
// Must be called with lock held.
func (c *Controller) playSongLocked(s song.Song) {
	cur := s
	c.current = &cur
	c.state = StatePlaying

	if n := len(c.history); n == 0 || c.history[n-1].ID != s.ID {
		c.history = append(c.history, s)
	}

	if c.loadedID != s.ID {
		c.loadLocked(s)
	} else {
		c.playMediaLocked()
	}

	zlog.Info().Msgf("playback: song started: id=%s title=%s artist=%s", s.ID, s.Title, s.Artist)
	c.sendEventLocked(Event{
		Type:    EventSongStarted,
		Song:    c.currentCopyLocked(),
		State:   c.state,
		Emotion: c.emotion,
	})
}

// loadLocked swaps the media source and plays once it signals ready.
// Must be called with lock held.
func (c *Controller) loadLocked(s song.Song) {
	if c.closed {
		return
	}

	c.loadGen++
	c.loadedID = s.ID
	c.loading = true

	ready := c.media.Load(c.ctx, s.URL, s.Duration)
	c.sourceGen = c.media.Generation()
	gen := c.loadGen

	c.wg.Add(1)
	go c.awaitReady(gen, s.ID, ready)
}

func (c *Controller) awaitReady(gen uint64, id string, ready <-chan error) {
	defer c.wg.Done()

	var err error
	select {
	case err = <-ready:
	case <-c.ctx.Done():
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.loadGen {
		// A newer source replaced this one
		return
	}
	c.loading = false

	if err != nil {
		zlog.Warn().Msgf("playback: source not playable: id=%s error=%v", id, err)
		return
	}

	if c.state == StatePlaying {
		c.playMediaLocked()
	}
}

// playMediaLocked issues a play request unless a source swap is pending.
// Must be called with lock held.
func (c *Controller) playMediaLocked() {
	if c.loading {
		return
	}
	if err := c.media.Play(); err != nil {
		c.reportMediaErrorLocked(err)
	}
}

func (c *Controller) pauseLocked() {
	c.state = StatePaused
	if !c.loading {
		if err := c.media.Pause(); err != nil {
			zlog.Warn().Msgf("playback: pause failed: error=%v", err)
		}
	}

	c.sendEventLocked(Event{
		Type:    EventStateChanged,
		Song:    c.currentCopyLocked(),
		State:   c.state,
		Emotion: c.emotion,
	})
}

func (c *Controller) resumeLocked() {
	c.state = StatePlaying
	c.playMediaLocked()

	c.sendEventLocked(Event{
		Type:    EventStateChanged,
		Song:    c.currentCopyLocked(),
		State:   c.state,
		Emotion: c.emotion,
	})
}

// reportMediaErrorLocked logs a media failure; the playing flag stays as it is.
// Must be called with lock held.
func (c *Controller) reportMediaErrorLocked(err error) {
	zlog.Warn().Msgf("playback: media error: error=%v", err)
	c.sendEventLocked(Event{
		Type:    EventPlaybackError,
		Song:    c.currentCopyLocked(),
		State:   c.state,
		Emotion: c.emotion,
		Message: err.Error(),
	})
}

func (c *Controller) watchMedia() {
	defer c.wg.Done()

	events := c.media.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.onMediaEvent(ev)
		}
	}
}

func (c *Controller) onMediaEvent(ev media.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Songs share source URLs, so only the generation identifies the source
	if c.current == nil || ev.Gen != c.sourceGen {
		return
	}

	switch ev.Type {
	case media.EventEnded:
		if c.state != StatePlaying {
			return
		}
		// The finished source must be reloaded if the same song comes up again
		c.loadedID = ""
		if _, err := c.nextLocked(); err != nil {
			zlog.Warn().Msgf("playback: auto advance failed: error=%v", err)
		}
	case media.EventError:
		err := ev.Err
		if err == nil {
			err = errors.New("media element failed")
		}
		c.reportMediaErrorLocked(err)
	}
}

func (c *Controller) currentCopyLocked() *song.Song {
	if c.current == nil {
		return nil
	}
	cur := *c.current
	return &cur
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	default:
		// Channel full, drop event
	}
}
