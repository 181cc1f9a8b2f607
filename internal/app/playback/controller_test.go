package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/moodmelody/internal/app/catalog"
	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/song"
	"github.com/osa030/moodmelody/internal/infra/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMedia struct {
	mu      sync.Mutex
	loads   []string
	plays   int
	pauses  int
	seeks   []time.Duration
	hold    bool
	pending map[string]chan error
	loadErr error
	gen     uint64
	events  chan media.Event
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		pending: make(map[string]chan error),
		events:  make(chan media.Event, 10),
	}
}

func (m *fakeMedia) Load(_ context.Context, url string, _ time.Duration) <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loads = append(m.loads, url)
	m.gen++
	ch := make(chan error, 1)
	if m.hold {
		m.pending[url] = ch
	} else {
		ch <- m.loadErr
	}
	return ch
}

func (m *fakeMedia) release(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.pending[url]; ok {
		ch <- nil
		delete(m.pending, url)
	}
}

func (m *fakeMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays++
	return nil
}

func (m *fakeMedia) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
	return nil
}

func (m *fakeMedia) Seek(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks = append(m.seeks, pos)
	return nil
}

func (m *fakeMedia) Position() time.Duration { return 0 }
func (m *fakeMedia) Duration() time.Duration { return 0 }

func (m *fakeMedia) Events() <-chan media.Event { return m.events }

func (m *fakeMedia) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func (m *fakeMedia) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loads)
}

func (m *fakeMedia) playCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plays
}

type fakePlaylists map[emotion.Emotion]song.Playlist

func (f fakePlaylists) Playlist(e emotion.Emotion) song.Playlist {
	if p, ok := f[e]; ok {
		return p
	}
	return song.Playlist{Emotion: e}
}

func mkSong(id string, e emotion.Emotion, topTier bool) song.Song {
	return song.Song{
		ID:       id,
		Title:    "Title " + id,
		Artist:   "Artist",
		URL:      "http://audio.test/" + id + ".mp3",
		Duration: 3 * time.Minute,
		Emotion:  e,
		TopTier:  topTier,
	}
}

func testPlaylists() fakePlaylists {
	return fakePlaylists{
		emotion.Happy: {Emotion: emotion.Happy, Songs: []song.Song{
			mkSong("h1", emotion.Happy, false),
			mkSong("h2", emotion.Happy, true),
			mkSong("h3", emotion.Happy, false),
			mkSong("h4", emotion.Happy, true),
		}},
		emotion.Sad: {Emotion: emotion.Sad, Songs: []song.Song{
			mkSong("s1", emotion.Sad, false),
			mkSong("s2", emotion.Sad, false),
		}},
		emotion.Neutral: {Emotion: emotion.Neutral, Songs: []song.Song{
			mkSong("n1", emotion.Neutral, false),
		}},
	}
}

func keepOrder([]song.Song) {}

func newTestController(t *testing.T, playlists PlaylistSource) (*Controller, *fakeMedia) {
	t.Helper()
	m := newFakeMedia()
	c := NewController(playlists, m, Config{Shuffler: keepOrder})
	t.Cleanup(c.Close)
	return c, m
}

var active = Gates{Streaming: true}

func ids(songs []song.Song) []string {
	result := make([]string, len(songs))
	for i, s := range songs {
		result[i] = s.ID
	}
	return result
}

func waitForEvent(t *testing.T, c *Controller, typ EventType) Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "event channel closed")
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return Event{}
		}
	}
}

func assertTierOrder(t *testing.T, queue []song.Song) {
	t.Helper()
	seenRegular := false
	for _, s := range queue {
		if !s.TopTier {
			seenRegular = true
			continue
		}
		assert.False(t, seenRegular, "top-tier song %s after a regular song", s.ID)
	}
}

func TestNewController_Defaults(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())

	status := c.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, emotion.Neutral, status.Emotion)
	assert.Nil(t, status.Current)
	assert.False(t, status.Playing())
	assert.Empty(t, c.Queue())
	assert.Empty(t, c.History())
}

func TestController_OnEmotion_StartsHappyPlaylist(t *testing.T) {
	lib := catalog.Default()
	m := newFakeMedia()
	c := NewController(lib, m, Config{})
	defer c.Close()

	changed := c.OnEmotion(emotion.Happy, active)
	require.True(t, changed)

	assert.Equal(t, emotion.Happy, c.CurrentEmotion())

	queue := c.Queue()
	playlist := lib.Playlist(emotion.Happy)
	assert.ElementsMatch(t, ids(playlist.Songs), ids(queue))
	assertTierOrder(t, queue)

	current, ok := c.CurrentSong()
	require.True(t, ok)
	assert.Equal(t, queue[0].ID, current.ID)
	assert.True(t, c.Status().Playing())

	history := c.History()
	require.Len(t, history, 1)
	assert.Equal(t, queue[0].ID, history[0].ID)

	assert.Eventually(t, func() bool { return m.playCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{queue[0].URL}, m.loads)
}

func TestController_OnEmotion_Gates(t *testing.T) {
	tests := []struct {
		name  string
		gates Gates
	}{
		{name: "not streaming", gates: Gates{}},
		{name: "privacy", gates: Gates{Streaming: true, Privacy: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := newTestController(t, testPlaylists())

			changed := c.OnEmotion(emotion.Happy, tt.gates)
			assert.True(t, changed)
			assert.Equal(t, emotion.Happy, c.CurrentEmotion())
			assert.Empty(t, c.Queue())
			_, ok := c.CurrentSong()
			assert.False(t, ok)
			assert.Equal(t, 0, m.loadCount())
		})
	}
}

func TestController_OnEmotion_NoChange(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())

	assert.False(t, c.OnEmotion(emotion.Neutral, active))
	assert.False(t, c.OnEmotion(emotion.Emotion("bored"), active))
	assert.Empty(t, c.Queue())
}

func TestController_OnEmotion_KeepsCurrentSong(t *testing.T) {
	c, m := newTestController(t, testPlaylists())

	require.True(t, c.OnEmotion(emotion.Happy, active))
	first, _ := c.CurrentSong()

	require.True(t, c.OnEmotion(emotion.Sad, active))

	assert.Equal(t, []string{"s1", "s2"}, ids(c.Queue()))
	current, _ := c.CurrentSong()
	assert.Equal(t, first.ID, current.ID, "a playing song is not interrupted")
	assert.Equal(t, 1, m.loadCount())
}

func TestController_SetEmotion(t *testing.T) {
	c, m := newTestController(t, testPlaylists())

	require.NoError(t, c.SetEmotion(emotion.Happy))

	assert.Equal(t, []string{"h2", "h4", "h1", "h3"}, ids(c.Queue()))
	current, ok := c.CurrentSong()
	require.True(t, ok)
	assert.Equal(t, "h2", current.ID)

	// Override restarts at the head even when a song is playing
	require.NoError(t, c.SetEmotion(emotion.Sad))
	current, _ = c.CurrentSong()
	assert.Equal(t, "s1", current.ID)
	assert.Equal(t, 2, m.loadCount())

	err := c.SetEmotion(emotion.Emotion("bored"))
	assert.True(t, errors.Is(err, ErrInvalidEmotion))
}

func TestController_SetEmotion_EmptyPlaylist(t *testing.T) {
	c, m := newTestController(t, testPlaylists())

	require.NoError(t, c.SetEmotion(emotion.Fearful))

	assert.Equal(t, emotion.Fearful, c.CurrentEmotion())
	assert.Empty(t, c.Queue())
	_, ok := c.CurrentSong()
	assert.False(t, ok)
	assert.Equal(t, 0, m.loadCount())
}

func TestController_EnsureQueue(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())

	c.EnsureQueue(Gates{})
	assert.Empty(t, c.Queue())

	c.EnsureQueue(active)
	assert.Equal(t, []string{"n1"}, ids(c.Queue()))
	current, ok := c.CurrentSong()
	require.True(t, ok)
	assert.Equal(t, "n1", current.ID)

	// Emotion changed while inactive; the stale queue is replaced once active
	c.OnEmotion(emotion.Sad, Gates{})
	assert.Equal(t, []string{"n1"}, ids(c.Queue()))
	c.EnsureQueue(active)
	assert.Equal(t, []string{"s1", "s2"}, ids(c.Queue()))
	current, _ = c.CurrentSong()
	assert.Equal(t, "n1", current.ID)
}

func TestController_EnsureQueue_EmptyPlaylist(t *testing.T) {
	c, _ := newTestController(t, fakePlaylists{})

	c.EnsureQueue(active)
	assert.Empty(t, c.Queue())
}

func TestBuildQueue_TierOrdering(t *testing.T) {
	lib := catalog.Default()
	for _, e := range emotion.All() {
		for i := 0; i < 50; i++ {
			queue := buildQueue(lib.Playlist(e).Songs, RandomShuffle)
			assertTierOrder(t, queue)
			assert.Len(t, queue, len(lib.Playlist(e).Songs))
		}
	}
}

func TestBuildQueue_DoesNotMutatePlaylist(t *testing.T) {
	playlist := testPlaylists()[emotion.Happy]
	before := ids(playlist.Songs)

	queue := buildQueue(playlist.Songs, func(s []song.Song) {
		s[0], s[len(s)-1] = s[len(s)-1], s[0]
	})

	assert.Equal(t, before, ids(playlist.Songs))
	assertTierOrder(t, queue)
}

func TestController_NextPreviousAreInverse(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())
	require.NoError(t, c.SetEmotion(emotion.Happy))

	queue := c.Queue()
	for _, s := range queue {
		c.PlaySong(s)

		_, err := c.Next()
		require.NoError(t, err)
		back, err := c.Previous()
		require.NoError(t, err)

		assert.Equal(t, s.ID, back.ID)
	}
}

func TestController_NextWrapsAround(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())
	require.NoError(t, c.SetEmotion(emotion.Happy))

	var visited []string
	for i := 0; i < 5; i++ {
		s, err := c.Next()
		require.NoError(t, err)
		visited = append(visited, s.ID)
	}
	assert.Equal(t, []string{"h4", "h1", "h3", "h2", "h4"}, visited)
}

func TestController_CurrentAbsentFromQueue(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())
	require.NoError(t, c.SetEmotion(emotion.Happy))

	stray := mkSong("x1", emotion.Angry, false)

	c.PlaySong(stray)
	next, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, "h2", next.ID, "absent current goes to the queue head")

	c.PlaySong(stray)
	prev, err := c.Previous()
	require.NoError(t, err)
	assert.Equal(t, "h1", prev.ID, "absent current goes one before the queue tail")
}

func TestPreviousIndex(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		length   int
		expected int
	}{
		{name: "middle", current: 2, length: 4, expected: 1},
		{name: "wraps from head", current: 0, length: 4, expected: 3},
		{name: "absent current", current: -1, length: 4, expected: 2},
		{name: "absent current in single-song queue", current: -1, length: 1, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, previousIndex(tt.current, tt.length))
		})
	}
}

func TestController_NextWithEmptyQueue(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())
	c.OnEmotion(emotion.Sad, Gates{})
	require.Empty(t, c.Queue())

	s, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.True(t, c.Status().Playing())
}

func TestController_NextWithEmptyPlaylist(t *testing.T) {
	c, _ := newTestController(t, fakePlaylists{})

	_, err := c.Next()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestController_PreviousPreconditions(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())

	_, err := c.Previous()
	assert.ErrorIs(t, err, ErrQueueEmpty)

	// Queue built while nothing is selected
	c.mu.Lock()
	c.queue = buildQueue(testPlaylists()[emotion.Sad].Songs, keepOrder)
	c.mu.Unlock()

	_, err = c.Previous()
	assert.ErrorIs(t, err, ErrNoSong)
}

func TestController_HistorySuppressesConsecutiveDuplicates(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())
	a := mkSong("a", emotion.Happy, false)
	b := mkSong("b", emotion.Happy, false)

	for _, s := range []song.Song{a, a, b, b, a, a, b} {
		c.PlaySong(s)
	}

	history := ids(c.History())
	assert.Equal(t, []string{"a", "b", "a", "b"}, history)
	for i := 1; i < len(history); i++ {
		assert.NotEqual(t, history[i-1], history[i])
	}

	c.ClearHistory()
	assert.Empty(t, c.History())
}

func TestController_LoadsOnlyOnSongChange(t *testing.T) {
	c, m := newTestController(t, testPlaylists())
	a := mkSong("a", emotion.Happy, false)

	c.PlaySong(a)
	assert.Eventually(t, func() bool { return m.playCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err := c.TogglePlay()
	require.NoError(t, err)
	_, err = c.TogglePlay()
	require.NoError(t, err)
	c.PlaySong(a)

	assert.Equal(t, 1, m.loadCount())
	assert.Equal(t, 3, m.playCount())
	assert.Equal(t, 1, m.pauses)
}

func TestController_PlaysOnlyAfterReady(t *testing.T) {
	c, m := newTestController(t, testPlaylists())
	m.hold = true

	a := mkSong("a", emotion.Happy, false)
	b := mkSong("b", emotion.Happy, false)

	c.PlaySong(a)
	c.PlaySong(b)
	assert.Equal(t, 0, m.playCount())

	// The stale source becoming ready must not start playback
	m.release(a.URL)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, m.playCount())

	m.release(b.URL)
	assert.Eventually(t, func() bool { return m.playCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestController_PausedBeforeReady(t *testing.T) {
	c, m := newTestController(t, testPlaylists())
	m.hold = true

	a := mkSong("a", emotion.Happy, false)
	c.PlaySong(a)
	require.NoError(t, c.Pause())

	m.release(a.URL)
	assert.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return !c.loading
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, m.playCount())

	require.NoError(t, c.Resume())
	assert.Equal(t, 1, m.playCount())
}

func TestController_TogglePlay(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())

	_, err := c.TogglePlay()
	assert.ErrorIs(t, err, ErrNoSong)

	c.PlaySong(mkSong("a", emotion.Happy, false))

	state, err := c.TogglePlay()
	require.NoError(t, err)
	assert.Equal(t, StatePaused, state)

	state, err = c.TogglePlay()
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, state)
}

func TestController_PauseResumeErrors(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())

	assert.ErrorIs(t, c.Pause(), ErrNoSong)
	assert.ErrorIs(t, c.Resume(), ErrNoSong)
	assert.ErrorIs(t, c.Seek(time.Second), ErrNoSong)

	c.PlaySong(mkSong("a", emotion.Happy, false))
	assert.ErrorIs(t, c.Resume(), ErrNotPaused)
	require.NoError(t, c.Pause())
	assert.ErrorIs(t, c.Pause(), ErrNotPlaying)
}

func TestController_Seek(t *testing.T) {
	c, m := newTestController(t, testPlaylists())
	c.PlaySong(mkSong("a", emotion.Happy, false))

	require.NoError(t, c.Seek(42*time.Second))
	assert.Equal(t, []time.Duration{42 * time.Second}, m.seeks)
}

func TestController_EndedAdvances(t *testing.T) {
	c, m := newTestController(t, testPlaylists())
	require.NoError(t, c.SetEmotion(emotion.Sad))

	current, _ := c.CurrentSong()
	m.events <- media.Event{Type: media.EventEnded, URL: current.URL, Gen: m.Generation()}

	assert.Eventually(t, func() bool {
		s, _ := c.CurrentSong()
		return s.ID == "s2"
	}, time.Second, 5*time.Millisecond)
}

func TestController_EndedReloadsSingleSongQueue(t *testing.T) {
	c, m := newTestController(t, testPlaylists())
	c.EnsureQueue(active)
	require.Equal(t, 1, m.loadCount())

	current, _ := c.CurrentSong()
	m.events <- media.Event{Type: media.EventEnded, URL: current.URL, Gen: m.Generation()}

	assert.Eventually(t, func() bool { return m.loadCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestController_MediaErrorKeepsPlayingFlag(t *testing.T) {
	c, m := newTestController(t, testPlaylists())
	a := mkSong("a", emotion.Happy, false)
	c.PlaySong(a)

	m.events <- media.Event{Type: media.EventError, URL: a.URL, Gen: m.Generation(), Err: errors.New("decode failed")}

	ev := waitForEvent(t, c, EventPlaybackError)
	assert.Equal(t, "decode failed", ev.Message)
	require.NotNil(t, ev.Song)
	assert.Equal(t, "a", ev.Song.ID)
	assert.True(t, c.Status().Playing())
}

func TestController_MediaEventForOtherSourceIgnored(t *testing.T) {
	c, m := newTestController(t, testPlaylists())
	require.NoError(t, c.SetEmotion(emotion.Sad))

	m.events <- media.Event{Type: media.EventEnded, URL: "http://audio.test/other.mp3", Gen: m.Generation() + 1}
	time.Sleep(20 * time.Millisecond)

	current, _ := c.CurrentSong()
	assert.Equal(t, "s1", current.ID)
}

func TestController_StaleEventForSharedURLIgnored(t *testing.T) {
	c, m := newTestController(t, testPlaylists())
	a := mkSong("a", emotion.Happy, false)
	b := mkSong("b", emotion.Happy, false)
	b.URL = a.URL

	c.PlaySong(a)
	staleGen := m.Generation()
	c.PlaySong(b)
	require.Equal(t, 2, m.loadCount(), "different songs reload even with one URL")

	// Ended of the first source arrives after the second one was loaded
	m.events <- media.Event{Type: media.EventEnded, URL: a.URL, Gen: staleGen}
	time.Sleep(20 * time.Millisecond)

	current, _ := c.CurrentSong()
	assert.Equal(t, "b", current.ID)
	assert.Equal(t, 2, m.loadCount())
}

func TestController_Events(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())

	c.OnEmotion(emotion.Happy, active)

	ev := waitForEvent(t, c, EventEmotionChanged)
	assert.Equal(t, emotion.Happy, ev.Emotion)
	ev = waitForEvent(t, c, EventQueueRebuilt)
	assert.Equal(t, emotion.Happy, ev.Emotion)
	ev = waitForEvent(t, c, EventSongStarted)
	require.NotNil(t, ev.Song)
	assert.Equal(t, "h2", ev.Song.ID)
	assert.Equal(t, StatePlaying, ev.State)

	require.NoError(t, c.Pause())
	ev = waitForEvent(t, c, EventStateChanged)
	assert.Equal(t, StatePaused, ev.State)
}

func TestController_StatusReturnsCopies(t *testing.T) {
	c, _ := newTestController(t, testPlaylists())
	require.NoError(t, c.SetEmotion(emotion.Happy))

	queue := c.Queue()
	queue[0].Title = "mutated"
	status := c.Status()
	status.Current.Title = "mutated"

	current, _ := c.CurrentSong()
	assert.NotEqual(t, "mutated", current.Title)
	assert.NotEqual(t, "mutated", c.Queue()[0].Title)
	assert.Equal(t, 4, status.QueueLength)
	assert.Equal(t, 3*time.Minute, status.Duration)
}

func TestController_CloseClosesEvents(t *testing.T) {
	m := newFakeMedia()
	c := NewController(testPlaylists(), m, Config{Shuffler: keepOrder})
	c.Close()
	c.Close()

	for range c.Events() {
	}
}

func TestStateAndEventStrings(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "unknown", State(9).String())

	assert.Equal(t, "song_started", EventSongStarted.String())
	assert.Equal(t, "state_changed", EventStateChanged.String())
	assert.Equal(t, "queue_rebuilt", EventQueueRebuilt.String())
	assert.Equal(t, "emotion_changed", EventEmotionChanged.String())
	assert.Equal(t, "playback_error", EventPlaybackError.String())
	assert.Equal(t, "unknown", EventType(99).String())
}
