// Package playback provides playback control with emotion-driven queue management.
package playback

import (
	"time"

	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/song"
)

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No song selected
	StatePlaying              // Song is playing
	StatePaused               // Song is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Gates carries the capture flags that decide whether emotion changes rebuild the queue.
type Gates struct {
	Streaming bool
	Privacy   bool
}

// Active reports whether detected emotions may drive the queue.
func (g Gates) Active() bool {
	return g.Streaming && !g.Privacy
}

// Status is a snapshot of the playback state.
type Status struct {
	State       State
	Emotion     emotion.Emotion
	Current     *song.Song
	Position    time.Duration
	Duration    time.Duration
	QueueLength int
}

// Playing reports the optimistic playing flag.
func (s Status) Playing() bool {
	return s.State == StatePlaying
}
