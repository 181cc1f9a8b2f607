package playback

import (
	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/song"
)

// EventType represents a playback event type.
type EventType int

const (
	EventSongStarted    EventType = iota // A song became current
	EventStateChanged                    // Playback state changed (pause/resume)
	EventQueueRebuilt                    // Queue was rebuilt from a playlist
	EventEmotionChanged                  // Current emotion changed
	EventPlaybackError                   // Media element reported a failure
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventSongStarted:
		return "song_started"
	case EventStateChanged:
		return "state_changed"
	case EventQueueRebuilt:
		return "queue_rebuilt"
	case EventEmotionChanged:
		return "emotion_changed"
	case EventPlaybackError:
		return "playback_error"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	Song    *song.Song      // Current song (nil for some events)
	State   State           // Current playback state
	Emotion emotion.Emotion // Current emotion
	Message string          // Error detail for EventPlaybackError
}
