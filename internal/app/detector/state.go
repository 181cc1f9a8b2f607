// Package detector schedules camera captures and emotion classification.
package detector

import (
	"time"

	"github.com/osa030/moodmelody/internal/app/capture"
	"github.com/osa030/moodmelody/internal/domain/emotion"
)

// State represents the scheduler state.
type State int

const (
	StateIdle     State = iota // Waiting for the next trigger
	StateScanning              // One capture and classification in flight
	StateCooldown              // Scans suppressed after a quota error
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Observation is an emotion classification that passed the confidence threshold.
type Observation struct {
	Emotion    emotion.Emotion
	Confidence float64
	At         time.Time
}

// EventType represents a detector event type.
type EventType int

const (
	EventStateChanged      EventType = iota // Scheduler state changed
	EventQuotaExceeded                      // Inference quota hit, cooldown started
	EventPermissionChanged                  // Camera permission decided
	EventCameraChanged                      // Camera stream opened or released
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventQuotaExceeded:
		return "quota_exceeded"
	case EventPermissionChanged:
		return "permission_changed"
	case EventCameraChanged:
		return "camera_changed"
	default:
		return "unknown"
	}
}

// Event represents a detector event.
type Event struct {
	Type       EventType
	State      State
	Permission capture.Permission
	CameraOpen bool
	Message    string
}

// Status is a snapshot of the detector.
type Status struct {
	State           State
	Streaming       bool
	Privacy         bool
	AnalysisActive  bool
	Permission      capture.Permission
	CameraOpen      bool
	Notice          string
	CooldownUntil   time.Time
	LastScanAt      time.Time
	LastObservation *Observation
}
