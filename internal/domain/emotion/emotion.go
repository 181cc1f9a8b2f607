// Package emotion provides the Emotion value type.
package emotion

import "strings"

// Emotion is one of the seven mood categories driving playlist selection.
type Emotion string

const (
	Happy     Emotion = "happy"
	Sad       Emotion = "sad"
	Angry     Emotion = "angry"
	Surprised Emotion = "surprised"
	Neutral   Emotion = "neutral"
	Fearful   Emotion = "fearful"
	Disgusted Emotion = "disgusted"
)

var all = []Emotion{Happy, Sad, Angry, Surprised, Neutral, Fearful, Disgusted}

// All returns every emotion in display order.
func All() []Emotion {
	result := make([]Emotion, len(all))
	copy(result, all)
	return result
}

// Parse converts a label into an Emotion.
// The label is lower-cased and trimmed before matching.
func Parse(label string) (Emotion, bool) {
	candidate := Emotion(strings.ToLower(strings.TrimSpace(label)))
	if candidate.Valid() {
		return candidate, true
	}
	return "", false
}

// Valid reports whether e is one of the seven known emotions.
func (e Emotion) Valid() bool {
	for _, known := range all {
		if e == known {
			return true
		}
	}
	return false
}

// String returns the label of the emotion.
func (e Emotion) String() string {
	return string(e)
}
