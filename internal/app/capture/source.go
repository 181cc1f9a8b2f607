// Package capture grabs still frames from a camera source and encodes them for inference.
package capture

import (
	"context"
	"image"

	"github.com/cockroachdb/errors"
)

var (
	// ErrPermissionDenied is returned when the camera cannot be used.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrNotReady is returned when the stream has no frame to capture yet.
	ErrNotReady = errors.New("camera stream not ready")
)

// Permission is the camera permission state.
type Permission int

const (
	// PermissionPrompt means no decision was made yet.
	PermissionPrompt Permission = iota
	// PermissionGranted means the camera may be used.
	PermissionGranted
	// PermissionDenied is terminal for the process.
	PermissionDenied
)

// String returns the string representation of the permission.
func (p Permission) String() string {
	switch p {
	case PermissionPrompt:
		return "prompt"
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Source is a camera stream.
type Source interface {
	// Open acquires the stream. It may block until permission is decided.
	Open(ctx context.Context) error
	// Frame returns the current frame of an open stream.
	Frame(ctx context.Context) (image.Image, error)
	// Close releases the stream.
	Close() error
}
