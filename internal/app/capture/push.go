package capture

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
)

// PushSource is a camera stream whose frames are uploaded by a client.
// The client also decides the permission.
type PushSource struct {
	mu         sync.Mutex
	permission Permission
	decided    chan struct{}
	open       bool
	frame      image.Image
}

// NewPushSource creates a new PushSource in the prompt state.
func NewPushSource() *PushSource {
	return &PushSource{
		decided: make(chan struct{}),
	}
}

// SetPermission records the client's permission decision.
// A denial is permanent; later grants are ignored.
func (s *PushSource) SetPermission(granted bool) Permission {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permission == PermissionDenied {
		return s.permission
	}
	if granted {
		s.permission = PermissionGranted
	} else {
		s.permission = PermissionDenied
		s.open = false
		s.frame = nil
	}

	select {
	case <-s.decided:
	default:
		close(s.decided)
	}
	return s.permission
}

// Permission returns the current permission state.
func (s *PushSource) Permission() Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

// Open waits for a permission decision and opens the stream when granted.
func (s *PushSource) Open(ctx context.Context) error {
	select {
	case <-s.decided:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permission != PermissionGranted {
		return ErrPermissionDenied
	}
	s.open = true
	return nil
}

// Push stores a frame as the current frame.
// Frames pushed while the stream is closed are dropped.
func (s *PushSource) Push(img image.Image) error {
	if img == nil {
		return errors.New("frame is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrNotReady
	}
	s.frame = img
	return nil
}

// PushEncoded decodes a JPEG or PNG frame and stores it.
func (s *PushSource) PushEncoded(r io.Reader) error {
	img, _, err := image.Decode(r)
	if err != nil {
		return errors.Wrap(err, "failed to decode frame")
	}
	return s.Push(img)
}

// Frame returns the latest pushed frame.
func (s *PushSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permission == PermissionDenied {
		return nil, ErrPermissionDenied
	}
	if !s.open || s.frame == nil {
		return nil, ErrNotReady
	}
	return s.frame, nil
}

// Close releases the stream and drops the current frame.
func (s *PushSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open = false
	s.frame = nil
	return nil
}
