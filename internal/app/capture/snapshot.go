package capture

import (
	"context"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// SnapshotSource pulls still images from an HTTP snapshot endpoint such as an IP camera.
type SnapshotSource struct {
	url        string
	httpClient *http.Client

	mu   sync.Mutex
	open bool
}

// NewSnapshotSource creates a new SnapshotSource.
func NewSnapshotSource(url string) *SnapshotSource {
	return &SnapshotSource{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Open checks the endpoint once.
func (s *SnapshotSource) Open(ctx context.Context) error {
	if _, err := s.fetch(ctx); err != nil && !errors.Is(err, ErrNotReady) {
		return err
	}

	s.mu.Lock()
	s.open = true
	s.mu.Unlock()

	zlog.Info().Msgf("snapshot source opened: url=%s", s.url)
	return nil
}

// Frame fetches and decodes the current snapshot.
func (s *SnapshotSource) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()

	if !open {
		return nil, ErrNotReady
	}
	return s.fetch(ctx)
}

// Close marks the stream closed.
func (s *SnapshotSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *SnapshotSource) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch snapshot")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrPermissionDenied
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusNoContent:
		return nil, ErrNotReady
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Newf("snapshot endpoint returned status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode snapshot")
	}
	return img, nil
}
