package spotify

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{ClientID: "id"})
	assert.Error(t, err)

	c, err := New(context.Background(), Config{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "IN", c.market)
}

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Spotify URI format",
			input:    "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL with query params",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Localized URL",
			input:    "https://open.spotify.com/intl-ja/playlist/abc123/",
			expected: "abc123",
		},
		{
			name:     "Plain playlist ID",
			input:    "  37i9dQZF1DXcBWIGoYBM5M ",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractPlaylistID(tt.input))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "rate limit", err: spotify.Error{Message: "rate limit exceeded", Status: 429}, expected: true},
		{name: "server error", err: spotify.Error{Message: "service unavailable", Status: 503}, expected: true},
		{name: "wrapped server error", err: errors.Wrap(spotify.Error{Status: 502}, "get playlist"), expected: true},
		{name: "client error", err: spotify.Error{Message: "bad request", Status: 400}, expected: false},
		{name: "generic error", err: errors.New("503 something went wrong"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

func TestRetry(t *testing.T) {
	c := &Client{maxRetries: 3, retryDelay: time.Millisecond}

	ctx := context.Background()

	calls := 0
	err := c.retry(ctx, func() error {
		calls++
		if calls < 3 {
			return spotify.Error{Message: "service unavailable", Status: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = c.retry(ctx, func() error {
		calls++
		return spotify.Error{Message: "not found", Status: 404}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = c.retry(ctx, func() error {
		calls++
		return spotify.Error{Message: "rate limit", Status: 429}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	c := &Client{maxRetries: 3, retryDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := c.retry(ctx, func() error {
		calls++
		return spotify.Error{Status: 500}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestConvertTrack(t *testing.T) {
	ft := &spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			ID:       "t1",
			Name:     "Illuminati",
			Duration: 150500,
			Artists: []spotify.SimpleArtist{
				{Name: "Sushin Shyam"},
				{Name: "Dabzee"},
			},
		},
		Album: spotify.SimpleAlbum{
			ReleaseDate: "2024-03-01",
			Images:      []spotify.Image{{URL: "https://i.scdn.co/image/x"}},
		},
	}

	tr := convertTrack(ft)
	assert.Equal(t, "t1", tr.ID)
	assert.Equal(t, "Illuminati", tr.Name)
	assert.Equal(t, "Sushin Shyam, Dabzee", tr.Artist)
	assert.Equal(t, 150500*time.Millisecond, tr.Duration)
	assert.Equal(t, "2024", tr.Year)
	assert.Equal(t, "https://i.scdn.co/image/x", tr.AlbumArtURL)
}

func TestReleaseYear(t *testing.T) {
	assert.Equal(t, "1999", releaseYear("1999"))
	assert.Equal(t, "2015", releaseYear("2015-07"))
	assert.Equal(t, "", releaseYear("99"))
}
