// Package spotify provides a read-only client for the Spotify Web API.
package spotify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// Client is a Spotify API client authenticated with the client credentials flow.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// Track is the subset of a Spotify track the catalog imports.
type Track struct {
	ID          string
	Name        string
	Artist      string
	AlbumArtURL string
	Duration    time.Duration
	Year        string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	market := cfg.Market
	if market == "" {
		market = "IN"
	}

	return &Client{
		client:     spotify.New(creds.Client(ctx)),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetPlaylistTracks retrieves up to limit tracks from a playlist.
// A limit of zero or less fetches the whole playlist.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistURL string, limit int) ([]Track, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var tracks []Track
	offset := 0
	pageSize := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(pageSize),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Episodes have no Track
			if item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			tracks = append(tracks, convertTrack(item.Track.Track))
			if limit > 0 && len(tracks) >= limit {
				return tracks, nil
			}
		}

		if len(page.Items) < pageSize {
			break
		}
		offset += pageSize
	}

	return tracks, nil
}

func convertTrack(t *spotify.FullTrack) Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	return Track{
		ID:          string(t.ID),
		Name:        t.Name,
		Artist:      strings.Join(artists, ", "),
		AlbumArtURL: albumArt,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		Year:        releaseYear(t.Album.ReleaseDate),
	}
}

// releaseYear takes the year part of a release date with year, month or day precision.
func releaseYear(date string) string {
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}

// retry runs fn again with linear backoff while Spotify reports a transient failure.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == c.maxRetries {
			break
		}

		zlog.Debug().Msgf("spotify: transient error, retrying: attempt=%d error=%v", attempt, lastErr)
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "spotify request cancelled")
		case <-time.After(c.retryDelay * time.Duration(attempt)):
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable reports whether err is a Spotify rate limit or server error.
func isRetryable(err error) bool {
	var apiErr spotify.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
}

// extractPlaylistID accepts a playlist ID, a spotify:playlist: URI or an open.spotify.com URL.
func extractPlaylistID(input string) string {
	input = strings.TrimSpace(input)
	if id, ok := strings.CutPrefix(input, "spotify:playlist:"); ok {
		return id
	}

	u, err := url.Parse(input)
	if err != nil || u.Host != "open.spotify.com" {
		return input
	}
	// Path is /playlist/ID or /intl-xx/playlist/ID
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "playlist" {
			return segments[i+1]
		}
	}
	return ""
}
