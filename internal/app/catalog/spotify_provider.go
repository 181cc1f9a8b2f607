package catalog

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/song"
	"github.com/osa030/moodmelody/internal/infra/spotify"
)

// SpotifyClient defines the Spotify operations needed by the spotify provider.
type SpotifyClient interface {
	GetPlaylistTracks(ctx context.Context, playlistURL string, limit int) ([]spotify.Track, error)
}

type SpotifyProviderConfig struct {
	// Playlists maps an emotion label to a playlist URL, URI or ID.
	Playlists map[string]string `mapstructure:"playlists" validate:"required,min=1"`
	Limit     int               `mapstructure:"limit" default:"10" validate:"gte=1,lte=100"`
	TopTier   bool              `mapstructure:"top_tier"`
}

// SpotifyProvider imports songs from one Spotify playlist per emotion.
type SpotifyProvider struct {
	spotify   SpotifyClient
	playlists map[emotion.Emotion]string
	config    *SpotifyProviderConfig
}

// NewSpotifyProvider creates a new SpotifyProvider.
func NewSpotifyProvider(client SpotifyClient, settings map[string]any) (*SpotifyProvider, error) {
	if client == nil {
		return nil, errors.New("spotify client is required")
	}

	var config SpotifyProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("spotify provider config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	playlists := make(map[emotion.Emotion]string, len(config.Playlists))
	for label, url := range config.Playlists {
		e, ok := emotion.Parse(label)
		if !ok {
			return nil, errors.Newf("unknown emotion in playlists: %s", label)
		}
		playlists[e] = url
	}

	return &SpotifyProvider{
		spotify:   client,
		playlists: playlists,
		config:    &config,
	}, nil
}

// Songs returns the songs of the playlist configured for the emotion.
func (p *SpotifyProvider) Songs(ctx context.Context, e emotion.Emotion) ([]song.Song, error) {
	url, ok := p.playlists[e]
	if !ok {
		return nil, nil
	}

	tracks, err := p.spotify.GetPlaylistTracks(ctx, url, p.config.Limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to import spotify playlist for %s", e)
	}

	songs := make([]song.Song, 0, len(tracks))
	for _, t := range tracks {
		s := newSong("sp-"+t.ID, t.Name, t.Artist, e, "Spotify", t.Year, p.config.TopTier)
		if t.AlbumArtURL != "" {
			s.AlbumArtURL = t.AlbumArtURL
		}
		if t.Duration > 0 {
			s.Duration = t.Duration
		}
		s.Description = fmt.Sprintf("Imported from Spotify for a %s state of mind.", e)
		songs = append(songs, s)
	}
	return songs, nil
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return "spotify"
}
