package catalog

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/song"
	"github.com/osa030/moodmelody/internal/infra/lastfm"
)

// LastFmClient defines the Last.fm operations needed by the lastfm provider.
type LastFmClient interface {
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
}

type LastFmProviderConfig struct {
	APIKey string `mapstructure:"api_key" validate:"required"`
	// Tags maps an emotion label to a Last.fm tag. Unmapped emotions use the label itself.
	Tags  map[string]string `mapstructure:"tags"`
	Limit int               `mapstructure:"limit" default:"5" validate:"gte=1,lte=100"`
}

// LastFmProvider imports the top tracks of a tag per emotion.
type LastFmProvider struct {
	lastfm LastFmClient
	config *LastFmProviderConfig
}

// NewLastFmProvider creates a new LastFmProvider from raw settings.
func NewLastFmProvider(settings map[string]any) (*LastFmProvider, error) {
	config, err := decodeLastFmConfig(settings)
	if err != nil {
		return nil, err
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return newLastFmProvider(client, config), nil
}

func newLastFmProvider(client LastFmClient, config *LastFmProviderConfig) *LastFmProvider {
	return &LastFmProvider{
		lastfm: client,
		config: config,
	}
}

func decodeLastFmConfig(settings map[string]any) (*LastFmProviderConfig, error) {
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	for label := range config.Tags {
		if _, ok := emotion.Parse(label); !ok {
			return nil, errors.Newf("unknown emotion in tags: %s", label)
		}
	}
	return &config, nil
}

// Songs returns the top tracks of the tag mapped to the emotion.
func (p *LastFmProvider) Songs(ctx context.Context, e emotion.Emotion) ([]song.Song, error) {
	tag := string(e)
	if t, ok := p.config.Tags[tag]; ok && t != "" {
		tag = t
	}

	tracks, err := p.lastfm.GetTopTracks(ctx, tag, p.config.Limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to import last.fm tag %s", tag)
	}

	songs := make([]song.Song, 0, len(tracks))
	for _, t := range tracks {
		id := fmt.Sprintf("lfm-%08x", uint32(songHash(tag, t.Artist, t.Name)))
		s := newSong(id, t.Name, t.Artist, e, tag, "", false)
		if t.ImageURL != "" {
			s.AlbumArtURL = t.ImageURL
		}
		if t.Duration > 0 {
			s.Duration = t.Duration
		}
		songs = append(songs, s)
	}
	return songs, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}
