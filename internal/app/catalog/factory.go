package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodmelody/internal/infra/config"
	"github.com/osa030/moodmelody/internal/infra/spotify"
)

// NewProviderChainFromConfig creates a provider chain from configuration.
// An empty provider list yields an empty chain.
func NewProviderChainFromConfig(ctx context.Context, cfg *config.Config) (*ProviderChain, error) {
	var providers []ProviderWithMetadata
	var spotifyClient SpotifyClient

	for i, pcfg := range cfg.Catalog.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating catalog provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "spotify":
			if spotifyClient == nil {
				spotifyClient, err = spotify.New(ctx, spotify.Config{
					ClientID:     cfg.Spotify.ClientID,
					ClientSecret: cfg.Spotify.ClientSecret,
					Market:       cfg.Spotify.Market,
				})
				if err != nil {
					return nil, errors.Wrap(err, "failed to create spotify client")
				}
			}
			provider, err = NewSpotifyProvider(spotifyClient, pcfg.Settings)

		case "lastfm":
			provider, err = NewLastFmProvider(pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("registered catalog provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewProviderChain(providers), nil
}
