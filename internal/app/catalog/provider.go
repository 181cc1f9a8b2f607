package catalog

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/song"
)

// Provider imports extra songs for an emotion from an external source.
type Provider interface {
	// Songs returns songs tagged with the given emotion.
	Songs(ctx context.Context, e emotion.Emotion) ([]song.Song, error)

	// Name returns the provider name (used in config).
	Name() string
}

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// ProviderChain runs every provider in order for each emotion.
type ProviderChain struct {
	providers []ProviderWithMetadata
}

// NewProviderChain creates a new provider chain.
func NewProviderChain(providers []ProviderWithMetadata) *ProviderChain {
	return &ProviderChain{
		providers: providers,
	}
}

// Len returns the number of providers in the chain.
func (c *ProviderChain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.providers)
}

// Extend returns a new catalog with the songs of every provider appended to the
// base playlists. Failing providers are skipped, so the base catalog always survives.
func (c *ProviderChain) Extend(ctx context.Context, base *Catalog) *Catalog {
	if c.Len() == 0 {
		return base
	}

	playlists := make(map[emotion.Emotion]song.Playlist, len(emotion.All()))
	for _, e := range emotion.All() {
		p := base.Playlist(e)
		seen := make(map[string]bool, len(p.Songs))
		for _, s := range p.Songs {
			seen[s.ID] = true
		}

		for i, pm := range c.providers {
			if ctx.Err() != nil {
				break
			}

			songs, err := pm.Provider.Songs(ctx, e)
			if err != nil {
				zlog.Warn().Msgf("catalog provider failed, skipping: index=%d provider=%s emotion=%s error=%v",
					i+1, pm.DisplayName, e, err)
				continue
			}

			added := 0
			for _, s := range songs {
				if seen[s.ID] {
					continue
				}
				// Imported songs always belong to the playlist they were imported for
				s.Emotion = e
				seen[s.ID] = true
				p.Songs = append(p.Songs, s)
				added++
			}
			zlog.Info().Msgf("catalog provider imported songs: provider=%s emotion=%s count=%d",
				pm.DisplayName, e, added)
		}
		playlists[e] = p
	}

	return New(playlists)
}
