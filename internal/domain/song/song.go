// Package song provides the Song and Playlist domain entities.
package song

import (
	"time"

	"github.com/osa030/moodmelody/internal/domain/emotion"
)

// Song represents a catalog entry.
type Song struct {
	ID          string          // Catalog ID
	Title       string          // Song title
	Artist      string          // Artist name
	URL         string          // Audio source URL
	AlbumArtURL string          // Album art URL
	Duration    time.Duration   // Track duration
	Emotion     emotion.Emotion // Emotion tag
	Genre       string          // Genre
	Year        string          // Release year
	Description string          // Short blurb
	Lyrics      []string        // Lyric lines
	TopTier     bool            // Curated priority hint
}

// Playlist is the ordered song list for one emotion.
type Playlist struct {
	Emotion     emotion.Emotion
	Title       string
	Description string
	Songs       []Song
}

// SongIDs returns all song IDs in the playlist.
func (p *Playlist) SongIDs() []string {
	ids := make([]string, len(p.Songs))
	for i, s := range p.Songs {
		ids[i] = s.ID
	}
	return ids
}

// TotalDuration returns the total duration of all songs.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Songs {
		total += s.Duration
	}
	return total
}

// TopTierCount returns the number of top-tier songs.
func (p *Playlist) TopTierCount() int {
	count := 0
	for _, s := range p.Songs {
		if s.TopTier {
			count++
		}
	}
	return count
}

// IndexOf returns the position of the song with the given ID, or -1.
func IndexOf(songs []Song, id string) int {
	for i, s := range songs {
		if s.ID == id {
			return i
		}
	}
	return -1
}
