// Package catalog provides the emotion-indexed song catalog.
package catalog

import (
	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/song"
)

// Catalog holds exactly one playlist per emotion.
// It is built once at startup and never mutated afterwards.
type Catalog struct {
	playlists map[emotion.Emotion]song.Playlist
	index     map[string]song.Song
}

// New creates a catalog from the given playlists.
// Emotions without a playlist get an empty one.
func New(playlists map[emotion.Emotion]song.Playlist) *Catalog {
	c := &Catalog{
		playlists: make(map[emotion.Emotion]song.Playlist, len(playlists)),
		index:     make(map[string]song.Song),
	}

	for _, e := range emotion.All() {
		p, ok := playlists[e]
		if !ok {
			p = song.Playlist{Emotion: e, Title: string(e)}
		}
		p.Emotion = e
		p.Songs = append(make([]song.Song, 0, len(p.Songs)), p.Songs...)
		c.playlists[e] = p

		for _, s := range p.Songs {
			if _, exists := c.index[s.ID]; !exists {
				c.index[s.ID] = s
			}
		}
	}

	return c
}

// Playlist returns the playlist for the emotion.
// The returned playlist's song slice is a copy.
func (c *Catalog) Playlist(e emotion.Emotion) song.Playlist {
	p, ok := c.playlists[e]
	if !ok {
		return song.Playlist{Emotion: e, Title: string(e), Songs: []song.Song{}}
	}
	p.Songs = append(make([]song.Song, 0, len(p.Songs)), p.Songs...)
	return p
}

// Playlists returns all playlists in emotion order.
func (c *Catalog) Playlists() []song.Playlist {
	result := make([]song.Playlist, 0, len(c.playlists))
	for _, e := range emotion.All() {
		result = append(result, c.Playlist(e))
	}
	return result
}

// AllSongs returns every song of every playlist in emotion order.
func (c *Catalog) AllSongs() []song.Song {
	var songs []song.Song
	for _, e := range emotion.All() {
		songs = append(songs, c.playlists[e].Songs...)
	}
	return songs
}

// Find looks up a song by ID.
func (c *Catalog) Find(id string) (song.Song, bool) {
	s, ok := c.index[id]
	return s, ok
}

// Songs resolves IDs to songs, skipping unknown IDs.
func (c *Catalog) Songs(ids []string) []song.Song {
	result := make([]song.Song, 0, len(ids))
	for _, id := range ids {
		if s, ok := c.index[id]; ok {
			result = append(result, s)
		}
	}
	return result
}
