package catalog

import (
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/song"
)

const audioSourceCount = 30

// audioSources is the fixed pool of externally hosted sample tracks.
var audioSources = func() []string {
	sources := make([]string, audioSourceCount)
	for i := range sources {
		sources[i] = fmt.Sprintf("https://www.soundhelix.com/examples/mp3/SoundHelix-Song-%d.mp3", i+1)
	}
	return sources
}()

var lyricTemplates = map[emotion.Emotion][]string{
	emotion.Happy:     {"Woke up to the sun on my face", "Everything is falling into place", "Singing loud like no one's around", "Feet are barely touching the ground"},
	emotion.Sad:       {"Gray skies and a hollow sound", "The silence is the loudest thing I've found", "Tracing lines on the window pane", "Waiting for the end of the rain"},
	emotion.Neutral:   {"Steady rhythm, simple flow", "Watching how the shadows grow", "Neither here nor really there", "Breath of cold and quiet air"},
	emotion.Angry:     {"Fire rising in the dark", "Looking for a single spark", "Walls are closing, heart is tight", "Gonna break through into light"},
	emotion.Surprised: {"A sudden turn in the open road", "Lighter now, a shifting load", "Eyes wide at the morning light", "What a strange and lovely sight"},
	emotion.Fearful:   {"Shadows dancing on the wall", "Waiting for the leaves to fall", "Safe within this quiet space", "Searching for a familiar face"},
	emotion.Disgusted: {"Bitter taste of a faded dream", "Tearing at the silver seam", "Turning over a brand new leaf", "Finding solace in the brief"},
}

// songHash is a 32-bit rolling string hash (h = h*31 + c) over UTF-16 code units.
// It only depends on the song identity, so a song always maps to the same source.
func songHash(id, artist, title string) int32 {
	key := id + "-" + artist + "-" + title
	var h int32
	for _, c := range utf16.Encode([]rune(key)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// AudioSourceFor returns the sample track URL assigned to the song identity.
func AudioSourceFor(id, artist, title string) string {
	h := int64(songHash(id, artist, title))
	if h < 0 {
		h = -h
	}
	return audioSources[h%audioSourceCount]
}

// newSong builds a catalog song with its derived URL, duration, art and lyrics.
func newSong(id, title, artist string, e emotion.Emotion, genre, year string, topTier bool) song.Song {
	h := songHash(id, artist, title)

	tier := "soulful"
	if topTier {
		tier = "premier"
	}

	lyrics := make([]string, len(lyricTemplates[e]))
	copy(lyrics, lyricTemplates[e])

	return song.Song{
		ID:          id,
		Title:       title,
		Artist:      artist,
		URL:         AudioSourceFor(id, artist, title),
		AlbumArtURL: fmt.Sprintf("https://picsum.photos/seed/%s/600/600", id),
		Duration:    time.Duration(180+int(h%60)) * time.Second,
		Emotion:     e,
		Genre:       genre,
		Year:        year,
		TopTier:     topTier,
		Description: fmt.Sprintf("A %s %s masterpiece that perfectly resonates with a %s state of mind.", tier, genre, e),
		Lyrics:      lyrics,
	}
}
