package playback

import (
	"math/rand"
	"sort"

	"github.com/osa030/moodmelody/internal/domain/song"
)

// Shuffler randomizes songs in place.
type Shuffler func(songs []song.Song)

// RandomShuffle is the default Shuffler.
func RandomShuffle(songs []song.Song) {
	rand.Shuffle(len(songs), func(i, j int) {
		songs[i], songs[j] = songs[j], songs[i]
	})
}

// buildQueue orders a playlist's songs: top-tier first, random order within each tier.
func buildQueue(songs []song.Song, shuffle Shuffler) []song.Song {
	queue := make([]song.Song, len(songs))
	copy(queue, songs)
	if shuffle != nil {
		shuffle(queue)
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].TopTier && !queue[j].TopTier
	})
	return queue
}

// nextIndex advances circularly. An absent current song (-1) lands on the head.
func nextIndex(current, length int) int {
	return (current + 1) % length
}

// previousIndex moves circularly backward. An absent current song (-1) lands one
// before the tail, and on the head of a single-song queue.
func previousIndex(current, length int) int {
	return (current - 1 + length) % length
}
