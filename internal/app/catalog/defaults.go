package catalog

import (
	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/song"
)

// Default returns the shipped catalog.
func Default() *Catalog {
	return New(defaultPlaylists())
}

func defaultPlaylists() map[emotion.Emotion]song.Playlist {
	return map[emotion.Emotion]song.Playlist{
		emotion.Happy: {
			Emotion:     emotion.Happy,
			Title:       "Vibrant Vibes",
			Description: "Uplifting Malayalam hits and bright global rhythms.",
			Songs: []song.Song{
				newSong("ml-h-illu", "Illuminati", "Sushin Shyam (Aavesham)", emotion.Happy, "Malayalam Rap", "2024", true),
				newSong("ml-h-mini", "Mini Maharani", "Premalu", emotion.Happy, "Malayalam Indie", "2024", true),
				newSong("ml-h-jaada", "Jaada", "Aavesham", emotion.Happy, "Malayalam Pop", "2024", true),
				newSong("ml-h-olele", "Olele", "Thallumaala", emotion.Happy, "Malayalam Dance", "2022", true),
				newSong("ml-h-kudu", "Kudukku", "Love Action Drama", emotion.Happy, "Malayalam Dance", "2019", true),
				newSong("h-g-1", "Sunlight", "Elias Thorne", emotion.Happy, "Indie Pop", "2023", false),
				newSong("h-g-2", "Skyward", "Aria Bloom", emotion.Happy, "Folk", "2024", true),
			},
		},
		emotion.Sad: {
			Emotion:     emotion.Sad,
			Title:       "Soulful Rain",
			Description: "Soothing tracks for reflective and quiet moments.",
			Songs: []song.Song{
				newSong("ml-s-uyire", "Uyire", "Gauthamante Radham", emotion.Sad, "Malayalam Ballad", "2020", true),
				newSong("ml-s-malare", "Malare", "Premam", emotion.Sad, "Malayalam Classic", "2015", true),
				newSong("ml-s-kanmizhi", "Kanmizhi", "Charlie", emotion.Sad, "Malayalam Soul", "2015", true),
				newSong("ml-s-kamini", "Kamini", "Anugraheethan Antony", emotion.Sad, "Malayalam Melody", "2021", true),
				newSong("s-g-1", "Afterglow", "Nocturne", emotion.Sad, "Ambient", "2023", false),
				newSong("s-g-2", "Quiet Room", "Sora", emotion.Sad, "Neo-Classical", "2022", true),
			},
		},
		emotion.Neutral: {
			Emotion:     emotion.Neutral,
			Title:       "Balanced Flow",
			Description: "Steady Malayalam melodies for focused concentration.",
			Songs: []song.Song{
				newSong("ml-n-cherat", "Cherathukal", "Kumbalangi Nights", emotion.Neutral, "Malayalam Soul", "2019", true),
				newSong("ml-n-kanmani", "Kanmani Anbodu (Cover)", "Manjummel Boys", emotion.Neutral, "Malayalam Indie", "2024", true),
				newSong("ml-n-aaradh", "Aaradhike", "Ambili", emotion.Neutral, "Malayalam Indie", "2019", true),
				newSong("n-g-1", "Steady State", "Ohm", emotion.Neutral, "Minimalist", "2023", false),
				newSong("n-g-2", "Midday", "The Middles", emotion.Neutral, "Soft Rock", "2024", false),
			},
		},
		emotion.Angry: {
			Emotion:     emotion.Angry,
			Title:       "Inner Fire",
			Description: "Hard-hitting rhythms and powerful vocal layers.",
			Songs: []song.Song{
				newSong("ml-a-galatta", "Galatta", "Aavesham", emotion.Angry, "Malayalam Rock", "2024", true),
				newSong("ml-a-fire", "The Fire Within", "Malayalam Rock Ensemble", emotion.Angry, "Rock", "2023", true),
				newSong("a-g-1", "Thunderclap", "Forge", emotion.Angry, "Alternative Rock", "2024", true),
				newSong("a-g-2", "Vortex", "Viper", emotion.Angry, "Industrial", "2023", false),
			},
		},
		emotion.Surprised: {
			Emotion:     emotion.Surprised,
			Title:       "Sonic Shock",
			Description: "Playful electronic textures and unexpected shifts.",
			Songs: []song.Song{
				newSong("ml-su-kannil", "Kannil Pettole", "Thallumaala", emotion.Surprised, "Electronic", "2022", true),
				newSong("su-g-1", "Neon Pulse", "Magic Mirror", emotion.Surprised, "Experimental", "2024", false),
				newSong("su-g-2", "Flicker", "Neon Dream", emotion.Surprised, "Hyperpop", "2023", true),
			},
		},
		emotion.Fearful: {
			Emotion:     emotion.Fearful,
			Title:       "Safe Harbor",
			Description: "Ambient cinematic scores to provide comfort and security.",
			Songs: []song.Song{
				newSong("ml-f-2018", "Bhoomi", "2018 Movie", emotion.Fearful, "Atmospheric", "2023", true),
				newSong("f-g-1", "Shield", "Guardian", emotion.Fearful, "Choral", "2023", false),
				newSong("f-g-2", "Sanctuary", "The Fortress", emotion.Fearful, "Cinematic", "2024", true),
			},
		},
		emotion.Disgusted: {
			Emotion:     emotion.Disgusted,
			Title:       "Pure Reset",
			Description: "Clean tones and minimalist compositions to reset the mind.",
			Songs: []song.Song{
				newSong("d-g-1", "Crystal Morning", "Verde", emotion.Disgusted, "Modern Classical", "2024", true),
				newSong("d-g-2", "Aquatic", "Aquifer", emotion.Disgusted, "Chillout", "2023", false),
			},
		},
	}
}
