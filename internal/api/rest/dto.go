package rest

import (
	"time"

	"github.com/osa030/moodmelody/internal/app/detector"
	"github.com/osa030/moodmelody/internal/app/mood"
	"github.com/osa030/moodmelody/internal/app/notification"
	"github.com/osa030/moodmelody/internal/app/playback"
	"github.com/osa030/moodmelody/internal/domain/song"
	"github.com/osa030/moodmelody/internal/domain/user"
	"github.com/osa030/moodmelody/internal/infra/inference"
)

// SongDTO is the wire form of a song.
type SongDTO struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	URL         string   `json:"url"`
	AlbumArtURL string   `json:"album_art_url"`
	Duration    int      `json:"duration"` // seconds
	Emotion     string   `json:"emotion"`
	Genre       string   `json:"genre"`
	Year        string   `json:"year"`
	Description string   `json:"description"`
	Lyrics      []string `json:"lyrics"`
	TopTier     bool     `json:"top_tier"`
}

// PlaylistDTO is the wire form of a playlist.
type PlaylistDTO struct {
	Emotion     string    `json:"emotion"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Songs       []SongDTO `json:"songs"`
}

// UserDTO is the wire form of the signed-in user.
type UserDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Description string   `json:"description"`
	JoinedDate  string   `json:"joined_date"`
	Favorites   []string `json:"favorites"`
}

// PlaybackDTO is the wire form of the playback state.
type PlaybackDTO struct {
	State       string   `json:"state"`
	Playing     bool     `json:"playing"`
	Emotion     string   `json:"emotion"`
	Current     *SongDTO `json:"current,omitempty"`
	Position    float64  `json:"position"` // seconds
	Duration    float64  `json:"duration"` // seconds
	QueueLength int      `json:"queue_length"`
}

// ObservationDTO is the wire form of a detector observation.
type ObservationDTO struct {
	Emotion    string    `json:"emotion"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// DetectorDTO is the wire form of the detector state.
type DetectorDTO struct {
	State           string          `json:"state"`
	Streaming       bool            `json:"streaming"`
	Privacy         bool            `json:"privacy"`
	AnalysisActive  bool            `json:"analysis_active"`
	Permission      string          `json:"permission"`
	CameraOpen      bool            `json:"camera_open"`
	Notice          string          `json:"notice,omitempty"`
	CooldownUntil   *time.Time      `json:"cooldown_until,omitempty"`
	LastScanAt      *time.Time      `json:"last_scan_at,omitempty"`
	LastObservation *ObservationDTO `json:"last_observation,omitempty"`
}

// StatusDTO is the full snapshot.
type StatusDTO struct {
	User      *UserDTO           `json:"user"`
	Playback  PlaybackDTO        `json:"playback"`
	Detector  DetectorDTO        `json:"detector"`
	Feedback  bool               `json:"feedback"`
	Inference *inference.Metrics `json:"inference,omitempty"`
}

// NotificationDTO is the wire form of a notification.
type NotificationDTO struct {
	Type       string     `json:"type"`
	SequenceNo uint64     `json:"sequence_no"`
	Message    string     `json:"message,omitempty"`
	At         time.Time  `json:"at"`
	Status     *StatusDTO `json:"status,omitempty"`
}

func toSongDTO(s song.Song) SongDTO {
	lyrics := s.Lyrics
	if lyrics == nil {
		lyrics = []string{}
	}
	return SongDTO{
		ID:          s.ID,
		Title:       s.Title,
		Artist:      s.Artist,
		URL:         s.URL,
		AlbumArtURL: s.AlbumArtURL,
		Duration:    int(s.Duration / time.Second),
		Emotion:     s.Emotion.String(),
		Genre:       s.Genre,
		Year:        s.Year,
		Description: s.Description,
		Lyrics:      lyrics,
		TopTier:     s.TopTier,
	}
}

func toSongDTOs(songs []song.Song) []SongDTO {
	result := make([]SongDTO, len(songs))
	for i, s := range songs {
		result[i] = toSongDTO(s)
	}
	return result
}

func toPlaylistDTO(p song.Playlist) PlaylistDTO {
	return PlaylistDTO{
		Emotion:     p.Emotion.String(),
		Title:       p.Title,
		Description: p.Description,
		Songs:       toSongDTOs(p.Songs),
	}
}

func toUserDTO(u *user.User) *UserDTO {
	if u == nil {
		return nil
	}
	favorites := u.Favorites
	if favorites == nil {
		favorites = []string{}
	}
	return &UserDTO{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Description: u.Description,
		JoinedDate:  u.JoinedDate,
		Favorites:   favorites,
	}
}

func toPlaybackDTO(s playback.Status) PlaybackDTO {
	dto := PlaybackDTO{
		State:       s.State.String(),
		Playing:     s.Playing(),
		Emotion:     s.Emotion.String(),
		Position:    s.Position.Seconds(),
		Duration:    s.Duration.Seconds(),
		QueueLength: s.QueueLength,
	}
	if s.Current != nil {
		cur := toSongDTO(*s.Current)
		dto.Current = &cur
	}
	return dto
}

func toDetectorDTO(s detector.Status) DetectorDTO {
	dto := DetectorDTO{
		State:          s.State.String(),
		Streaming:      s.Streaming,
		Privacy:        s.Privacy,
		AnalysisActive: s.AnalysisActive,
		Permission:     s.Permission.String(),
		CameraOpen:     s.CameraOpen,
		Notice:         s.Notice,
		CooldownUntil:  optionalTime(s.CooldownUntil),
		LastScanAt:     optionalTime(s.LastScanAt),
	}
	if s.LastObservation != nil {
		dto.LastObservation = &ObservationDTO{
			Emotion:    s.LastObservation.Emotion.String(),
			Confidence: s.LastObservation.Confidence,
			At:         s.LastObservation.At,
		}
	}
	return dto
}

func toStatusDTO(s mood.Status) *StatusDTO {
	return &StatusDTO{
		User:      toUserDTO(s.User),
		Playback:  toPlaybackDTO(s.Playback),
		Detector:  toDetectorDTO(s.Detector),
		Feedback:  s.Feedback,
		Inference: s.Inference,
	}
}

func toNotificationDTO(n *notification.Notification) NotificationDTO {
	dto := NotificationDTO{
		Type:       string(n.Type),
		SequenceNo: n.SequenceNo,
		Message:    n.Message,
		At:         n.At,
	}
	if status, ok := n.Status.(mood.Status); ok {
		dto.Status = toStatusDTO(status)
	}
	return dto
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
