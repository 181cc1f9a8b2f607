package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodmelody/internal/app/capture"
	"github.com/osa030/moodmelody/internal/app/mood"
	"github.com/osa030/moodmelody/internal/app/playback"
	"github.com/osa030/moodmelody/internal/app/session"
	"github.com/osa030/moodmelody/internal/domain/emotion"
)

// maxFrameBytes bounds uploaded camera frames.
const maxFrameBytes = 8 << 20

var (
	errPushUnavailable = errors.New("camera source does not accept pushed frames")
	errSongNotFound    = errors.New("song not found")
	errPlaylistUnknown = errors.New("unknown emotion")
)

type errorResponse struct {
	Error string `json:"error"`
}

type loginRequest struct {
	Name string `json:"name"`
}

type profileRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type favoriteResponse struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

type scanResponse struct {
	Accepted bool `json:"accepted"`
}

type permissionRequest struct {
	Granted bool `json:"granted"`
}

type permissionResponse struct {
	Permission string `json:"permission"`
}

type emotionRequest struct {
	Emotion string `json:"emotion"`
}

type seekRequest struct {
	Seconds float64 `json:"seconds"`
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStatusDTO(h.mood.Status()))
}

func (h *Handler) getCatalog(w http.ResponseWriter, r *http.Request) {
	playlists := h.catalog.Playlists()
	result := make([]PlaylistDTO, len(playlists))
	for i, p := range playlists {
		result[i] = toPlaylistDTO(p)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getPlaylist(w http.ResponseWriter, r *http.Request) {
	e, ok := emotion.Parse(chi.URLParam(r, "emotion"))
	if !ok {
		writeError(w, errPlaylistUnknown)
		return
	}
	writeJSON(w, http.StatusOK, toPlaylistDTO(h.catalog.Playlist(e)))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	u, err := h.mood.Login(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.mood.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	u, err := h.mood.UpdateProfile(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

func (h *Handler) getFavorites(w http.ResponseWriter, r *http.Request) {
	status := h.mood.Status()
	if status.User == nil {
		writeError(w, session.ErrNoUser)
		return
	}
	writeJSON(w, http.StatusOK, toSongDTOs(h.catalog.Songs(status.User.Favorites)))
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.catalog.Find(id); !ok {
		writeError(w, errSongNotFound)
		return
	}
	favorite, err := h.mood.ToggleFavorite(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteResponse{ID: id, Favorite: favorite})
}

func (h *Handler) startStreaming(w http.ResponseWriter, r *http.Request) {
	if err := h.mood.StartStreaming(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(h.mood.Status()))
}

func (h *Handler) stopStreaming(w http.ResponseWriter, r *http.Request) {
	h.mood.StopStreaming()
	writeJSON(w, http.StatusOK, toStatusDTO(h.mood.Status()))
}

func (h *Handler) setPrivacy(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	h.mood.SetPrivacy(req.Enabled)
	writeJSON(w, http.StatusOK, toStatusDTO(h.mood.Status()))
}

func (h *Handler) setAnalysis(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	h.mood.SetAnalysisActive(req.Active)
	writeJSON(w, http.StatusOK, toStatusDTO(h.mood.Status()))
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scanResponse{Accepted: h.mood.ScanNow()})
}

func (h *Handler) setCameraPermission(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		writeError(w, errPushUnavailable)
		return
	}

	var req permissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	p := h.push.SetPermission(req.Granted)
	writeJSON(w, http.StatusOK, permissionResponse{Permission: p.String()})
}

func (h *Handler) pushFrame(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		writeError(w, errPushUnavailable)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxFrameBytes)
	if err := h.push.PushEncoded(body); err != nil {
		if errors.Is(err, capture.ErrNotReady) {
			writeError(w, err)
			return
		}
		writeBadRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setEmotion(w http.ResponseWriter, r *http.Request) {
	var req emotionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	e, ok := emotion.Parse(req.Emotion)
	if !ok {
		writeError(w, errors.Wrapf(playback.ErrInvalidEmotion, "emotion=%q", req.Emotion))
		return
	}
	if err := h.mood.SetEmotion(e); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(h.mood.Status()))
}

func (h *Handler) dismissFeedback(w http.ResponseWriter, r *http.Request) {
	h.mood.DismissFeedback()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) togglePlay(w http.ResponseWriter, r *http.Request) {
	if _, err := h.mood.Playback().TogglePlay(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaybackDTO(h.mood.Playback().Status()))
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	if _, err := h.mood.Playback().Next(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaybackDTO(h.mood.Playback().Status()))
}

func (h *Handler) previous(w http.ResponseWriter, r *http.Request) {
	if _, err := h.mood.Playback().Previous(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaybackDTO(h.mood.Playback().Status()))
}

func (h *Handler) seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	pos := time.Duration(req.Seconds * float64(time.Second))
	if err := h.mood.Playback().Seek(pos); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlaybackDTO(h.mood.Playback().Status()))
}

func (h *Handler) playSong(w http.ResponseWriter, r *http.Request) {
	s, ok := h.catalog.Find(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, errSongNotFound)
		return
	}
	h.mood.Playback().PlaySong(s)
	writeJSON(w, http.StatusOK, toPlaybackDTO(h.mood.Playback().Status()))
}

func (h *Handler) getQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSongDTOs(h.mood.Playback().Queue()))
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSongDTOs(h.mood.Playback().History()))
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Msgf("http: failed to write response: error=%v", err)
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNoUser), errors.Is(err, mood.ErrNotLoggedIn):
		status = http.StatusUnauthorized
	case errors.Is(err, playback.ErrInvalidEmotion):
		status = http.StatusBadRequest
	case errors.Is(err, errSongNotFound), errors.Is(err, errPlaylistUnknown), errors.Is(err, errPushUnavailable):
		status = http.StatusNotFound
	case errors.Is(err, playback.ErrNoSong),
		errors.Is(err, playback.ErrQueueEmpty),
		errors.Is(err, playback.ErrNotPlaying),
		errors.Is(err, playback.ErrNotPaused),
		errors.Is(err, capture.ErrNotReady):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		zlog.Error().Msgf("http: request failed: error=%v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
