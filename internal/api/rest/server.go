// Package rest provides the HTTP API of the player.
package rest

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodmelody/internal/app/capture"
	"github.com/osa030/moodmelody/internal/app/catalog"
	"github.com/osa030/moodmelody/internal/app/mood"
)

// APITokenHeader is the header name for the API token.
const APITokenHeader = "X-Api-Token"

// Handler serves the HTTP API.
type Handler struct {
	mood      *mood.Manager
	catalog   *catalog.Catalog
	push      *capture.PushSource // nil unless the camera source is push
	apiToken  string
	keepAlive time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithPushSource enables the camera permission and frame endpoints.
func WithPushSource(push *capture.PushSource) Option {
	return func(h *Handler) {
		h.push = push
	}
}

// WithAPIToken requires the token on every request.
func WithAPIToken(token string) Option {
	return func(h *Handler) {
		h.apiToken = token
	}
}

// NewHandler creates a new API handler.
func NewHandler(m *mood.Manager, c *catalog.Catalog, opts ...Option) *Handler {
	h := &Handler{
		mood:      m,
		catalog:   c,
		keepAlive: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if h.apiToken != "" {
		r.Use(h.requireToken)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.getStatus)
		r.Get("/catalog", h.getCatalog)
		r.Get("/catalog/{emotion}", h.getPlaylist)

		r.Route("/session", func(r chi.Router) {
			r.Post("/login", h.login)
			r.Post("/logout", h.logout)
			r.Patch("/profile", h.updateProfile)
			r.Get("/favorites", h.getFavorites)
			r.Post("/favorites/{id}", h.toggleFavorite)
		})

		r.Post("/streaming/start", h.startStreaming)
		r.Post("/streaming/stop", h.stopStreaming)
		r.Post("/privacy", h.setPrivacy)
		r.Post("/analysis", h.setAnalysis)
		r.Post("/scan", h.scan)
		r.Post("/camera/permission", h.setCameraPermission)
		r.Post("/camera/frame", h.pushFrame)
		r.Post("/emotion", h.setEmotion)
		r.Post("/feedback/dismiss", h.dismissFeedback)

		r.Route("/player", func(r chi.Router) {
			r.Post("/toggle", h.togglePlay)
			r.Post("/next", h.next)
			r.Post("/previous", h.previous)
			r.Post("/seek", h.seek)
			r.Post("/play/{id}", h.playSong)
			r.Get("/queue", h.getQueue)
			r.Get("/history", h.getHistory)
		})

		r.Get("/events", h.events)
	})

	return r
}

// requireToken rejects requests without the configured API token.
// EventSource clients cannot set headers, so the token is also accepted as a query parameter.
func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(APITokenHeader)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.apiToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		zlog.Debug().Msgf("http: request: method=%s path=%s status=%d bytes=%d duration=%v request_id=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
