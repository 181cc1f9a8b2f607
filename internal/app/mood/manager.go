// Package mood connects emotion detection to playback and broadcasts what changed.
package mood

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodmelody/internal/app/detector"
	"github.com/osa030/moodmelody/internal/app/notification"
	"github.com/osa030/moodmelody/internal/app/playback"
	"github.com/osa030/moodmelody/internal/app/session"
	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/domain/user"
	"github.com/osa030/moodmelody/internal/infra/inference"
)

// ErrNotLoggedIn is returned when streaming is requested without a user.
var ErrNotLoggedIn = errors.New("login required")

// Config holds manager configuration.
type Config struct {
	FeedbackTimeout time.Duration           // Auto-dismiss delay for the check-in nudge
	Metrics         func() inference.Metrics // Optional inference metrics source
}

// Status is a snapshot of the whole player.
type Status struct {
	User      *user.User
	Detector  detector.Status
	Playback  playback.Status
	Feedback  bool
	Inference *inference.Metrics
}

// Manager owns the streaming lifecycle and feeds observations to playback.
type Manager struct {
	mu sync.RWMutex

	config Config

	// Components
	detector     *detector.Detector
	playback     *playback.Controller
	session      *session.Store
	notification *notification.Manager

	// Feedback nudge
	feedback      bool
	feedbackGen   uint64
	feedbackTimer *time.Timer

	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new mood manager.
func NewManager(
	det *detector.Detector,
	pb *playback.Controller,
	sess *session.Store,
	config Config,
) *Manager {
	if config.FeedbackTimeout <= 0 {
		config.FeedbackTimeout = 12 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:       config,
		detector:     det,
		playback:     pb,
		session:      sess,
		notification: notification.NewManager(),
		ctx:          ctx,
		cancel:       cancel,
	}

	sess.OnLogout(pb.ClearHistory)

	return m
}

// Start starts the detector and the event loops.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.detector.Start(ctx)

	m.wg.Add(3)
	go m.observationLoop()
	go m.detectorLoop()
	go m.playbackLoop()

	zlog.Info().Msg("mood: manager started")
}

// Close stops the detector, the loops and the feedback timer.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.feedbackTimer != nil {
		m.feedbackTimer.Stop()
		m.feedbackTimer = nil
	}
	m.mu.Unlock()

	m.cancel()
	m.detector.Stop()
	m.wg.Wait()
	m.notification.Close()
}

// NotificationManager returns the notification manager.
func (m *Manager) NotificationManager() *notification.Manager {
	return m.notification
}

// Playback returns the playback controller.
func (m *Manager) Playback() *playback.Controller {
	return m.playback
}

// Login signs a user in.
func (m *Manager) Login(ctx context.Context, name string) (*user.User, error) {
	u, err := m.session.Login(ctx, name)
	if err != nil {
		return nil, err
	}
	m.broadcast(notification.TypeSessionChanged, "")
	return u, nil
}

// Logout signs the user out, stops streaming and clears history.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.session.Logout(ctx); err != nil {
		return err
	}
	m.StopStreaming()
	m.broadcast(notification.TypeSessionChanged, "")
	return nil
}

// UpdateProfile edits the signed-in user's profile.
func (m *Manager) UpdateProfile(ctx context.Context, name, description string) (*user.User, error) {
	u, err := m.session.UpdateProfile(ctx, name, description)
	if err != nil {
		return nil, err
	}
	m.broadcast(notification.TypeSessionChanged, "")
	return u, nil
}

// ToggleFavorite flips a song in the user's favorites; a no-op without a user.
func (m *Manager) ToggleFavorite(ctx context.Context, songID string) (bool, error) {
	if !m.session.LoggedIn() {
		return false, nil
	}
	favorite, err := m.session.ToggleFavorite(ctx, songID)
	if err != nil {
		return favorite, err
	}
	m.broadcast(notification.TypeSessionChanged, "")
	return favorite, nil
}

// StartStreaming acquires the camera and builds the queue for the current emotion.
func (m *Manager) StartStreaming() error {
	if !m.session.LoggedIn() {
		return ErrNotLoggedIn
	}

	m.detector.SetStreaming(true)
	m.playback.EnsureQueue(m.gates())

	zlog.Info().Msg("mood: streaming started")
	m.broadcast(notification.TypeStreamingChanged, "")
	return nil
}

// StopStreaming releases the camera. Playback is left as it is.
func (m *Manager) StopStreaming() {
	if !m.detector.Status().Streaming {
		return
	}
	m.detector.SetStreaming(false)

	zlog.Info().Msg("mood: streaming stopped")
	m.broadcast(notification.TypeStreamingChanged, "")
}

// SetPrivacy enables or disables privacy mode.
func (m *Manager) SetPrivacy(on bool) {
	if m.detector.Status().Privacy == on {
		return
	}
	m.detector.SetPrivacy(on)
	if !on && m.session.LoggedIn() {
		m.playback.EnsureQueue(m.gates())
	}

	zlog.Info().Msgf("mood: privacy mode changed: enabled=%v", on)
	m.broadcast(notification.TypePrivacyChanged, "")
}

// TogglePrivacy flips privacy mode and returns the new value.
func (m *Manager) TogglePrivacy() bool {
	on := !m.detector.Status().Privacy
	m.SetPrivacy(on)
	return on
}

// SetAnalysisActive pauses or resumes scanning.
func (m *Manager) SetAnalysisActive(active bool) {
	m.detector.SetAnalysisActive(active)
	m.broadcast(notification.TypeScanState, "")
}

// ScanNow requests an immediate scan. It returns false when the request was dropped.
func (m *Manager) ScanNow() bool {
	return m.detector.ScanNow()
}

// SetEmotion is the manual override. It clears the check-in nudge.
func (m *Manager) SetEmotion(e emotion.Emotion) error {
	if err := m.playback.SetEmotion(e); err != nil {
		return err
	}
	m.DismissFeedback()
	return nil
}

// DismissFeedback hides the check-in nudge.
func (m *Manager) DismissFeedback() {
	m.mu.Lock()
	if !m.feedback {
		m.mu.Unlock()
		return
	}
	m.clearFeedbackLocked()
	m.mu.Unlock()

	m.broadcast(notification.TypeFeedbackDismissed, "")
}

// Status returns a snapshot of the player.
func (m *Manager) Status() Status {
	m.mu.RLock()
	feedback := m.feedback
	m.mu.RUnlock()

	status := Status{
		Detector: m.detector.Status(),
		Playback: m.playback.Status(),
		Feedback: feedback,
	}
	if u, ok := m.session.Current(); ok {
		status.User = u
	}
	if m.config.Metrics != nil {
		metrics := m.config.Metrics()
		status.Inference = &metrics
	}
	return status
}

func (m *Manager) gates() playback.Gates {
	st := m.detector.Status()
	return playback.Gates{Streaming: st.Streaming, Privacy: st.Privacy}
}

// observationLoop is the single consumer of detector observations.
func (m *Manager) observationLoop() {
	defer m.wg.Done()

	for obs := range m.detector.Observations() {
		m.onObservation(obs)
	}
}

func (m *Manager) onObservation(obs detector.Observation) {
	if !m.session.LoggedIn() {
		return
	}

	if m.playback.OnEmotion(obs.Emotion, m.gates()) {
		zlog.Info().Msgf("mood: emotion observed: emotion=%s confidence=%.2f", obs.Emotion, obs.Confidence)
		m.raiseFeedback()
	}
}

// raiseFeedback shows the check-in nudge and schedules its dismissal.
func (m *Manager) raiseFeedback() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.clearFeedbackLocked()
	m.feedback = true
	gen := m.feedbackGen
	m.feedbackTimer = time.AfterFunc(m.config.FeedbackTimeout, func() {
		m.mu.Lock()
		if gen != m.feedbackGen || !m.feedback {
			m.mu.Unlock()
			return
		}
		m.clearFeedbackLocked()
		m.mu.Unlock()

		m.broadcast(notification.TypeFeedbackDismissed, "")
	})
	m.mu.Unlock()

	m.broadcast(notification.TypeFeedbackNudge, "")
}

// clearFeedbackLocked hides the nudge and invalidates its timer.
// Must be called with lock held.
func (m *Manager) clearFeedbackLocked() {
	m.feedback = false
	m.feedbackGen++
	if m.feedbackTimer != nil {
		m.feedbackTimer.Stop()
		m.feedbackTimer = nil
	}
}

// detectorLoop forwards detector events.
func (m *Manager) detectorLoop() {
	defer m.wg.Done()

	for ev := range m.detector.Events() {
		m.handleDetectorEvent(ev)
	}
}

func (m *Manager) handleDetectorEvent(ev detector.Event) {
	switch ev.Type {
	case detector.EventStateChanged:
		m.broadcast(notification.TypeScanState, "")
	case detector.EventQuotaExceeded:
		zlog.Warn().Msgf("mood: inference quota exceeded: message=%s", ev.Message)
		m.broadcast(notification.TypeQuotaExceeded, ev.Message)
	case detector.EventPermissionChanged:
		m.broadcast(notification.TypeCameraPermission, ev.Permission.String())
	case detector.EventCameraChanged:
		m.broadcast(notification.TypeCameraState, "")
	}
}

// playbackLoop forwards playback events.
func (m *Manager) playbackLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("mood: playback loop panicked: %v", r)
		}
		m.wg.Done()
	}()

	events := m.playback.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handlePlaybackEvent(ev)
		}
	}
}

func (m *Manager) handlePlaybackEvent(ev playback.Event) {
	switch ev.Type {
	case playback.EventSongStarted:
		m.broadcast(notification.TypeSongStarted, "")
	case playback.EventStateChanged:
		m.broadcast(notification.TypePlaybackState, ev.State.String())
	case playback.EventQueueRebuilt:
		m.broadcast(notification.TypeQueueRebuilt, "")
	case playback.EventEmotionChanged:
		m.broadcast(notification.TypeEmotionChanged, ev.Emotion.String())
	case playback.EventPlaybackError:
		m.broadcast(notification.TypePlaybackError, ev.Message)
	}
}

func (m *Manager) broadcast(t notification.Type, message string) {
	m.notification.Broadcast(&notification.Notification{
		Type:    t,
		Message: message,
		Status:  m.Status(),
	})
}
