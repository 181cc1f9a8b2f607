package detector

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodmelody/internal/app/capture"
	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/infra/inference"
)

// QuotaNotice is published when a quota error pauses scanning.
const QuotaNotice = "AI processing limit reached. Paused for 30s."

// Capturer produces a base64 JPEG of the current camera frame.
type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

// Classifier turns a base64 JPEG into an emotion.
type Classifier interface {
	Classify(ctx context.Context, frame string) (emotion.Emotion, float64, error)
}

// Config holds detector configuration.
type Config struct {
	Interval    time.Duration // Time between scheduled scans
	Cooldown    time.Duration // Pause after a quota error
	Threshold   float64       // Observations must be strictly above this confidence
	ScanTimeout time.Duration // Upper bound for one capture and classification
}

// Detector runs the capture and classification loop.
type Detector struct {
	mu sync.Mutex

	source     capture.Source
	capturer   Capturer
	classifier Classifier
	config     Config

	// Gates
	state          State
	streaming      bool
	privacy        bool
	analysisActive bool
	permission     capture.Permission

	// Camera
	cameraOpen bool
	openCancel context.CancelFunc
	sessionGen uint64 // Bumped whenever the camera is released

	// Cooldown
	cooldownTimer *time.Timer
	cooldownUntil time.Time
	notice        string

	lastScanAt      time.Time
	lastObservation *Observation

	observations chan Observation
	eventCh      chan Event

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool

	now func() time.Time
}

// New creates a new detector.
func New(source capture.Source, capturer Capturer, classifier Classifier, config Config) *Detector {
	if config.Interval <= 0 {
		config.Interval = 20 * time.Second
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = config.Interval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Detector{
		source:         source,
		capturer:       capturer,
		classifier:     classifier,
		config:         config,
		state:          StateIdle,
		analysisActive: true,
		permission:     capture.PermissionPrompt,
		observations:   make(chan Observation, 16),
		eventCh:        make(chan Event, 32),
		ctx:            ctx,
		cancel:         cancel,
		now:            time.Now,
	}
}

// Observations returns the observation channel. It has a single consumer.
func (d *Detector) Observations() <-chan Observation {
	return d.observations
}

// Events returns the event channel.
func (d *Detector) Events() <-chan Event {
	return d.eventCh
}

// Start runs the scheduled scan loop until ctx is done or Stop is called.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started || d.stopped {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(d.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				d.trigger("scheduled")
			}
		}
	}()
}

// Stop stops the loop, releases the camera and waits for in-flight scans.
// The observation and event channels are closed afterwards.
func (d *Detector) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.cancel()
	if d.cooldownTimer != nil {
		d.cooldownTimer.Stop()
		d.cooldownTimer = nil
	}
	d.releaseCameraLocked()
	d.mu.Unlock()

	d.wg.Wait()
	close(d.observations)
	close(d.eventCh)
}

// ScanNow requests an immediate scan. It returns false when the request was dropped.
func (d *Detector) ScanNow() bool {
	return d.trigger("manual")
}

// SetStreaming enables or disables streaming mode.
// The camera is acquired when streaming starts and released when it stops.
func (d *Detector) SetStreaming(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.streaming == on {
		return
	}
	d.streaming = on
	d.syncCameraLocked()
}

// SetPrivacy enables or disables privacy mode.
// In privacy mode the camera is released and late results are discarded.
func (d *Detector) SetPrivacy(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.privacy == on {
		return
	}
	d.privacy = on
	d.syncCameraLocked()
}

// SetAnalysisActive pauses or resumes scanning without releasing the camera.
func (d *Detector) SetAnalysisActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.analysisActive = active
}

// Status returns a snapshot of the detector.
func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Status{
		State:          d.state,
		Streaming:      d.streaming,
		Privacy:        d.privacy,
		AnalysisActive: d.analysisActive,
		Permission:     d.permission,
		CameraOpen:     d.cameraOpen,
		Notice:         d.notice,
		CooldownUntil:  d.cooldownUntil,
		LastScanAt:     d.lastScanAt,
	}
	if d.lastObservation != nil {
		obs := *d.lastObservation
		s.LastObservation = &obs
	}
	return s
}

// trigger starts a scan when every gate allows it.
func (d *Detector) trigger(reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.streaming || d.privacy || !d.analysisActive {
		return false
	}
	if d.permission != capture.PermissionGranted || !d.cameraOpen {
		return false
	}
	if d.state != StateIdle {
		// Scanning or cooldown: dropped, not queued
		zlog.Debug().Msgf("detector: scan dropped: reason=%s state=%s", reason, d.state)
		return false
	}

	d.setStateLocked(StateScanning)
	d.notice = ""
	d.lastScanAt = d.now()
	gen := d.sessionGen

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scan(gen)
	}()
	return true
}

func (d *Detector) scan(gen uint64) {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.ScanTimeout)
	defer cancel()

	e, confidence, err := d.captureAndClassify(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateScanning {
		return
	}

	if err != nil {
		if errors.Is(err, inference.ErrQuotaExceeded) {
			zlog.Warn().Msgf("detector: inference quota exceeded, cooling down: cooldown=%v error=%v", d.config.Cooldown, err)
			d.enterCooldownLocked()
			return
		}
		d.setStateLocked(StateIdle)
		switch {
		case errors.Is(err, capture.ErrPermissionDenied):
			zlog.Warn().Msgf("detector: camera permission denied during capture")
			d.denyPermissionLocked()
		case errors.Is(err, capture.ErrNotReady), errors.Is(err, inference.ErrUnrecognized):
			zlog.Debug().Msgf("detector: scan produced nothing: error=%v", err)
		default:
			zlog.Error().Msgf("detector: scan failed: error=%v", err)
		}
		return
	}

	d.setStateLocked(StateIdle)

	if confidence <= d.config.Threshold {
		zlog.Debug().Msgf("detector: observation below threshold: emotion=%s confidence=%.2f", e, confidence)
		return
	}
	// Results that arrive after the camera was released are stale
	if gen != d.sessionGen || d.privacy || !d.streaming {
		zlog.Debug().Msgf("detector: discarding late observation: emotion=%s", e)
		return
	}

	obs := Observation{Emotion: e, Confidence: confidence, At: d.now()}
	d.lastObservation = &obs

	select {
	case d.observations <- obs:
		zlog.Info().Msgf("detector: emotion observed: emotion=%s confidence=%.2f", e, confidence)
	default:
		zlog.Warn().Msgf("detector: observation queue full, dropping: emotion=%s", e)
	}
}

func (d *Detector) captureAndClassify(ctx context.Context) (emotion.Emotion, float64, error) {
	frame, err := d.capturer.Capture(ctx)
	if err != nil {
		return "", 0, errors.Wrap(err, "capture failed")
	}
	return d.classifier.Classify(ctx, frame)
}

// enterCooldownLocked suppresses scans and schedules the return to idle.
// Must be called with lock held.
func (d *Detector) enterCooldownLocked() {
	d.setStateLocked(StateCooldown)
	d.cooldownUntil = d.now().Add(d.config.Cooldown)
	d.notice = QuotaNotice

	d.sendEventLocked(Event{
		Type:    EventQuotaExceeded,
		State:   d.state,
		Message: d.notice,
	})

	if d.cooldownTimer != nil {
		d.cooldownTimer.Stop()
	}
	d.cooldownTimer = time.AfterFunc(d.config.Cooldown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		d.cooldownTimer = nil
		if d.stopped || d.state != StateCooldown {
			return
		}
		d.cooldownUntil = time.Time{}
		d.setStateLocked(StateIdle)
		zlog.Info().Msgf("detector: cooldown finished, scanning resumed")
	})
}

// syncCameraLocked opens or releases the camera to match the gates.
// Must be called with lock held.
func (d *Detector) syncCameraLocked() {
	want := d.streaming && !d.privacy
	switch {
	case want && !d.cameraOpen && d.openCancel == nil:
		d.openCameraLocked()
	case !want:
		d.releaseCameraLocked()
	}
}

// openCameraLocked acquires the camera in the background; Open may wait for a permission decision.
// Must be called with lock held.
func (d *Detector) openCameraLocked() {
	if d.permission == capture.PermissionDenied {
		return
	}

	ctx, cancel := context.WithCancel(d.ctx)
	d.openCancel = cancel
	gen := d.sessionGen

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		err := d.source.Open(ctx)

		d.mu.Lock()
		defer d.mu.Unlock()

		if gen != d.sessionGen || d.stopped {
			// Released while opening
			if err == nil {
				_ = d.source.Close()
			}
			return
		}
		d.openCancel = nil

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Unknown errors are treated as a denial as well
			zlog.Warn().Msgf("detector: camera unavailable: error=%v", err)
			d.denyPermissionLocked()
			return
		}

		d.cameraOpen = true
		if d.permission != capture.PermissionGranted {
			d.permission = capture.PermissionGranted
			d.sendEventLocked(Event{Type: EventPermissionChanged, State: d.state, Permission: d.permission})
		}
		d.sendEventLocked(Event{Type: EventCameraChanged, State: d.state, Permission: d.permission, CameraOpen: true})
		zlog.Info().Msgf("detector: camera opened")
	}()
}

// releaseCameraLocked cancels a pending open and releases the stream.
// Must be called with lock held.
func (d *Detector) releaseCameraLocked() {
	d.sessionGen++
	if d.openCancel != nil {
		d.openCancel()
		d.openCancel = nil
	}
	if !d.cameraOpen {
		return
	}
	if err := d.source.Close(); err != nil {
		zlog.Warn().Msgf("detector: failed to release camera: error=%v", err)
	}
	d.cameraOpen = false
	d.sendEventLocked(Event{Type: EventCameraChanged, State: d.state, Permission: d.permission})
	zlog.Info().Msgf("detector: camera released")
}

// denyPermissionLocked records a permanent denial.
// Must be called with lock held.
func (d *Detector) denyPermissionLocked() {
	if d.permission == capture.PermissionDenied {
		return
	}
	d.permission = capture.PermissionDenied
	if d.cameraOpen {
		_ = d.source.Close()
		d.cameraOpen = false
	}
	d.sendEventLocked(Event{Type: EventPermissionChanged, State: d.state, Permission: d.permission})
}

// setStateLocked changes the state and emits an event.
// Must be called with lock held.
func (d *Detector) setStateLocked(s State) {
	if d.state == s {
		return
	}
	d.state = s
	d.sendEventLocked(Event{Type: EventStateChanged, State: s, Permission: d.permission, CameraOpen: d.cameraOpen})
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (d *Detector) sendEventLocked(e Event) {
	if d.stopped {
		return
	}
	select {
	case d.eventCh <- e:
	default:
		// Channel full, drop event
	}
}
