package detector

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/moodmelody/internal/app/capture"
	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/infra/inference"
)

type fakeSource struct {
	mu      sync.Mutex
	openErr error
	opens   int
	closes  int
}

func (s *fakeSource) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	return s.openErr
}

func (s *fakeSource) Frame(context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSource) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes
}

type fakeCapturer struct {
	err error
}

func (c *fakeCapturer) Capture(context.Context) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return "ZnJhbWU=", nil
}

type result struct {
	e    emotion.Emotion
	conf float64
	err  error
}

// scriptedClassifier answers from a queue; an empty queue answers neutral.
type scriptedClassifier struct {
	mu      sync.Mutex
	results []result
	gate    chan struct{}
	calls   int
}

func (c *scriptedClassifier) Classify(ctx context.Context, _ string) (emotion.Emotion, float64, error) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.results) == 0 {
		return emotion.Neutral, 1.0, nil
	}
	r := c.results[0]
	c.results = c.results[1:]
	return r.e, r.conf, r.err
}

func (c *scriptedClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testConfig() Config {
	return Config{
		Interval:    time.Hour,
		Cooldown:    60 * time.Millisecond,
		Threshold:   0.7,
		ScanTimeout: time.Second,
	}
}

func newStreamingDetector(t *testing.T, cls Classifier, cfg Config) (*Detector, *fakeSource) {
	t.Helper()
	src := &fakeSource{}
	d := New(src, &fakeCapturer{}, cls, cfg)
	t.Cleanup(d.Stop)

	d.SetStreaming(true)
	require.Eventually(t, func() bool { return d.Status().CameraOpen }, time.Second, 5*time.Millisecond)
	return d, src
}

func waitIdle(t *testing.T, d *Detector) {
	t.Helper()
	require.Eventually(t, func() bool { return d.Status().State == StateIdle }, time.Second, 5*time.Millisecond)
}

func receive(t *testing.T, ch <-chan Observation) Observation {
	t.Helper()
	select {
	case obs := <-ch:
		return obs
	case <-time.After(time.Second):
		t.Fatal("no observation received")
		return Observation{}
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "scanning", StateScanning.String())
	assert.Equal(t, "cooldown", StateCooldown.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Equal(t, "quota_exceeded", EventQuotaExceeded.String())
}

func TestScanNow_RequiresGates(t *testing.T) {
	d := New(&fakeSource{}, &fakeCapturer{}, &scriptedClassifier{}, testConfig())
	defer d.Stop()

	assert.False(t, d.ScanNow(), "not streaming")
	assert.Equal(t, capture.PermissionPrompt, d.Status().Permission)
}

func TestScanNow_EmitsObservation(t *testing.T) {
	cls := &scriptedClassifier{results: []result{{e: emotion.Happy, conf: 1.0}}}
	d, _ := newStreamingDetector(t, cls, testConfig())

	assert.Equal(t, capture.PermissionGranted, d.Status().Permission)
	require.True(t, d.ScanNow())

	obs := receive(t, d.Observations())
	assert.Equal(t, emotion.Happy, obs.Emotion)
	assert.Equal(t, 1.0, obs.Confidence)

	waitIdle(t, d)
	st := d.Status()
	require.NotNil(t, st.LastObservation)
	assert.Equal(t, emotion.Happy, st.LastObservation.Emotion)
	assert.False(t, st.LastScanAt.IsZero())
}

func TestScan_BelowThresholdIsIgnored(t *testing.T) {
	cls := &scriptedClassifier{results: []result{
		{e: emotion.Happy, conf: 0.5},
		{e: emotion.Sad, conf: 0.7},
	}}
	d, _ := newStreamingDetector(t, cls, testConfig())

	require.True(t, d.ScanNow())
	waitIdle(t, d)
	require.True(t, d.ScanNow())
	waitIdle(t, d)

	select {
	case obs := <-d.Observations():
		t.Fatalf("unexpected observation %v", obs)
	default:
	}
	assert.Equal(t, 2, cls.callCount())
}

func TestScan_NonQuotaErrorsReturnToIdle(t *testing.T) {
	cls := &scriptedClassifier{results: []result{
		{err: errors.New("connection reset")},
		{err: errors.Wrap(inference.ErrUnrecognized, "label")},
		{e: emotion.Angry, conf: 1.0},
	}}
	d, _ := newStreamingDetector(t, cls, testConfig())

	for i := 0; i < 2; i++ {
		require.True(t, d.ScanNow())
		waitIdle(t, d)
	}

	require.True(t, d.ScanNow())
	assert.Equal(t, emotion.Angry, receive(t, d.Observations()).Emotion)
}

func TestScan_ConcurrentTriggersAreDropped(t *testing.T) {
	cls := &scriptedClassifier{gate: make(chan struct{})}
	d, _ := newStreamingDetector(t, cls, testConfig())

	require.True(t, d.ScanNow())
	assert.Equal(t, StateScanning, d.Status().State)
	assert.False(t, d.ScanNow(), "second trigger while scanning")

	close(cls.gate)
	receive(t, d.Observations())
	waitIdle(t, d)
	assert.Equal(t, 1, cls.callCount())
}

func TestScan_QuotaErrorCoolsDown(t *testing.T) {
	quota := errors.Mark(errors.New("status 429"), inference.ErrQuotaExceeded)
	cls := &scriptedClassifier{results: []result{{err: quota}, {e: emotion.Sad, conf: 1.0}}}
	d, _ := newStreamingDetector(t, cls, testConfig())

	require.True(t, d.ScanNow())
	require.Eventually(t, func() bool { return d.Status().State == StateCooldown }, time.Second, time.Millisecond)

	st := d.Status()
	assert.Equal(t, QuotaNotice, st.Notice)
	assert.False(t, st.CooldownUntil.IsZero())
	assert.False(t, d.ScanNow(), "suppressed during cooldown")

	var sawQuota bool
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-d.Events():
				if ev.Type == EventQuotaExceeded {
					sawQuota = ev.Message == QuotaNotice
				}
			default:
				return sawQuota
			}
		}
	}, time.Second, 5*time.Millisecond)

	// Back to idle without intervention
	waitIdle(t, d)
	assert.True(t, d.Status().CooldownUntil.IsZero())

	require.True(t, d.ScanNow())
	assert.Equal(t, emotion.Sad, receive(t, d.Observations()).Emotion)
	assert.Empty(t, d.Status().Notice, "notice cleared by the next scan")
}

func TestScan_QuotaCooldownResumesScheduledScans(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond
	quota := errors.Mark(errors.New("status 429"), inference.ErrQuotaExceeded)
	cls := &scriptedClassifier{results: []result{{err: quota}, {e: emotion.Sad, conf: 1.0}}}
	d, _ := newStreamingDetector(t, cls, cfg)

	d.Start(context.Background())
	var until time.Time
	require.Eventually(t, func() bool {
		st := d.Status()
		until = st.CooldownUntil
		return st.State == StateCooldown
	}, time.Second, time.Millisecond)

	// No manual trigger: the ticker picks up again once the cooldown ends
	obs := receive(t, d.Observations())
	assert.Equal(t, emotion.Sad, obs.Emotion)
	assert.False(t, obs.At.Before(until), "scan ran during cooldown")
	assert.GreaterOrEqual(t, cls.callCount(), 2)
}

func TestScan_ScheduledTicks(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond
	cls := &scriptedClassifier{results: []result{{e: emotion.Surprised, conf: 1.0}}}
	d, _ := newStreamingDetector(t, cls, cfg)

	d.Start(context.Background())
	assert.Equal(t, emotion.Surprised, receive(t, d.Observations()).Emotion)
}

func TestScan_AnalysisPaused(t *testing.T) {
	d, _ := newStreamingDetector(t, &scriptedClassifier{}, testConfig())

	d.SetAnalysisActive(false)
	assert.False(t, d.ScanNow())

	d.SetAnalysisActive(true)
	assert.True(t, d.ScanNow())
}

func TestPrivacy_ReleasesCameraAndDiscardsLateResults(t *testing.T) {
	cls := &scriptedClassifier{gate: make(chan struct{}), results: []result{{e: emotion.Fearful, conf: 1.0}}}
	d, src := newStreamingDetector(t, cls, testConfig())

	require.True(t, d.ScanNow())
	d.SetPrivacy(true)

	st := d.Status()
	assert.True(t, st.Privacy)
	assert.False(t, st.CameraOpen)
	_, closes := src.counts()
	assert.Equal(t, 1, closes)

	close(cls.gate)
	waitIdle(t, d)

	select {
	case obs := <-d.Observations():
		t.Fatalf("late observation leaked: %v", obs)
	default:
	}
	assert.False(t, d.ScanNow(), "privacy blocks manual scans")

	// Leaving privacy mode reacquires the camera
	d.SetPrivacy(false)
	require.Eventually(t, func() bool { return d.Status().CameraOpen }, time.Second, 5*time.Millisecond)
	opens, _ := src.counts()
	assert.Equal(t, 2, opens)
}

func TestStreamingStop_ReleasesCamera(t *testing.T) {
	d, src := newStreamingDetector(t, &scriptedClassifier{}, testConfig())

	d.SetStreaming(false)
	assert.False(t, d.Status().CameraOpen)
	_, closes := src.counts()
	assert.Equal(t, 1, closes)
	assert.False(t, d.ScanNow())
}

func TestPermissionDenied_IsPermanent(t *testing.T) {
	src := &fakeSource{openErr: capture.ErrPermissionDenied}
	d := New(src, &fakeCapturer{}, &scriptedClassifier{}, testConfig())
	defer d.Stop()

	d.SetStreaming(true)
	require.Eventually(t, func() bool { return d.Status().Permission == capture.PermissionDenied }, time.Second, 5*time.Millisecond)

	d.SetStreaming(false)
	d.SetStreaming(true)
	time.Sleep(20 * time.Millisecond)

	opens, _ := src.counts()
	assert.Equal(t, 1, opens, "no further attempts after a denial")
	assert.False(t, d.ScanNow())
}

func TestCaptureDenied_MarksPermission(t *testing.T) {
	src := &fakeSource{}
	d := New(src, &fakeCapturer{err: capture.ErrPermissionDenied}, &scriptedClassifier{}, testConfig())
	defer d.Stop()

	d.SetStreaming(true)
	require.Eventually(t, func() bool { return d.Status().CameraOpen }, time.Second, 5*time.Millisecond)

	require.True(t, d.ScanNow())
	require.Eventually(t, func() bool { return d.Status().Permission == capture.PermissionDenied }, time.Second, 5*time.Millisecond)
	assert.False(t, d.Status().CameraOpen)
}

func TestStop_ClosesChannels(t *testing.T) {
	d := New(&fakeSource{}, &fakeCapturer{}, &scriptedClassifier{}, testConfig())
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	_, ok := <-d.Observations()
	assert.False(t, ok)
	for range d.Events() {
	}
}
