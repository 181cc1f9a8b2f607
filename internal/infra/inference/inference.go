// Package inference holds what the emotion classifier backends share.
package inference

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/moodmelody/internal/domain/emotion"
)

var (
	// ErrQuotaExceeded marks rate limit and resource exhaustion failures.
	ErrQuotaExceeded = errors.New("inference quota exceeded")
	// ErrUnrecognized is returned when the model answers with something that is not a label.
	ErrUnrecognized = errors.New("unrecognized emotion label")
)

// Prompt is the instruction sent with every frame.
const Prompt = "You are a world-class micro-expression expert. Analyze the provided facial image. " +
	"Look specifically at: 1. Lip corners (upturned=happy, downturned=sad/disgusted). " +
	"2. Eyebrow tension (furrowed=angry, raised=surprised/fearful). 3. Eye squinting or widening. " +
	"Identify the single dominant emotion. Respond with exactly ONE word from this list: " +
	"happy, sad, angry, surprised, neutral, fearful, disgusted. " +
	"If lighting is poor or face is missing, return 'neutral'."

// Sampling parameters used by every backend.
const (
	Temperature = 0.1
	TopP        = 0.1
	TopK        = 1
)

// ParseLabel turns a model answer into an emotion with full confidence.
func ParseLabel(text string) (emotion.Emotion, float64, error) {
	e, ok := emotion.Parse(text)
	if !ok {
		return "", 0, errors.Wrapf(ErrUnrecognized, "label %q", truncate(strings.TrimSpace(text), 40))
	}
	return e, 1.0, nil
}

// IsQuotaMessage reports whether an error text carries a rate limit marker.
func IsQuotaMessage(s string) bool {
	return strings.Contains(s, "429") || strings.Contains(s, "RESOURCE_EXHAUSTED")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Metrics is a snapshot of a client's request counters.
type Metrics struct {
	Backend         string    `json:"backend"`
	TotalRequests   int64     `json:"total_requests"`
	Successful      int64     `json:"successful_requests"`
	Failed          int64     `json:"failed_requests"`
	QuotaExceeded   int64     `json:"quota_exceeded"`
	LastRequestTime time.Time `json:"last_request_time"`
}

// Counters tracks request outcomes. The zero value is ready to use.
type Counters struct {
	mu      sync.Mutex
	metrics Metrics
}

// Begin counts a new request.
func (c *Counters) Begin(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.TotalRequests++
	c.metrics.LastRequestTime = now
}

// Done counts the outcome of a request.
func (c *Counters) Done(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.metrics.Successful++
	case errors.Is(err, ErrQuotaExceeded):
		c.metrics.Failed++
		c.metrics.QuotaExceeded++
	default:
		c.metrics.Failed++
	}
}

// Snapshot returns the counters labelled with the backend name.
func (c *Counters) Snapshot(backend string) Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.metrics
	m.Backend = backend
	return m
}
