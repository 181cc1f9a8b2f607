// Package notification provides the notification manager for broadcasting events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Type identifies what changed.
type Type string

const (
	TypeInitialState      Type = "initial_state"
	TypeSongStarted       Type = "song_started"
	TypePlaybackState     Type = "playback_state"
	TypeQueueRebuilt      Type = "queue_rebuilt"
	TypeEmotionChanged    Type = "emotion_changed"
	TypePlaybackError     Type = "playback_error"
	TypeScanState         Type = "scan_state"
	TypeQuotaExceeded     Type = "quota_exceeded"
	TypeCameraPermission  Type = "camera_permission"
	TypeCameraState       Type = "camera_state"
	TypeFeedbackNudge     Type = "feedback_nudge"
	TypeFeedbackDismissed Type = "feedback_dismissed"
	TypeSessionChanged    Type = "session_changed"
	TypeStreamingChanged  Type = "streaming_changed"
	TypePrivacyChanged    Type = "privacy_changed"
)

// Notification is one broadcast message.
type Notification struct {
	Type       Type
	SequenceNo uint64
	Message    string
	Status     any // Snapshot taken when the notification was built
	At         time.Time
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
	done          chan struct{}
	closeOnce     sync.Once
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   500 * time.Millisecond,
		done:          make(chan struct{}),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps the notification with the next sequence number and sends it to all subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
func (m *Manager) Broadcast(notification *Notification) {
	notification.SequenceNo = m.NextSequenceNo()

	if notification.At.IsZero() {
		notification.At = time.Now()
	}

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(notification)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed: subscription=%s error=%v", s.id, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: subscription=%s", s.id)
			}
		}(sub)
	}

	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions and closes the Done channel.
func (m *Manager) Close() {
	m.mu.Lock()
	m.subscriptions = make(map[string]*subscription)
	m.mu.Unlock()
	m.closeOnce.Do(func() { close(m.done) })
}

// Done is closed when the manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// ChanStream delivers notifications into a buffered channel.
// Sends fail instead of blocking when the buffer is full.
type ChanStream struct {
	ch chan *Notification
}

// NewChanStream creates a channel stream with the given buffer size.
func NewChanStream(size int) *ChanStream {
	return &ChanStream{ch: make(chan *Notification, size)}
}

// Send implements Stream.
func (s *ChanStream) Send(n *Notification) error {
	select {
	case s.ch <- n:
		return nil
	default:
		return ErrStreamFull
	}
}

// C returns the receive side of the stream.
func (s *ChanStream) C() <-chan *Notification {
	return s.ch
}
