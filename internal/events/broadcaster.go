// Package events provides the best-effort per-recipient pub/sub channel
// used to push live processing events to connected clients.
package events

import (
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/log"
	"github.com/clipforge/clipforge/internal/metrics"
)

// Event names published by the processing core.
const (
	UploadComplete      = "upload-complete"
	ProcessingProgress  = "processing-progress"
	ProcessingComplete  = "processing-complete"
	ProcessingError     = "processing-error"
	SensitivityProgress = "sensitivity-progress"
	SensitivityComplete = "sensitivity-complete"
	SensitivityError    = "sensitivity-error"
)

// Event is one notification addressed to a single recipient.
type Event struct {
	Name      string         `json:"event"`
	VideoID   string         `json:"videoId"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

const subscriberBuffer = 64

// Broadcaster fans events out to all currently connected subscribers of
// a recipient channel. Delivery is at-most-once with no persistence and
// no replay: a subscriber connecting after an event was published never
// sees it, and a publish with no subscribers is a no-op.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string][]chan Event)}
}

// Publish delivers evt to every subscriber of recipientID without
// blocking the caller. A subscriber whose buffer is full misses the
// event.
func (b *Broadcaster) Publish(recipientID, name, videoID string, payload map[string]any) {
	evt := Event{
		Name:      name,
		VideoID:   videoID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	b.mu.RLock()
	chs := append([]chan Event(nil), b.subs[recipientID]...)
	b.mu.RUnlock()

	for _, ch := range chs {
		select {
		case ch <- evt:
		default:
			metrics.IncEventDropped(name)
			logger := log.L()
			logger.Debug().
				Str("recipient", recipientID).
				Str(log.FieldEvent, name).
				Msg("dropping event for slow subscriber")
		}
	}
}

// Subscription is a live handle on one recipient channel. Close it when
// the connection ends.
type Subscription struct {
	b         *Broadcaster
	recipient string
	ch        chan Event
	once      sync.Once
}

// C returns the event channel for this subscription.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close detaches the subscription from its recipient channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs[s.recipient]
		out := lst[:0]
		for _, c := range lst {
			if c != s.ch {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.recipient)
		} else {
			s.b.subs[s.recipient] = out
		}
	})
}

// Subscribe attaches a new listener to recipientID's channel. Each
// connection subscribes to exactly one recipient channel.
func (b *Broadcaster) Subscribe(recipientID string) *Subscription {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[recipientID] = append(b.subs[recipientID], ch)
	b.mu.Unlock()

	return &Subscription{b: b, recipient: recipientID, ch: ch}
}

// SubscriberCount reports the number of live subscriptions for a
// recipient. Used by tests and diagnostics.
func (b *Broadcaster) SubscriberCount(recipientID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[recipientID])
}
