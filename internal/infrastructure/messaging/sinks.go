package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/pkg/circuitbreaker"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// FEED
// ══════════════════════════════════════════════════════════════════════════════

// DefaultFeedCapacity is the number of notifications kept per recipient.
const DefaultFeedCapacity = 50

// Feed keeps the most recent notifications of every user and group in
// memory, newest last.
type Feed struct {
	mu       sync.RWMutex
	capacity int
	items    map[string][]Notification
}

// NewFeed creates a feed that keeps at most capacity notifications per
// recipient. Non-positive capacity selects DefaultFeedCapacity.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{
		capacity: capacity,
		items:    make(map[string][]Notification),
	}
}

// Handle is a shared.EventHandler that appends the rendered event.
func (f *Feed) Handle(event shared.Event) error {
	f.Add(NewNotification(event))
	return nil
}

// Add appends n to its recipient's feed, evicting the oldest entry when full.
func (f *Feed) Add(n Notification) {
	key := n.Recipient().key()

	f.mu.Lock()
	defer f.mu.Unlock()

	list := append(f.items[key], n)
	if len(list) > f.capacity {
		list = append([]Notification(nil), list[len(list)-f.capacity:]...)
	}
	f.items[key] = list
}

// Recent returns up to limit notifications of r, newest first.
// limit <= 0 returns the whole feed.
func (f *Feed) Recent(r Recipient, limit int) []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	list := f.items[r.key()]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}

	out := make([]Notification, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG SINK
// ══════════════════════════════════════════════════════════════════════════════

// LogSink writes one structured log line per event.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.Nop()
	}
	return &LogSink{log: log.With(logger.Component("notifications"))}
}

// Handle implements shared.EventHandler.
func (s *LogSink) Handle(event shared.Event) error {
	n := NewNotification(event)
	fields := []logger.Field{
		logger.String("event_type", string(n.Type)),
		logger.String("message", n.Message),
	}
	if n.UserID != "" {
		fields = append(fields, logger.UserID(n.UserID))
	}
	if n.GroupID != "" {
		fields = append(fields, logger.GroupID(n.GroupID))
	}
	s.log.Info("notification", fields...)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB SINK
// ══════════════════════════════════════════════════════════════════════════════

// ChannelPublisher publishes a JSON message on a named channel.
// Implemented by the redis Publisher.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// PubSubSink forwards rendered notifications to per-recipient channels.
// Failed publishes are retried here, so the other subscribers of the bus
// see each event once.
type PubSubSink struct {
	publisher    ChannelPublisher
	userChannel  func(userID string) string
	groupChannel func(groupID string) string
	timeout      time.Duration
	retrier      *retry.Retrier
}

// NewPubSubSink creates a sink publishing on the channels returned by
// userChannel and groupChannel. opts adjust retry.DispatchRetrier.
func NewPubSubSink(p ChannelPublisher, userChannel, groupChannel func(string) string, opts ...retry.Option) *PubSubSink {
	return &PubSubSink{
		publisher:    p,
		userChannel:  userChannel,
		groupChannel: groupChannel,
		timeout:      2 * time.Second,
		retrier:      retry.DispatchRetrier(opts...),
	}
}

// Handle implements shared.EventHandler.
func (s *PubSubSink) Handle(event shared.Event) error {
	n := NewNotification(event)

	channel := s.userChannel(n.UserID)
	if n.GroupID != "" {
		channel = s.groupChannel(n.GroupID)
	}

	err := s.retrier.Do(context.Background(), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		err := s.publisher.Publish(ctx, channel, n)
		if circuitbreaker.IsRejected(err) {
			// an open breaker will not close within the retry window
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("publish notification %s: %w", n.Type, err)
	}
	return nil
}

// GuardedPublisher puts a circuit breaker in front of a ChannelPublisher.
// While the breaker is open, messages are dropped without touching the
// network.
type GuardedPublisher struct {
	next    ChannelPublisher
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedPublisher wraps next with breaker.
func NewGuardedPublisher(next ChannelPublisher, breaker *circuitbreaker.CircuitBreaker) *GuardedPublisher {
	return &GuardedPublisher{next: next, breaker: breaker}
}

// Publish implements ChannelPublisher.
func (g *GuardedPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.next.Publish(ctx, channel, message)
	})
	if circuitbreaker.IsRejected(err) {
		return fmt.Errorf("publish %s skipped: %w", channel, err)
	}
	return err
}
