package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Progress-engine events. Each one is something the notification surface
// may show to the user.
const (
	EventStreakStarted   EventType = "streak.started"
	EventStreakIncreased EventType = "streak.increased"
	EventStreakReset     EventType = "streak.reset"
	EventBadgeEarned     EventType = "badge.earned"
	EventReminderDue     EventType = "reminder.due"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the user (or group) the event belongs to.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event at the given instant.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakChangedEvent is emitted when a streak starts or grows.
type StreakChangedEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	Current int    `json:"current"`
	Best    int    `json:"best"`
}

// Payload implements Event interface.
func (e StreakChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"current": e.Current,
		"best":    e.Best,
	}
}

// NewStreakStartedEvent creates a StreakChangedEvent for a first activity.
func NewStreakStartedEvent(userID string, current, best int, at time.Time) StreakChangedEvent {
	return StreakChangedEvent{
		BaseEvent: NewBaseEvent(EventStreakStarted, userID, at),
		UserID:    userID,
		Current:   current,
		Best:      best,
	}
}

// NewStreakIncreasedEvent creates a StreakChangedEvent for a continuation.
func NewStreakIncreasedEvent(userID string, current, best int, at time.Time) StreakChangedEvent {
	return StreakChangedEvent{
		BaseEvent: NewBaseEvent(EventStreakIncreased, userID, at),
		UserID:    userID,
		Current:   current,
		Best:      best,
	}
}

// StreakResetEvent is emitted when a streak is found broken at session start.
type StreakResetEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Previous int    `json:"previous"`
	Best     int    `json:"best"`
}

// Payload implements Event interface.
func (e StreakResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID,
		"previous": e.Previous,
		"best":     e.Best,
	}
}

// NewStreakResetEvent creates a new StreakResetEvent.
func NewStreakResetEvent(userID string, previous, best int, at time.Time) StreakResetEvent {
	return StreakResetEvent{
		BaseEvent: NewBaseEvent(EventStreakReset, userID, at),
		UserID:    userID,
		Previous:  previous,
		Best:      best,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeEarnedEvent is emitted once per badge, when it is awarded.
type BadgeEarnedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	BadgeID     string `json:"badge_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Payload implements Event interface.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"badge_id":    e.BadgeID,
		"name":        e.Name,
		"description": e.Description,
	}
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent.
func NewBadgeEarnedEvent(userID, badgeID, name, description string, at time.Time) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent:   NewBaseEvent(EventBadgeEarned, userID, at),
		UserID:      userID,
		BadgeID:     badgeID,
		Name:        name,
		Description: description,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reminder Events
// ═══════════════════════════════════════════════════════════════════════════

// ReminderDueEvent is emitted when a study session is about to start.
type ReminderDueEvent struct {
	BaseEvent
	GroupID   string    `json:"group_id"`
	SessionID string    `json:"session_id"`
	Topic     string    `json:"topic"`
	StartsAt  time.Time `json:"starts_at"`
	CatchUp   bool      `json:"catch_up"`
}

// Payload implements Event interface.
func (e ReminderDueEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":   e.GroupID,
		"session_id": e.SessionID,
		"topic":      e.Topic,
		"starts_at":  e.StartsAt.Format(time.RFC3339),
		"catch_up":   e.CatchUp,
	}
}

// NewReminderDueEvent creates a new ReminderDueEvent.
func NewReminderDueEvent(groupID, sessionID, topic string, startsAt time.Time, catchUp bool, at time.Time) ReminderDueEvent {
	return ReminderDueEvent{
		BaseEvent: NewBaseEvent(EventReminderDue, groupID, at),
		GroupID:   groupID,
		SessionID: sessionID,
		Topic:     topic,
		StartsAt:  startsAt,
		CatchUp:   catchUp,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
