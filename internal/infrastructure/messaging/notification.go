package messaging

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studybuddy/progress-engine/internal/domain/shared"
)

// Notification is the discrete message shown to a user (or to every
// member of a group) for one progression event.
type Notification struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId,omitempty"`
	GroupID   string                 `json:"groupId,omitempty"`
	Type      shared.EventType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Recipient identifies the feed a notification belongs to.
type Recipient struct {
	UserID  string
	GroupID string
}

// UserRecipient addresses a single user.
func UserRecipient(userID string) Recipient { return Recipient{UserID: userID} }

// GroupRecipient addresses every member of a group.
func GroupRecipient(groupID string) Recipient { return Recipient{GroupID: groupID} }

func (r Recipient) key() string {
	if r.GroupID != "" {
		return "group:" + r.GroupID
	}
	return "user:" + r.UserID
}

// Recipient returns who the notification is addressed to.
func (n Notification) Recipient() Recipient {
	return Recipient{UserID: n.UserID, GroupID: n.GroupID}
}

// NewNotification renders event into a Notification. Unknown event types
// get a generic title and the raw payload as fields.
func NewNotification(event shared.Event) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Type:      event.EventType(),
		Fields:    event.Payload(),
		CreatedAt: event.OccurredAt(),
	}

	switch e := event.(type) {
	case shared.StreakChangedEvent:
		n.UserID = e.UserID
		if e.EventType() == shared.EventStreakStarted {
			n.Title = "Streak started"
		} else {
			n.Title = "Streak increased"
		}
		n.Message = fmt.Sprintf("Streak increased to %d", e.Current)

	case shared.StreakResetEvent:
		n.UserID = e.UserID
		n.Title = "Streak reset"
		n.Message = fmt.Sprintf("Your %d-day streak was reset. Study today to start a new one!", e.Previous)

	case shared.BadgeEarnedEvent:
		n.UserID = e.UserID
		n.Title = "Badge earned"
		n.Message = fmt.Sprintf("You earned %s: %s", e.Name, e.Description)

	case shared.ReminderDueEvent:
		n.GroupID = e.GroupID
		n.Title = "Study session reminder"
		if e.CatchUp {
			n.Message = fmt.Sprintf("%q starts at %s", e.Topic, e.StartsAt.Format("15:04"))
		} else {
			n.Message = fmt.Sprintf("%q starts soon, at %s", e.Topic, e.StartsAt.Format("15:04"))
		}

	default:
		n.UserID = event.AggregateID()
		n.Title = string(event.EventType())
		n.Message = string(event.EventType())
	}

	return n
}
