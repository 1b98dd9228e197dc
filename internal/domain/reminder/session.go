// Package reminder contains scheduled study sessions and the planning rules
// for their one-shot pre-session reminders.
package reminder

import (
	"strings"
	"time"

	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ScheduledSession is a study session planned by a group.
type ScheduledSession struct {
	ID            string        `json:"id"`
	GroupID       string        `json:"groupId"`
	Topic         string        `json:"topic"`
	Date          timeutil.Date `json:"date"`
	Time          string        `json:"time"` // HH:MM in the engine's location
	ReminderFired bool          `json:"reminderFired"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// NewSessionParams holds the input for creating a session.
type NewSessionParams struct {
	ID        string
	GroupID   string
	Topic     string
	Date      timeutil.Date
	Time      string
	CreatedAt time.Time
}

// NewScheduledSession validates params and builds a session.
func NewScheduledSession(p NewSessionParams) (ScheduledSession, error) {
	s := ScheduledSession{
		ID:        strings.TrimSpace(p.ID),
		GroupID:   strings.TrimSpace(p.GroupID),
		Topic:     strings.TrimSpace(p.Topic),
		Date:      p.Date,
		Time:      strings.TrimSpace(p.Time),
		CreatedAt: p.CreatedAt,
	}
	if err := s.Validate(); err != nil {
		return ScheduledSession{}, err
	}
	return s, nil
}

// Validate checks the session's required fields.
func (s ScheduledSession) Validate() error {
	if err := shared.ValidateSessionID(s.ID); err != nil {
		return err
	}
	if err := shared.ValidateGroupID(s.GroupID); err != nil {
		return err
	}
	if s.Topic == "" {
		return shared.ErrEmptyTopic
	}
	if s.Date.IsZero() {
		return shared.ErrInvalidSessionTime
	}
	if _, err := timeutil.CombineDateTime(s.Date, s.Time, time.UTC); err != nil {
		return shared.WrapError("reminder", "Validate", shared.ErrInvalidFormat, "session time must be HH:MM", err)
	}
	return nil
}

// StartsAt returns the session start instant in loc.
func (s ScheduledSession) StartsAt(loc *time.Location) (time.Time, error) {
	at, err := timeutil.CombineDateTime(s.Date, s.Time, loc)
	if err != nil {
		return time.Time{}, shared.WrapError("reminder", "StartsAt", shared.ErrInvalidFormat, "invalid session time", err)
	}
	return at, nil
}

// ReminderAt returns the instant the reminder should fire: start minus lead.
func (s ScheduledSession) ReminderAt(loc *time.Location, lead time.Duration) (time.Time, error) {
	start, err := s.StartsAt(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(-lead), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION LIST
// ══════════════════════════════════════════════════════════════════════════════

// Sessions is a group's persisted list of scheduled sessions.
type Sessions []ScheduledSession

// Find returns the session with id.
func (l Sessions) Find(id string) (ScheduledSession, bool) {
	for _, s := range l {
		if s.ID == id {
			return s, true
		}
	}
	return ScheduledSession{}, false
}

// Add returns a copy of l with s appended.
// Returns ErrSessionAlreadyExists if the ID is taken.
func (l Sessions) Add(s ScheduledSession) (Sessions, error) {
	if _, ok := l.Find(s.ID); ok {
		return nil, shared.ErrSessionAlreadyExists
	}
	out := make(Sessions, 0, len(l)+1)
	out = append(out, l...)
	return append(out, s), nil
}

// Replace returns a copy of l with the session sharing s.ID replaced.
// Returns ErrSessionNotFound if there is none.
func (l Sessions) Replace(s ScheduledSession) (Sessions, error) {
	out := make(Sessions, len(l))
	copy(out, l)
	for i := range out {
		if out[i].ID == s.ID {
			out[i] = s
			return out, nil
		}
	}
	return nil, shared.ErrSessionNotFound
}

// Remove returns a copy of l without the session id.
// Returns ErrSessionNotFound if there is none.
func (l Sessions) Remove(id string) (Sessions, error) {
	out := make(Sessions, 0, len(l))
	found := false
	for _, s := range l {
		if s.ID == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		return nil, shared.ErrSessionNotFound
	}
	return out, nil
}

// Reschedule applies an edit to s. Moving the session to a different start
// re-enables its reminder so the new slot is announced too.
func Reschedule(s ScheduledSession, topic string, date timeutil.Date, clock string) (ScheduledSession, error) {
	next := s
	if t := strings.TrimSpace(topic); t != "" {
		next.Topic = t
	}
	if !date.IsZero() {
		next.Date = date
	}
	if c := strings.TrimSpace(clock); c != "" {
		next.Time = c
	}
	if err := next.Validate(); err != nil {
		return ScheduledSession{}, err
	}
	if !next.Date.Equal(s.Date) || next.Time != s.Time {
		next.ReminderFired = false
	}
	return next, nil
}
