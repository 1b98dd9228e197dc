package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/studybuddy/progress-engine/internal/domain/reminder"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULED SESSION COMMANDS
// Create, edit and delete a group's study sessions. Every mutation rewrites
// the group's session list under the group lock, then reconciles the
// reminder timers with the new list.
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleSessionCommand contains the data to plan a study session.
type ScheduleSessionCommand struct {
	// GroupID is the group planning the session.
	GroupID string

	// SessionID is optional; a UUID is generated when empty.
	SessionID string

	// Topic is what the group will study.
	Topic string

	// Date and Time are the session start, in the engine's location.
	Date timeutil.Date
	Time string
}

// Validate validates the command.
func (c ScheduleSessionCommand) Validate() error {
	if err := shared.ValidateGroupID(c.GroupID); err != nil {
		return err
	}
	if strings.TrimSpace(c.SessionID) != "" {
		return shared.ValidateSessionID(c.SessionID)
	}
	return nil
}

// UpdateSessionCommand contains an edit to a session. Empty fields are
// left unchanged.
type UpdateSessionCommand struct {
	GroupID   string
	SessionID string
	Topic     string
	Date      timeutil.Date
	Time      string
}

// Validate validates the command.
func (c UpdateSessionCommand) Validate() error {
	if err := shared.ValidateGroupID(c.GroupID); err != nil {
		return err
	}
	if err := shared.ValidateSessionID(c.SessionID); err != nil {
		return err
	}
	return nil
}

// DeleteSessionCommand removes a session and its pending reminder.
type DeleteSessionCommand struct {
	GroupID   string
	SessionID string
}

// Validate validates the command.
func (c DeleteSessionCommand) Validate() error {
	return UpdateSessionCommand{GroupID: c.GroupID, SessionID: c.SessionID}.Validate()
}

// SessionResult contains the session after a mutation.
type SessionResult struct {
	// Session is the created or updated session (zero after delete).
	Session reminder.ScheduledSession

	// Sessions is the group's full list after the mutation.
	Sessions reminder.Sessions
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SessionsHandler handles the scheduled session commands.
type SessionsHandler struct {
	env       Env
	reminders ReminderArmer
}

// NewSessionsHandler creates a new SessionsHandler. env.GroupLocks must be
// the locker the reminder service was built with.
func NewSessionsHandler(env Env, reminders ReminderArmer) *SessionsHandler {
	return &SessionsHandler{env: env.withDefaults(), reminders: reminders}
}

// Schedule executes the schedule session command.
func (h *SessionsHandler) Schedule(ctx context.Context, cmd ScheduleSessionCommand) (*SessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("schedule_session: validation failed: %w", err)
	}

	id := strings.TrimSpace(cmd.SessionID)
	if id == "" {
		id = uuid.NewString()
	}

	session, err := reminder.NewScheduledSession(reminder.NewSessionParams{
		ID:        id,
		GroupID:   cmd.GroupID,
		Topic:     cmd.Topic,
		Date:      cmd.Date,
		Time:      cmd.Time,
		CreatedAt: h.env.Clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("schedule_session: validation failed: %w", err)
	}

	result, err := h.mutate(ctx, session.GroupID, func(list reminder.Sessions) (reminder.Sessions, error) {
		return list.Add(session)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule_session: %w", err)
	}
	result.Session = session

	h.env.Logger.Info("session scheduled",
		logger.GroupID(session.GroupID),
		logger.SessionID(session.ID),
		logger.String("date", session.Date.String()),
		logger.String("time", session.Time),
	)
	return result, nil
}

// Update executes the update session command. Moving a session re-arms
// its reminder for the new start.
func (h *SessionsHandler) Update(ctx context.Context, cmd UpdateSessionCommand) (*SessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_session: validation failed: %w", err)
	}

	var updated reminder.ScheduledSession
	result, err := h.mutate(ctx, strings.TrimSpace(cmd.GroupID), func(list reminder.Sessions) (reminder.Sessions, error) {
		current, ok := list.Find(strings.TrimSpace(cmd.SessionID))
		if !ok {
			return nil, shared.ErrSessionNotFound
		}
		next, err := reminder.Reschedule(current, cmd.Topic, cmd.Date, cmd.Time)
		if err != nil {
			return nil, err
		}
		updated = next
		return list.Replace(next)
	})
	if err != nil {
		return nil, fmt.Errorf("update_session: %w", err)
	}
	result.Session = updated
	return result, nil
}

// Delete executes the delete session command.
func (h *SessionsHandler) Delete(ctx context.Context, cmd DeleteSessionCommand) (*SessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("delete_session: validation failed: %w", err)
	}

	groupID := strings.TrimSpace(cmd.GroupID)
	sessionID := strings.TrimSpace(cmd.SessionID)
	result, err := h.mutate(ctx, groupID, func(list reminder.Sessions) (reminder.Sessions, error) {
		return list.Remove(sessionID)
	})
	if err != nil {
		return nil, fmt.Errorf("delete_session: %w", err)
	}
	h.reminders.Cancel(groupID, sessionID)
	return result, nil
}

// mutate applies fn to the group's session list under the group lock,
// persists the result and reconciles the group's reminder timers.
func (h *SessionsHandler) mutate(ctx context.Context, groupID string, fn func(reminder.Sessions) (reminder.Sessions, error)) (*SessionResult, error) {
	unlock, err := h.env.GroupLocks.LockContext(ctx, groupID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	list, err := h.env.Repo.LoadSessions(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	next, err := fn(list)
	if err != nil {
		return nil, err
	}

	if err := h.env.Repo.SaveSessions(ctx, groupID, next); err != nil {
		return nil, fmt.Errorf("save sessions: %w", err)
	}

	h.reminders.ArmSessions(groupID, next)
	return &SessionResult{Sessions: next}, nil
}
