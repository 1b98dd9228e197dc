package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// START SESSION COMMAND
// Runs once when the user opens the application: the passive streak decay
// check, then arming reminders for the user's study groups. It is the only
// caller of the decay check; activity never runs it.
// ══════════════════════════════════════════════════════════════════════════════

// StartSessionCommand contains the data of an application start.
type StartSessionCommand struct {
	// UserID is the ID of the user opening the application.
	UserID string

	// GroupIDs are the study groups whose reminders should be armed.
	GroupIDs []string

	// At is when the application was opened (defaults to now if zero).
	At time.Time
}

// Validate validates the command.
func (c StartSessionCommand) Validate() error {
	if err := shared.ValidateUserID(c.UserID); err != nil {
		return err
	}
	for _, g := range c.GroupIDs {
		if err := shared.ValidateGroupID(g); err != nil {
			return err
		}
	}
	return nil
}

// StartSessionResult contains the result of an application start.
type StartSessionResult struct {
	// Streak is the streak after the decay check (zero value if none).
	Streak progress.StreakRecord

	// StreakReset is true if the check found a broken streak.
	StreakReset bool

	// ArmedGroups lists groups whose reminders were armed.
	ArmedGroups []string

	// FailedGroups lists groups whose reminders could not be armed.
	FailedGroups []string

	// Events contains the published notification events.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// StartSessionHandler handles the StartSessionCommand.
type StartSessionHandler struct {
	env       Env
	reminders ReminderArmer
}

// NewStartSessionHandler creates a new StartSessionHandler.
func NewStartSessionHandler(env Env, reminders ReminderArmer) *StartSessionHandler {
	return &StartSessionHandler{env: env.withDefaults(), reminders: reminders}
}

// Handle executes the start session command. A group that fails to arm
// is reported in the result and does not fail the command.
func (h *StartSessionHandler) Handle(ctx context.Context, cmd StartSessionCommand) (*StartSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("start_session: validation failed: %w", err)
	}

	at := h.env.instant(cmd.At)
	today := timeutil.DateOf(at, h.env.Location)

	upd, err := h.checkStreak(ctx, cmd.UserID, today)
	if err != nil {
		return nil, fmt.Errorf("start_session: check streak: %w", err)
	}

	result := &StartSessionResult{
		Streak:      upd.Record,
		StreakReset: upd.Outcome == progress.OutcomeDecayed,
		Events:      streakEvents(cmd.UserID, upd, at),
	}
	h.env.publish(result.Events)

	for _, groupID := range cmd.GroupIDs {
		groupID = strings.TrimSpace(groupID)
		if err := h.reminders.ArmGroup(ctx, groupID); err != nil {
			h.env.Logger.Warn("failed to arm group reminders",
				logger.UserID(cmd.UserID),
				logger.GroupID(groupID),
				logger.Err(err),
			)
			result.FailedGroups = append(result.FailedGroups, groupID)
			continue
		}
		result.ArmedGroups = append(result.ArmedGroups, groupID)
	}

	return result, nil
}

func (h *StartSessionHandler) checkStreak(ctx context.Context, userID string, today timeutil.Date) (progress.StreakUpdate, error) {
	unlock, err := h.env.UserLocks.LockContext(ctx, userID)
	if err != nil {
		return progress.StreakUpdate{}, err
	}
	defer unlock()

	prev, err := h.env.Repo.LoadStreak(ctx, userID)
	if err != nil {
		return progress.StreakUpdate{}, err
	}

	upd := progress.CheckOnLoad(prev, today)
	if upd.Changed() {
		if err := h.env.Repo.SaveStreak(ctx, userID, upd.Record); err != nil {
			return progress.StreakUpdate{}, err
		}
	}
	h.env.Metrics.StreakUpdates.WithLabelValues(string(upd.Outcome)).Inc()
	return upd, nil
}
