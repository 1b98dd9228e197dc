package command

import (
	"context"
	"fmt"
	"time"

	"github.com/studybuddy/progress-engine/internal/application/saga"
	"github.com/studybuddy/progress-engine/internal/domain/badge"
	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOG ACTIVITY COMMAND
// Records that the user was active today without touching usage counters:
// advances the daily streak, then re-evaluates the badge catalog.
// ══════════════════════════════════════════════════════════════════════════════

// LogActivityCommand contains the data to record a day of activity.
type LogActivityCommand struct {
	// UserID is the ID of the active user.
	UserID string

	// At is when the activity occurred (defaults to now if zero).
	At time.Time
}

// Validate validates the command.
func (c LogActivityCommand) Validate() error {
	if err := shared.ValidateUserID(c.UserID); err != nil {
		return err
	}
	return nil
}

// LogActivityResult contains the result of logging activity.
type LogActivityResult struct {
	// Streak is the streak after the activity.
	Streak progress.StreakRecord

	// Outcome describes what happened to the streak.
	Outcome progress.StreakOutcome

	// NewBadges lists badges awarded by this activity.
	NewBadges []badge.Badge

	// Events contains the published notification events.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// LogActivityHandler handles the LogActivityCommand.
type LogActivityHandler struct {
	env          Env
	achievements *saga.AchievementFlowSaga
}

// NewLogActivityHandler creates a new LogActivityHandler.
func NewLogActivityHandler(env Env, achievements *saga.AchievementFlowSaga) *LogActivityHandler {
	return &LogActivityHandler{env: env.withDefaults(), achievements: achievements}
}

// Handle executes the log activity command.
func (h *LogActivityHandler) Handle(ctx context.Context, cmd LogActivityCommand) (*LogActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("log_activity: validation failed: %w", err)
	}

	at := h.env.instant(cmd.At)
	today := timeutil.DateOf(at, h.env.Location)

	unlock, err := h.env.UserLocks.LockContext(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("log_activity: %w", err)
	}
	defer unlock()

	upd, err := h.env.logActivity(ctx, cmd.UserID, today)
	if err != nil {
		return nil, fmt.Errorf("log_activity: update streak: %w", err)
	}

	counters, err := h.env.Repo.LoadCounters(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("log_activity: load counters: %w", err)
	}

	flow, err := h.achievements.Execute(ctx, saga.AchievementCheckInput{
		UserID:    cmd.UserID,
		Streak:    upd.Record,
		Counters:  counters,
		Timestamp: at,
	})
	if err != nil {
		return nil, fmt.Errorf("log_activity: %w", err)
	}

	events := append(streakEvents(cmd.UserID, upd, at), flow.Events...)
	h.env.publish(events)

	return &LogActivityResult{
		Streak:    upd.Record,
		Outcome:   upd.Outcome,
		NewBadges: flow.NewBadges,
		Events:    events,
	}, nil
}
