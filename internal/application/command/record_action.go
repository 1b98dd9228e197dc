package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/studybuddy/progress-engine/internal/application/saga"
	"github.com/studybuddy/progress-engine/internal/domain/analytics"
	"github.com/studybuddy/progress-engine/internal/domain/badge"
	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTION COMMAND
// Called by the UI after an external action succeeded (a quiz was graded,
// an AI reply arrived, a document was summarized, a session was joined).
// Order: counters and history → streak → badges → notifications.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActionCommand contains the data of one qualifying user action.
type RecordActionCommand struct {
	// UserID is the ID of the acting user.
	UserID string

	// Type is the kind of action.
	Type progress.ActionType

	// Topic is the quiz or session topic (optional).
	Topic string

	// Score and Total are the quiz result (quiz_completed only).
	Score int
	Total int

	// DurationMinutes is the length of a joined session (session_joined only).
	DurationMinutes int

	// At is when the action occurred (defaults to now if zero).
	At time.Time
}

// Validate validates the command.
func (c RecordActionCommand) Validate() error {
	if err := shared.ValidateUserID(c.UserID); err != nil {
		return err
	}
	if !c.Type.IsValid() {
		return shared.WrapError("progress", "Validate", shared.ErrInvalidInput,
			fmt.Sprintf("unknown action type %q", c.Type), shared.ErrUnknownAction)
	}

	switch c.Type {
	case progress.ActionQuizCompleted:
		if c.Total <= 0 || c.Score < 0 || c.Score > c.Total {
			return shared.ErrInvalidScore
		}
	case progress.ActionSessionJoined:
		if c.DurationMinutes < 0 {
			return shared.ErrInvalidDuration
		}
	}

	return nil
}

// RecordActionResult contains the result of recording an action.
type RecordActionResult struct {
	// Counters are the usage counters after the action.
	Counters progress.UsageCounters

	// Streak is the streak after the action.
	Streak progress.StreakRecord

	// StreakOutcome describes what happened to the streak.
	StreakOutcome progress.StreakOutcome

	// NewBadges lists badges awarded by this action.
	NewBadges []badge.Badge

	// Events contains the published notification events.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActionHandler handles the RecordActionCommand.
type RecordActionHandler struct {
	env          Env
	achievements *saga.AchievementFlowSaga
}

// NewRecordActionHandler creates a new RecordActionHandler.
func NewRecordActionHandler(env Env, achievements *saga.AchievementFlowSaga) *RecordActionHandler {
	return &RecordActionHandler{env: env.withDefaults(), achievements: achievements}
}

// Handle executes the record action command. Writes go streak, counter,
// history. Any storage failure aborts before later steps run; steps
// already written stay written and the events of this action are not
// published. The streak write is idempotent within a day, so a retried
// action never advances it twice.
func (h *RecordActionHandler) Handle(ctx context.Context, cmd RecordActionCommand) (*RecordActionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_action: validation failed: %w", err)
	}

	at := h.env.instant(cmd.At)
	today := timeutil.DateOf(at, h.env.Location)

	unlock, err := h.env.UserLocks.LockContext(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("record_action: %w", err)
	}
	defer unlock()

	// Step 1: streak
	upd, err := h.env.logActivity(ctx, cmd.UserID, today)
	if err != nil {
		return nil, fmt.Errorf("record_action: update streak: %w", err)
	}

	// Step 2: usage counter
	counters, err := h.env.Repo.LoadCounters(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("record_action: load counters: %w", err)
	}
	if c, ok := cmd.Type.Counter(); ok {
		value := counters.Increment(c)
		if err := h.env.Repo.SaveCounter(ctx, cmd.UserID, c, value); err != nil {
			return nil, fmt.Errorf("record_action: save %s: %w", c, err)
		}
	}

	// Step 3: history
	if err := h.appendHistory(ctx, cmd, today); err != nil {
		return nil, fmt.Errorf("record_action: append history: %w", err)
	}

	// Step 4: badges, against the state written above
	flow, err := h.achievements.Execute(ctx, saga.AchievementCheckInput{
		UserID:    cmd.UserID,
		Streak:    upd.Record,
		Counters:  counters,
		Timestamp: at,
	})
	if err != nil {
		return nil, fmt.Errorf("record_action: %w", err)
	}

	// Step 5: notifications
	events := append(streakEvents(cmd.UserID, upd, at), flow.Events...)
	h.env.publish(events)

	h.env.Logger.Debug("action recorded",
		logger.UserID(cmd.UserID),
		logger.String("action", cmd.Type.String()),
		logger.String("streak_outcome", string(upd.Outcome)),
		logger.Int("new_badges", len(flow.NewBadges)),
	)

	return &RecordActionResult{
		Counters:      counters,
		Streak:        upd.Record,
		StreakOutcome: upd.Outcome,
		NewBadges:     flow.NewBadges,
		Events:        events,
	}, nil
}

func (h *RecordActionHandler) appendHistory(ctx context.Context, cmd RecordActionCommand, today timeutil.Date) error {
	topic := strings.TrimSpace(cmd.Topic)
	if topic == "" {
		topic = analytics.FallbackTopic
	}

	switch cmd.Type {
	case progress.ActionQuizCompleted:
		return h.env.Repo.AppendQuiz(ctx, cmd.UserID, analytics.NewQuizRecord(today, topic, cmd.Score, cmd.Total))
	case progress.ActionSessionJoined:
		return h.env.Repo.AppendSession(ctx, cmd.UserID, analytics.SessionRecord{
			Date:            today,
			Topic:           topic,
			DurationMinutes: cmd.DurationMinutes,
		})
	}
	return nil
}
