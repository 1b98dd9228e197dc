// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/studybuddy/progress-engine/internal/application/saga"
	"github.com/studybuddy/progress-engine/internal/domain/analytics"
	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/domain/reminder"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/internal/infrastructure/metrics"
	"github.com/studybuddy/progress-engine/pkg/keylock"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository is the typed progress state the commands mutate.
type ProgressRepository interface {
	saga.BadgeRepository

	LoadStreak(ctx context.Context, userID string) (*progress.StreakRecord, error)
	SaveStreak(ctx context.Context, userID string, rec progress.StreakRecord) error
	LoadCounters(ctx context.Context, userID string) (progress.UsageCounters, error)
	SaveCounter(ctx context.Context, userID string, c progress.Counter, value int) error
	AppendQuiz(ctx context.Context, userID string, rec analytics.QuizRecord) error
	AppendSession(ctx context.Context, userID string, rec analytics.SessionRecord) error
	LoadSessions(ctx context.Context, groupID string) (reminder.Sessions, error)
	SaveSessions(ctx context.Context, groupID string, sessions reminder.Sessions) error
}

// ReminderArmer owns the reminder timers of scheduled sessions.
type ReminderArmer interface {
	// ArmGroup loads a group's sessions under the group lock and arms them.
	ArmGroup(ctx context.Context, groupID string) error
	// ArmSessions reconciles timers with a group's full session list. The
	// caller holds the group lock.
	ArmSessions(groupID string, sessions reminder.Sessions)
	// Cancel drops the pending timer of one group's session.
	Cancel(groupID, sessionID string)
}

// Env bundles what every handler needs: storage, the update queues,
// time, event delivery and observability.
type Env struct {
	Repo       ProgressRepository
	UserLocks  *keylock.Locker
	GroupLocks *keylock.Locker
	Publisher  shared.EventPublisher
	Clock      timeutil.Clock
	Location   *time.Location
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
}

func (e Env) withDefaults() Env {
	if e.UserLocks == nil {
		e.UserLocks = keylock.New()
	}
	if e.GroupLocks == nil {
		e.GroupLocks = keylock.New()
	}
	if e.Clock == nil {
		e.Clock = timeutil.SystemClock{}
	}
	if e.Location == nil {
		e.Location = time.UTC
	}
	if e.Logger == nil {
		e.Logger = logger.Nop()
	}
	if e.Metrics == nil {
		e.Metrics = metrics.Nop()
	}
	return e
}

// instant returns at, or the clock's now when at is zero.
func (e Env) instant(at time.Time) time.Time {
	if at.IsZero() {
		return e.Clock.Now()
	}
	return at
}

// publish delivers events in order. Delivery failures are logged; the
// state they describe is already persisted.
func (e Env) publish(events []shared.Event) {
	if e.Publisher == nil {
		return
	}
	for _, ev := range events {
		if err := e.Publisher.Publish(ev); err != nil {
			e.Logger.Warn("event delivery failed",
				logger.String("event_type", string(ev.EventType())),
				logger.Err(err),
			)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED STEPS
// ══════════════════════════════════════════════════════════════════════════════

// logActivity advances the user's streak for today and persists it.
// Caller holds the user lock.
func (e Env) logActivity(ctx context.Context, userID string, today timeutil.Date) (progress.StreakUpdate, error) {
	prev, err := e.Repo.LoadStreak(ctx, userID)
	if err != nil {
		return progress.StreakUpdate{}, err
	}

	upd := progress.LogActivity(prev, today)
	if upd.Changed() {
		if err := e.Repo.SaveStreak(ctx, userID, upd.Record); err != nil {
			return progress.StreakUpdate{}, err
		}
	}
	e.Metrics.StreakUpdates.WithLabelValues(string(upd.Outcome)).Inc()
	return upd, nil
}

// streakEvents describes a streak update as notification events. A
// restart after a gap announces a new streak.
func streakEvents(userID string, upd progress.StreakUpdate, at time.Time) []shared.Event {
	r := upd.Record
	switch upd.Outcome {
	case progress.OutcomeStarted, progress.OutcomeRestarted:
		return []shared.Event{shared.NewStreakStartedEvent(userID, r.Current, r.Best, at)}
	case progress.OutcomeContinued:
		return []shared.Event{shared.NewStreakIncreasedEvent(userID, r.Current, r.Best, at)}
	case progress.OutcomeDecayed:
		return []shared.Event{shared.NewStreakResetEvent(userID, upd.Previous, r.Best, at)}
	}
	return nil
}
