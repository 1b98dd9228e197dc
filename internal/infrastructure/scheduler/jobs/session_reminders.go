// Package jobs contains the scheduled jobs of the progress engine.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/studybuddy/progress-engine/internal/domain/reminder"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/internal/infrastructure/metrics"
	"github.com/studybuddy/progress-engine/internal/infrastructure/scheduler"
	"github.com/studybuddy/progress-engine/pkg/keylock"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REMINDERS
// ══════════════════════════════════════════════════════════════════════════════

// SessionStore is the part of the progress repository the reminders need.
type SessionStore interface {
	LoadSessions(ctx context.Context, groupID string) (reminder.Sessions, error)
	SaveSessions(ctx context.Context, groupID string, sessions reminder.Sessions) error
	ListGroups(ctx context.Context) ([]string, error)
}

// SessionRemindersConfig contains configuration for SessionReminders.
type SessionRemindersConfig struct {
	// LeadTime is how long before a session starts its reminder fires.
	LeadTime time.Duration

	// Location is the timezone session dates and times are written in.
	Location *time.Location

	// Clock supplies the current time.
	Clock timeutil.Clock
}

// DefaultSessionRemindersConfig returns sensible defaults.
func DefaultSessionRemindersConfig() SessionRemindersConfig {
	return SessionRemindersConfig{
		LeadTime: time.Hour,
		Location: time.UTC,
		Clock:    timeutil.SystemClock{},
	}
}

// ReminderTimer is one armed reminder. Session IDs are only unique within
// a group, so a timer is identified by both.
type ReminderTimer struct {
	GroupID   string `json:"group_id"`
	SessionID string `json:"session_id"`

	// StartAt is the session start the timer was armed for. A timer whose
	// session has moved since is stale and does nothing.
	StartAt time.Time `json:"start_at"`

	FireAt  time.Time `json:"fire_at"`
	CatchUp bool      `json:"catch_up"`
}

// Key returns "<groupID>:<sessionID>". IDs never contain ':'.
func (t ReminderTimer) Key() string {
	return t.GroupID + ":" + t.SessionID
}

// ReminderTimers hosts the one-shot timers of armed reminders. An
// implementation calls SessionReminders.Deliver once a timer is due.
type ReminderTimers interface {
	Schedule(ctx context.Context, t ReminderTimer) error
	Cancel(ctx context.Context, t ReminderTimer) error

	// Release is called by Stop for each pending timer. In-process timers
	// are dropped; durable ones stay queued for the next start.
	Release(t ReminderTimer)
}

// SessionReminders arms one one-shot timer per upcoming session and
// delivers each reminder at most once.
//
// At-most-once holds across re-arming, restarts and concurrent timers
// because a reminder is marked fired in the store, under the group lock,
// before it is dispatched, and the dispatch itself is never repeated.
type SessionReminders struct {
	sessions  SessionStore
	publisher shared.EventPublisher
	locks     *keylock.Locker
	logger    *logger.Logger
	metrics   *metrics.Metrics
	config    SessionRemindersConfig

	mu     sync.Mutex
	timers ReminderTimers
	armed  map[string]ReminderTimer // by ReminderTimer.Key
}

// NewSessionReminders creates the reminder service with timers hosted by
// sched. locks must be the same group locker used by every session-list
// mutation.
func NewSessionReminders(
	sched *scheduler.Scheduler,
	sessions SessionStore,
	publisher shared.EventPublisher,
	locks *keylock.Locker,
	log *logger.Logger,
	m *metrics.Metrics,
	config SessionRemindersConfig,
) *SessionReminders {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock{}
	}

	r := &SessionReminders{
		sessions:  sessions,
		publisher: publisher,
		locks:     locks,
		logger:    log.With(logger.Component("session_reminders")),
		metrics:   m,
		config:    config,
		armed:     make(map[string]ReminderTimer),
	}
	r.timers = &schedulerTimers{sched: sched, deliver: r.Deliver}
	return r
}

// UseTimers replaces the timer host. Call it before anything is armed.
func (r *SessionReminders) UseTimers(timers ReminderTimers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers = timers
}

// LeadTime returns the configured reminder lead time.
func (r *SessionReminders) LeadTime() time.Duration {
	return r.config.LeadTime
}

// ArmGroup loads the group's sessions under the group lock and arms them.
func (r *SessionReminders) ArmGroup(ctx context.Context, groupID string) error {
	unlock, err := r.locks.LockContext(ctx, groupID)
	if err != nil {
		return err
	}
	defer unlock()

	sessions, err := r.sessions.LoadSessions(ctx, groupID)
	if err != nil {
		return fmt.Errorf("arm group %s: %w", groupID, err)
	}
	r.ArmSessions(groupID, sessions)
	return nil
}

// ArmSessions reconciles the timers of groupID with sessions, the group's
// full session list. Upcoming sessions get a timer at start minus lead
// time; sessions whose reminder point passed but which have not started
// fire immediately; everything else loses its timer. A session already
// armed for the same start keeps its timer.
func (r *SessionReminders) ArmSessions(groupID string, sessions reminder.Sessions) {
	now := r.config.Clock.Now()
	plan := reminder.PlanReminders(sessions, now, r.config.LeadTime, r.config.Location)

	keep := make(map[string]bool, len(plan.Arm)+len(plan.CatchUp))
	for _, a := range plan.Arm {
		t := newTimer(groupID, a, false)
		keep[t.Key()] = true
		r.arm(t)
	}
	for _, a := range plan.CatchUp {
		t := newTimer(groupID, a, true)
		keep[t.Key()] = true
		r.arm(t)
	}
	for _, s := range plan.Invalid {
		r.logger.Warn("session has an unparseable start, no reminder",
			logger.GroupID(groupID),
			logger.SessionID(s.ID),
		)
	}

	r.mu.Lock()
	var stale []string
	for key, t := range r.armed {
		if t.GroupID == groupID && !keep[key] {
			stale = append(stale, t.SessionID)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.Cancel(groupID, id)
	}
}

func newTimer(groupID string, a reminder.Arming, catchUp bool) ReminderTimer {
	return ReminderTimer{
		GroupID:   groupID,
		SessionID: a.Session.ID,
		StartAt:   a.StartAt,
		FireAt:    a.FireAt,
		CatchUp:   catchUp,
	}
}

func (r *SessionReminders) arm(t ReminderTimer) {
	key := t.Key()
	log := r.logger.With(logger.GroupID(t.GroupID), logger.SessionID(t.SessionID))

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.armed[key]; ok {
		// Catch-up timers carry the arming instant as fire time, so they
		// are matched on the session start only.
		if cur.StartAt.Equal(t.StartAt) && (cur.FireAt.Equal(t.FireAt) || (cur.CatchUp && t.CatchUp)) {
			return
		}
		if err := r.timers.Cancel(context.Background(), cur); err != nil {
			log.Warn("failed to cancel replaced reminder", logger.Err(err))
		}
		delete(r.armed, key)
	}

	if err := r.timers.Schedule(context.Background(), t); err != nil {
		log.Error("failed to arm reminder", logger.Err(err))
		r.metrics.RemindersArmed.Set(float64(len(r.armed)))
		return
	}
	r.armed[key] = t
	r.metrics.RemindersArmed.Set(float64(len(r.armed)))

	log.Debug("reminder armed",
		logger.Time("fire_at", t.FireAt),
		logger.Bool("catch_up", t.CatchUp),
	)
}

// Cancel removes the pending timer of a group's session, if any.
func (r *SessionReminders) Cancel(groupID, sessionID string) {
	key := ReminderTimer{GroupID: groupID, SessionID: sessionID}.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.armed[key]
	if !ok {
		return
	}
	if err := r.timers.Cancel(context.Background(), t); err != nil {
		r.logger.Warn("failed to cancel reminder",
			logger.GroupID(groupID),
			logger.SessionID(sessionID),
			logger.Err(err),
		)
	}
	delete(r.armed, key)
	r.metrics.RemindersArmed.Set(float64(len(r.armed)))
}

// Stop releases every pending timer.
func (r *SessionReminders) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.armed {
		r.timers.Release(t)
	}
	r.armed = make(map[string]ReminderTimer)
	r.metrics.RemindersArmed.Set(0)
}

// Pending returns the fire time of a group session's pending timer.
func (r *SessionReminders) Pending(groupID, sessionID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.armed[ReminderTimer{GroupID: groupID, SessionID: sessionID}.Key()]
	return t.FireAt, ok
}

// PendingCount returns the number of pending timers.
func (r *SessionReminders) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.armed)
}

// Deliver is called by the timer host when t is due. It forgets the local
// timer and fires the reminder.
func (r *SessionReminders) Deliver(ctx context.Context, t ReminderTimer) error {
	r.forget(t)
	return r.Fire(ctx, t)
}

// forget drops the armed entry of a due timer unless it was re-armed since.
func (r *SessionReminders) forget(t ReminderTimer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := t.Key()
	if cur, ok := r.armed[key]; ok && cur.StartAt.Equal(t.StartAt) && cur.FireAt.Equal(t.FireAt) {
		delete(r.armed, key)
		r.metrics.RemindersArmed.Set(float64(len(r.armed)))
	}
}

// Fire delivers the reminder of t unless it was already delivered, the
// session is gone, or the session moved to another start. The fired flag
// is persisted first; if that fails nothing is dispatched. The event is
// published exactly once; sinks that can fail transiently retry on their
// own, so a failure here is reported and not repeated.
func (r *SessionReminders) Fire(ctx context.Context, t ReminderTimer) error {
	log := r.logger.With(logger.GroupID(t.GroupID), logger.SessionID(t.SessionID))

	session, ok, err := r.markFired(ctx, t)
	if err != nil {
		r.metrics.ReminderFailures.Inc()
		log.Error("reminder not dispatched, fired flag could not be persisted", logger.Err(err))
		return err
	}
	if !ok {
		log.Debug("reminder skipped, session gone, moved or already reminded")
		return nil
	}

	event := shared.NewReminderDueEvent(t.GroupID, t.SessionID, session.Topic, t.StartAt, t.CatchUp, r.config.Clock.Now())

	mode := "scheduled"
	if t.CatchUp {
		mode = "catch_up"
	}

	if err := r.publisher.Publish(event); err != nil {
		r.metrics.ReminderFailures.Inc()
		log.Error("reminder dispatch failed", logger.String("mode", mode), logger.Err(err))
		return fmt.Errorf("dispatch reminder %s: %w", t.Key(), err)
	}

	r.metrics.RemindersFired.WithLabelValues(mode).Inc()
	log.Info("reminder dispatched", logger.String("mode", mode))

	return nil
}

func (r *SessionReminders) markFired(ctx context.Context, t ReminderTimer) (reminder.ScheduledSession, bool, error) {
	unlock, err := r.locks.LockContext(ctx, t.GroupID)
	if err != nil {
		return reminder.ScheduledSession{}, false, err
	}
	defer unlock()

	sessions, err := r.sessions.LoadSessions(ctx, t.GroupID)
	if err != nil {
		return reminder.ScheduledSession{}, false, err
	}

	session, found := sessions.Find(t.SessionID)
	if !found || session.ReminderFired {
		return reminder.ScheduledSession{}, false, nil
	}
	startsAt, err := session.StartsAt(r.config.Location)
	if err != nil || !startsAt.Equal(t.StartAt) {
		return reminder.ScheduledSession{}, false, nil
	}

	updated, ok := reminder.MarkFired(sessions, t.SessionID)
	if !ok {
		return reminder.ScheduledSession{}, false, nil
	}
	if err := r.sessions.SaveSessions(ctx, t.GroupID, updated); err != nil {
		return reminder.ScheduledSession{}, false, err
	}
	return session, true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-PROCESS TIMERS
// ══════════════════════════════════════════════════════════════════════════════

// schedulerTimers hosts reminder timers as one-shot scheduler jobs.
type schedulerTimers struct {
	sched   *scheduler.Scheduler
	deliver func(context.Context, ReminderTimer) error
}

func (s *schedulerTimers) Schedule(_ context.Context, t ReminderTimer) error {
	return s.sched.Register(&sessionReminderJob{timer: t, deliver: s.deliver}, scheduler.Once(t.FireAt))
}

func (s *schedulerTimers) Cancel(_ context.Context, t ReminderTimer) error {
	err := s.sched.Unregister(jobName(t))
	if errors.Is(err, scheduler.ErrJobNotFound) {
		return nil
	}
	return err
}

func (s *schedulerTimers) Release(t ReminderTimer) {
	_ = s.sched.Unregister(jobName(t))
}

func jobName(t ReminderTimer) string {
	return "reminder:" + t.Key()
}

// sessionReminderJob is the one-shot job of a single armed reminder.
type sessionReminderJob struct {
	timer   ReminderTimer
	deliver func(context.Context, ReminderTimer) error
}

// Name returns the job name.
func (j *sessionReminderJob) Name() string {
	return jobName(j.timer)
}

// Description returns a human-readable description.
func (j *sessionReminderJob) Description() string {
	return fmt.Sprintf("Reminds group %s of session %s", j.timer.GroupID, j.timer.SessionID)
}

// Run fires the reminder.
func (j *sessionReminderJob) Run(ctx context.Context) error {
	return j.deliver(ctx, j.timer)
}
