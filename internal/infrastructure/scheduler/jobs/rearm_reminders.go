package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studybuddy/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REARM REMINDERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// RearmRemindersJobName is the scheduler name of RearmRemindersJob.
const RearmRemindersJobName = "rearm-reminders"

// RearmRemindersJob periodically re-arms the reminders of every group with
// stored sessions. It picks up sessions written by other processes and
// recovers timers after a restart. Arming is idempotent, so repeated runs
// never duplicate a reminder.
type RearmRemindersJob struct {
	reminders *SessionReminders
	sessions  SessionStore
	logger    *logger.Logger
	timeout   time.Duration
}

// NewRearmRemindersJob creates the job.
func NewRearmRemindersJob(reminders *SessionReminders, sessions SessionStore, log *logger.Logger) *RearmRemindersJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RearmRemindersJob{
		reminders: reminders,
		sessions:  sessions,
		logger:    log.With(logger.Component(RearmRemindersJobName)),
		timeout:   time.Minute,
	}
}

// Name returns the job name.
func (j *RearmRemindersJob) Name() string {
	return RearmRemindersJobName
}

// Description returns a human-readable description.
func (j *RearmRemindersJob) Description() string {
	return "Re-arms session reminders of every known group"
}

// Run executes the job. A failing group does not stop the others.
func (j *RearmRemindersJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	groups, err := j.sessions.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	var errs []error
	for _, groupID := range groups {
		if err := j.reminders.ArmGroup(ctx, groupID); err != nil {
			errs = append(errs, err)
			j.logger.Error("failed to re-arm group", logger.GroupID(groupID), logger.Err(err))
		}
	}

	j.logger.Debug("reminders re-armed",
		logger.Int("groups", len(groups)),
		logger.Int("pending", j.reminders.PendingCount()),
	)

	return errors.Join(errs...)
}
