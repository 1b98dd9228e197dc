package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/progress-engine/internal/infrastructure/scheduler/jobs"
	"github.com/studybuddy/progress-engine/pkg/logger"
)

var start = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type recordingDeliverer struct {
	timers []jobs.ReminderTimer
	err    error
}

func (d *recordingDeliverer) Deliver(_ context.Context, t jobs.ReminderTimer) error {
	d.timers = append(d.timers, t)
	return d.err
}

func newTestQueue(t *testing.T, d Deliverer) *ReminderQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	q := NewReminderQueue(cfg, d, logger.Nop())
	t.Cleanup(func() {
		_ = q.inspector.Close()
		_ = q.client.Close()
	})
	return q
}

func TestTaskID(t *testing.T) {
	base := jobs.ReminderTimer{GroupID: "g1", SessionID: "s1", StartAt: start, FireAt: start.Add(-time.Hour)}

	catchUp := base
	catchUp.FireAt = start.Add(-10 * time.Minute)
	catchUp.CatchUp = true
	assert.Equal(t, TaskID(base), TaskID(catchUp))

	otherGroup := base
	otherGroup.GroupID = "g2"
	assert.NotEqual(t, TaskID(base), TaskID(otherGroup))

	moved := base
	moved.StartAt = start.Add(2 * time.Hour)
	assert.NotEqual(t, TaskID(base), TaskID(moved))
}

func TestReminderQueue_HandlerDeliversTimer(t *testing.T) {
	d := &recordingDeliverer{}
	q := newTestQueue(t, d)

	timer := jobs.ReminderTimer{GroupID: "g1", SessionID: "s1", StartAt: start, FireAt: start.Add(-time.Hour)}
	payload, err := json.Marshal(timer)
	require.NoError(t, err)

	require.NoError(t, q.mux.ProcessTask(context.Background(), asynq.NewTask(TypeSessionReminder, payload)))
	require.Len(t, d.timers, 1)
	assert.Equal(t, "g1:s1", d.timers[0].Key())
	assert.True(t, d.timers[0].StartAt.Equal(start))

	d.err = errors.New("store down")
	assert.ErrorIs(t, q.mux.ProcessTask(context.Background(), asynq.NewTask(TypeSessionReminder, payload)), d.err)
}

func TestReminderQueue_BadPayloadIsNotRetried(t *testing.T) {
	d := &recordingDeliverer{}
	q := newTestQueue(t, d)

	err := q.mux.ProcessTask(context.Background(), asynq.NewTask(TypeSessionReminder, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, d.timers)
}

func TestAsynqLogger_FatalDoesNotExit(t *testing.T) {
	l := asynqLogger{log: logger.Nop()}
	assert.NotPanics(t, func() {
		l.Info("worker ", "started")
		l.Fatal("unreachable redis")
	})
}
