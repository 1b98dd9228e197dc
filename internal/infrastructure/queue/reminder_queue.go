// Package queue hosts session reminder timers on a Redis-backed asynq
// queue. Unlike the in-process scheduler, queued reminders survive a
// restart and are shared by every instance reading the same queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/studybuddy/progress-engine/internal/infrastructure/scheduler/jobs"
	"github.com/studybuddy/progress-engine/pkg/logger"
)

const (
	// TypeSessionReminder is the asynq task type of a session reminder.
	TypeSessionReminder = "reminder:session"

	// DefaultQueue is the queue reminders are enqueued on.
	DefaultQueue = "reminders"
)

// Deliverer fires a due reminder. Implemented by jobs.SessionReminders.
type Deliverer interface {
	Deliver(ctx context.Context, t jobs.ReminderTimer) error
}

// Config holds the queue settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Queue name, DefaultQueue when empty
	Queue string

	// Concurrent reminder deliveries per instance
	Concurrency int

	// Attempts after a failed delivery. Delivery is guarded by the
	// stored fired flag, so a retry never repeats a dispatched reminder.
	MaxRetry int

	// Per-delivery deadline
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		Queue:       DefaultQueue,
		Concurrency: 5,
		MaxRetry:    3,
		Timeout:     30 * time.Second,
	}
}

var _ jobs.ReminderTimers = (*ReminderQueue)(nil)

// ReminderQueue implements jobs.ReminderTimers with one scheduled asynq
// task per armed reminder.
type ReminderQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	server    *asynq.Server
	mux       *asynq.ServeMux
	deliverer Deliverer
	config    Config
	logger    *logger.Logger
}

// NewReminderQueue creates the queue. Nothing is consumed until Start.
func NewReminderQueue(config Config, deliverer Deliverer, log *logger.Logger) *ReminderQueue {
	if log == nil {
		log = logger.Nop()
	}
	if config.Queue == "" {
		config.Queue = DefaultQueue
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	log = log.With(logger.Component("reminder_queue"))

	redisOpt := asynq.RedisClientOpt{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	q := &ReminderQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		mux:       asynq.NewServeMux(),
		deliverer: deliverer,
		config:    config,
		logger:    log,
	}

	q.server = asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: config.Concurrency,
		Queues:      map[string]int{config.Queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("reminder task failed",
				logger.String("task_type", task.Type()),
				logger.Err(err),
			)
		}),
		Logger:   asynqLogger{log: log},
		LogLevel: asynq.WarnLevel,
	})
	q.mux.HandleFunc(TypeSessionReminder, q.handleReminder)

	return q
}

// Start begins consuming due reminders in the background.
func (q *ReminderQueue) Start() error {
	q.logger.Info("starting reminder queue worker", logger.String("queue", q.config.Queue))
	if err := q.server.Start(q.mux); err != nil {
		return fmt.Errorf("start reminder queue: %w", err)
	}
	return nil
}

// Stop waits for running deliveries and closes the connections. Queued
// reminders stay in Redis.
func (q *ReminderQueue) Stop() {
	q.logger.Info("stopping reminder queue...")
	q.server.Shutdown()
	_ = q.inspector.Close()
	_ = q.client.Close()
}

// Schedule enqueues t to be processed at its fire time. A reminder that
// is already queued for the same session start is left as is.
func (q *ReminderQueue) Schedule(ctx context.Context, t jobs.ReminderTimer) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder payload: %w", err)
	}

	task := asynq.NewTask(TypeSessionReminder, payload)
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(q.config.Queue),
		asynq.TaskID(TaskID(t)),
		asynq.ProcessAt(t.FireAt),
		asynq.MaxRetry(q.config.MaxRetry),
		asynq.Timeout(q.config.Timeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue reminder %s: %w", t.Key(), err)
	}

	q.logger.Debug("queued reminder",
		logger.String("task_id", info.ID),
		logger.Time("process_at", t.FireAt),
	)
	return nil
}

// Cancel deletes the queued task of t, if it is still waiting.
func (q *ReminderQueue) Cancel(_ context.Context, t jobs.ReminderTimer) error {
	err := q.inspector.DeleteTask(q.config.Queue, TaskID(t))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

// Release keeps the task queued. Another instance, or this one after a
// restart, delivers it.
func (q *ReminderQueue) Release(jobs.ReminderTimer) {}

// TaskID is the asynq task ID of a reminder: one per group session and
// start, so re-arming never queues a second task for the same reminder.
func TaskID(t jobs.ReminderTimer) string {
	return "reminder:" + t.Key() + ":" + strconv.FormatInt(t.StartAt.Unix(), 10)
}

func (q *ReminderQueue) handleReminder(ctx context.Context, task *asynq.Task) error {
	var t jobs.ReminderTimer
	if err := json.Unmarshal(task.Payload(), &t); err != nil {
		return fmt.Errorf("failed to unmarshal reminder payload: %v: %w", err, asynq.SkipRetry)
	}
	return q.deliverer.Deliver(ctx, t)
}

// asynqLogger routes asynq's own logging into the service logger.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }

// Fatal logs at error level; the worker decides itself whether to stop.
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
