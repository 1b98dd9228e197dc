// Package metrics defines the Prometheus collectors of the progress engine.
// Collectors are registered on an injected Registerer so tests can use a
// private registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "studybuddy"

// Metrics groups every collector the engine exports.
type Metrics struct {
	StreakUpdates       *prometheus.CounterVec
	BadgesAwarded       *prometheus.CounterVec
	RemindersFired      *prometheus.CounterVec
	ReminderFailures    prometheus.Counter
	RemindersArmed      prometheus.Gauge
	StoreErrors         *prometheus.CounterVec
	NotificationsPosted *prometheus.CounterVec
	JobRuns             *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StreakUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streak_updates_total",
				Help:      "Streak operations by outcome",
			},
			[]string{"outcome"},
		),
		BadgesAwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "badges_awarded_total",
				Help:      "Badges awarded by badge id",
			},
			[]string{"badge"},
		),
		RemindersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_fired_total",
				Help:      "Session reminders dispatched, scheduled or catch-up",
			},
			[]string{"mode"},
		),
		ReminderFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_dispatch_failures_total",
				Help:      "Reminders whose dispatch failed after retries",
			},
		),
		RemindersArmed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminders_armed",
				Help:      "Reminder timers currently pending",
			},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Progress store failures by operation",
			},
			[]string{"op"},
		),
		NotificationsPosted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications delivered to sinks by event type",
			},
			[]string{"type"},
		),
		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_job_runs_total",
				Help:      "Scheduler job runs by job and result",
			},
			[]string{"job", "result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Request duration seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.StreakUpdates,
			m.BadgesAwarded,
			m.RemindersFired,
			m.ReminderFailures,
			m.RemindersArmed,
			m.StoreErrors,
			m.NotificationsPosted,
			m.JobRuns,
			m.HTTPRequests,
			m.HTTPDuration,
		)
	}
	return m
}

// Nop returns unregistered collectors, for tests and tools.
func Nop() *Metrics {
	return New(nil)
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveJob records one scheduler job run.
func (m *Metrics) ObserveJob(job string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
}
