// Package persistence turns a raw progress.Store into typed progression
// state and selects the configured backend.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/studybuddy/progress-engine/internal/domain/analytics"
	"github.com/studybuddy/progress-engine/internal/domain/badge"
	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/domain/reminder"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/internal/infrastructure/metrics"
	"github.com/studybuddy/progress-engine/pkg/logger"
)

// DefaultHistoryLimit caps the stored quiz and session histories.
const DefaultHistoryLimit = 500

// Repository reads and writes typed progression state.
//
// Read semantics:
//   - absent key: zero value, no error
//   - corrupted value: zero value, no error; logged and counted
//   - backend failure: zero value and an error wrapping shared.ErrStorage
//
// Callers that only display state may ignore the error and use the zero
// value. Callers that mutate state must abort on it so that a transient
// outage never overwrites real progress with initial state.
type Repository struct {
	store        progress.Store
	log          *logger.Logger
	metrics      *metrics.Metrics
	historyLimit int
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithHistoryLimit caps stored histories to n records (n > 0).
func WithHistoryLimit(n int) RepositoryOption {
	return func(r *Repository) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// NewRepository creates a Repository on store.
func NewRepository(store progress.Store, log *logger.Logger, m *metrics.Metrics, opts ...RepositoryOption) *Repository {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	r := &Repository{
		store:        store,
		log:          log.With(logger.Component("progress_repository")),
		metrics:      m,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying key-value store.
func (r *Repository) Store() progress.Store {
	return r.store
}

// Ping checks the backend.
func (r *Repository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

// LoadStreak returns the user's streak, or nil if none exists.
func (r *Repository) LoadStreak(ctx context.Context, userID string) (*progress.StreakRecord, error) {
	rec, found, err := load[progress.StreakRecord](ctx, r, progress.UserKey(userID, progress.KeyStreak))
	if err != nil || !found {
		return nil, err
	}
	if rec.LastActivityDate.IsZero() {
		r.corrupted(progress.UserKey(userID, progress.KeyStreak), errors.New("missing lastActivityDate"))
		return nil, nil
	}
	return &rec, nil
}

// SaveStreak persists the user's streak.
func (r *Repository) SaveStreak(ctx context.Context, userID string, rec progress.StreakRecord) error {
	return r.save(ctx, progress.UserKey(userID, progress.KeyStreak), rec)
}

// ══════════════════════════════════════════════════════════════════════════════
// COUNTERS
// ══════════════════════════════════════════════════════════════════════════════

// LoadCounters returns every usage counter of the user. Each counter lives
// under its own key.
func (r *Repository) LoadCounters(ctx context.Context, userID string) (progress.UsageCounters, error) {
	var counters progress.UsageCounters
	for _, c := range progress.AllCounters() {
		v, _, err := load[int](ctx, r, progress.CounterKey(userID, c))
		if err != nil {
			return progress.UsageCounters{}, err
		}
		counters.Set(c, v)
	}
	return counters, nil
}

// SaveCounter persists one usage counter.
func (r *Repository) SaveCounter(ctx context.Context, userID string, c progress.Counter, value int) error {
	return r.save(ctx, progress.CounterKey(userID, c), value)
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// LoadBadges returns the user's badges merged with the catalog.
func (r *Repository) LoadBadges(ctx context.Context, userID string) ([]badge.Badge, error) {
	list, _, err := load[[]badge.Badge](ctx, r, progress.UserKey(userID, progress.KeyBadges))
	if err != nil {
		return badge.Merge(nil), err
	}
	return badge.Merge(list), nil
}

// SaveBadges persists the full badge list in one write.
func (r *Repository) SaveBadges(ctx context.Context, userID string, badges []badge.Badge) error {
	return r.save(ctx, progress.UserKey(userID, progress.KeyBadges), badges)
}

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY
// ══════════════════════════════════════════════════════════════════════════════

// LoadQuizHistory returns the user's quiz records, oldest first.
func (r *Repository) LoadQuizHistory(ctx context.Context, userID string) ([]analytics.QuizRecord, error) {
	list, _, err := load[[]analytics.QuizRecord](ctx, r, progress.UserKey(userID, progress.KeyQuizHistory))
	return list, err
}

// AppendQuiz appends rec to the user's quiz history.
func (r *Repository) AppendQuiz(ctx context.Context, userID string, rec analytics.QuizRecord) error {
	list, err := r.LoadQuizHistory(ctx, userID)
	if err != nil {
		return err
	}
	return r.save(ctx, progress.UserKey(userID, progress.KeyQuizHistory), capTail(append(list, rec), r.historyLimit))
}

// LoadSessionHistory returns the user's joined sessions, oldest first.
func (r *Repository) LoadSessionHistory(ctx context.Context, userID string) ([]analytics.SessionRecord, error) {
	list, _, err := load[[]analytics.SessionRecord](ctx, r, progress.UserKey(userID, progress.KeySessionHistory))
	return list, err
}

// AppendSession appends rec to the user's session history.
func (r *Repository) AppendSession(ctx context.Context, userID string, rec analytics.SessionRecord) error {
	list, err := r.LoadSessionHistory(ctx, userID)
	if err != nil {
		return err
	}
	return r.save(ctx, progress.UserKey(userID, progress.KeySessionHistory), capTail(append(list, rec), r.historyLimit))
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULED SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// LoadSessions returns the group's scheduled sessions.
func (r *Repository) LoadSessions(ctx context.Context, groupID string) (reminder.Sessions, error) {
	list, _, err := load[reminder.Sessions](ctx, r, progress.GroupSessionsKey(groupID))
	return list, err
}

// SaveSessions persists the group's full session list in one write.
func (r *Repository) SaveSessions(ctx context.Context, groupID string, sessions reminder.Sessions) error {
	if sessions == nil {
		sessions = reminder.Sessions{}
	}
	return r.save(ctx, progress.GroupSessionsKey(groupID), sessions)
}

// ListGroups returns the IDs of every group with stored sessions.
func (r *Repository) ListGroups(ctx context.Context) ([]string, error) {
	keys, err := r.store.Keys(ctx, progress.GroupSessionsPrefix())
	if err != nil {
		r.metrics.StoreErrors.WithLabelValues("keys").Inc()
		return nil, shared.WrapError("store", "ListGroups", shared.ErrStorage, "list group keys", err)
	}
	groups := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := progress.GroupIDFromKey(k); ok {
			groups = append(groups, id)
		}
	}
	return groups, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func load[T any](ctx context.Context, r *Repository, key string) (T, bool, error) {
	var zero T

	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if shared.IsNotFound(err) {
			return zero, false, nil
		}
		r.metrics.StoreErrors.WithLabelValues("get").Inc()
		r.log.Error("progress store read failed", logger.StoreKey(key), logger.Err(err))
		return zero, false, shared.WrapError("store", "Get", shared.ErrStorage, "read "+key, err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		r.corrupted(key, err)
		return zero, false, nil
	}
	return v, true, nil
}

func (r *Repository) save(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.store.Set(ctx, key, data); err != nil {
		r.metrics.StoreErrors.WithLabelValues("set").Inc()
		r.log.Error("progress store write failed", logger.StoreKey(key), logger.Err(err))
		return shared.WrapError("store", "Set", shared.ErrStorage, "write "+key, err)
	}
	return nil
}

func (r *Repository) corrupted(key string, err error) {
	r.metrics.StoreErrors.WithLabelValues("decode").Inc()
	r.log.Warn("corrupted progress value treated as absent", logger.StoreKey(key), logger.Err(err))
}

func capTail[T any](list []T, limit int) []T {
	if limit <= 0 || len(list) <= limit {
		return list
	}
	return list[len(list)-limit:]
}
