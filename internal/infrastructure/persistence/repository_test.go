package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/progress-engine/internal/domain/analytics"
	"github.com/studybuddy/progress-engine/internal/domain/badge"
	"github.com/studybuddy/progress-engine/internal/domain/progress"
	"github.com/studybuddy/progress-engine/internal/domain/reminder"
	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/internal/infrastructure/metrics"
	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/studybuddy/progress-engine/pkg/logger"
	"github.com/studybuddy/progress-engine/pkg/retry"
	"github.com/studybuddy/progress-engine/pkg/timeutil"
)

func newRepo(t *testing.T, opts ...RepositoryOption) (*Repository, *memory.Store, *metrics.Metrics) {
	t.Helper()
	store := memory.NewStore()
	m := metrics.Nop()
	return NewRepository(store, logger.Nop(), m, opts...), store, m
}

func TestRepository_StreakRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepo(t)

	rec, err := repo.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	want := progress.StreakRecord{Current: 2, Best: 4, LastActivityDate: timeutil.MustParseDate("2024-01-02")}
	require.NoError(t, repo.SaveStreak(ctx, "u1", want))

	rec, err = repo.LoadStreak(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, want, *rec)
}

func TestRepository_CorruptedValuesAreAbsent(t *testing.T) {
	ctx := context.Background()
	repo, store, m := newRepo(t)

	store.Poison(progress.UserKey("u1", progress.KeyStreak), []byte(`{"current":`))
	store.Poison(progress.UserKey("u1", progress.KeyBadges), []byte(`not json`))
	store.Poison(progress.CounterKey("u1", progress.CounterQuiz), []byte(`"seven"`))

	rec, err := repo.LoadStreak(ctx, "u1")
	assert.NoError(t, err)
	assert.Nil(t, rec)

	badges, err := repo.LoadBadges(ctx, "u1")
	assert.NoError(t, err)
	assert.Len(t, badges, len(badge.Catalog()))
	assert.Zero(t, badge.EarnedCount(badges))

	counters, err := repo.LoadCounters(ctx, "u1")
	assert.NoError(t, err)
	assert.Equal(t, progress.UsageCounters{}, counters)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("decode")))
}

func TestRepository_StreakWithoutDateIsAbsent(t *testing.T) {
	repo, store, _ := newRepo(t)
	store.Poison(progress.UserKey("u1", progress.KeyStreak), []byte(`{"current":3,"best":3}`))

	rec, err := repo.LoadStreak(context.Background(), "u1")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRepository_BackendFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	repo, store, m := newRepo(t)
	store.FailWith(errors.New("connection refused"))

	rec, err := repo.LoadStreak(ctx, "u1")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, shared.ErrStorage)

	err = repo.SaveCounter(ctx, "u1", progress.CounterQuiz, 1)
	assert.ErrorIs(t, err, shared.ErrStorage)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("set")))
}

func TestRepository_CountersAreSeparateKeys(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newRepo(t)

	require.NoError(t, repo.SaveCounter(ctx, "u1", progress.CounterQuiz, 3))
	require.NoError(t, repo.SaveCounter(ctx, "u1", progress.CounterAIUsage, 5))

	raw, err := store.Get(ctx, "studybuddy:user:u1:quizCount")
	require.NoError(t, err)
	assert.Equal(t, "3", string(raw))

	counters, err := repo.LoadCounters(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, progress.UsageCounters{QuizCount: 3, AIUsageCount: 5}, counters)
}

func TestRepository_HistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepo(t, WithHistoryLimit(3))

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendQuiz(ctx, "u1", analytics.QuizRecord{Score: i}))
	}
	list, err := repo.LoadQuizHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 2, list[0].Score)
	assert.Equal(t, 4, list[2].Score)

	require.NoError(t, repo.AppendSession(ctx, "u1", analytics.SessionRecord{DurationMinutes: 30}))
	sessions, err := repo.LoadSessionHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestRepository_SessionsAndGroups(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepo(t)

	s := reminder.ScheduledSession{ID: "s1", GroupID: "g2", Topic: "Graphs", Date: timeutil.MustParseDate("2024-05-01"), Time: "10:00"}
	require.NoError(t, repo.SaveSessions(ctx, "g2", reminder.Sessions{s}))
	require.NoError(t, repo.SaveSessions(ctx, "g1", nil))

	list, err := repo.LoadSessions(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, reminder.Sessions{s}, list)

	groups, err := repo.ListGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, groups)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, OpenOptions{Backend: BackendMemory}, logger.Nop())
	require.NoError(t, err)
	assert.NoError(t, s.Ping(ctx))

	s, err = Open(ctx, OpenOptions{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "p.db")}, logger.Nop())
	require.NoError(t, err)
	assert.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	_, err = Open(ctx, OpenOptions{Backend: "cassandra"}, logger.Nop())
	assert.Error(t, err)

	_, err = Open(ctx, OpenOptions{Backend: BackendPostgres}, logger.Nop())
	assert.Error(t, err)
}

func TestOpen_RedisRetriesThenFails(t *testing.T) {
	opts := OpenOptions{
		Backend: BackendRedis,
		Retry:   []retry.Option{retry.WithMaxAttempts(2), retry.WithInitialDelay(time.Millisecond)},
	}
	opts.Redis.Host = "127.0.0.1"
	opts.Redis.Port = 1
	opts.Redis.DialTimeout = 100 * time.Millisecond
	opts.Redis.MaxRetries = -1

	_, err := Open(context.Background(), opts, logger.Nop())
	assert.Error(t, err)
}

func TestParseBackend(t *testing.T) {
	assert.Equal(t, BackendRedis, ParseBackend(" Redis "))
	assert.True(t, ParseBackend("sqlite").IsValid())
	assert.False(t, ParseBackend("mongo").IsValid())
}
