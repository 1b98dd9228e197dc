package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence"
	"github.com/studybuddy/progress-engine/pkg/logger"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, persistence.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 500, cfg.Store.HistoryLimit)
	assert.Equal(t, time.Hour, cfg.Reminders.LeadTime)
	assert.Equal(t, "5m", cfg.Reminders.RearmSchedule)
	assert.Equal(t, ReminderTransportScheduler, cfg.Reminders.Transport)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Empty(t, cfg.HTTP.APIKeyHash)
	assert.True(t, cfg.Features.IsEnabled(FeatureNotifyFeed))
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Europe/Berlin")
	t.Setenv("STORE_BACKEND", " Postgres ")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "svc")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "progress")
	t.Setenv("REMINDER_LEAD_TIME", "15m")
	t.Setenv("SCHEDULER_REARM_INTERVAL", "*/10 * * * *")
	t.Setenv("REMINDER_TRANSPORT", "Queue")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REMINDER_QUEUE_CONCURRENCY", "2")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FEATURE_NOTIFY_PUBSUB", "false")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.App.Location.String())
	assert.Equal(t, persistence.BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://svc:pw@db:5432/progress?sslmode=disable", cfg.Store.DatabaseURL)
	assert.Equal(t, 15*time.Minute, cfg.Reminders.LeadTime)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.False(t, cfg.Features.IsEnabled(FeatureNotifyPubSub))
	assert.True(t, cfg.Features.IsEnabled(FeatureNotifyLog))

	assert.Equal(t, 9000, cfg.ServerConfig().Port)
	assert.Equal(t, logger.LevelDebug, cfg.LoggerOptions().Level)

	qc := cfg.ReminderQueueOptions()
	assert.Equal(t, "cache:6379", qc.Addr)
	assert.Equal(t, "reminders", qc.Queue)
	assert.Equal(t, 2, qc.Concurrency)

	opts := cfg.OpenOptions()
	assert.Equal(t, persistence.BackendPostgres, opts.Backend)
	assert.EqualValues(t, 10, opts.Pool.MaxConns)
	assert.True(t, opts.Migrate)
}

func TestFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown timezone", "APP_TIMEZONE", "Mars/Olympus"},
		{"unknown backend", "STORE_BACKEND", "mongo"},
		{"postgres without url", "STORE_BACKEND", "postgres"},
		{"bad rearm schedule", "SCHEDULER_REARM_INTERVAL", "every so often"},
		{"zero lead time", "REMINDER_LEAD_TIME", "0s"},
		{"unknown reminder transport", "REMINDER_TRANSPORT", "kafka"},
		{"port out of range", "HTTP_PORT", "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_MemoryRejectedInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND=memory")
}

func TestLoadFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_BACKEND=sqlite\nSQLITE_PATH=/tmp/p.db\n"), 0o600))

	// godotenv never overrides variables that are already set
	t.Setenv("SQLITE_PATH", "/data/progress.db")
	t.Cleanup(func() { _ = os.Unsetenv("STORE_BACKEND") })

	cfg, err := LoadFiles(path)
	require.NoError(t, err)
	assert.Equal(t, persistence.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/data/progress.db", cfg.Store.SQLitePath)
}

func TestFeatureFlags(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled("no.such.feature"))
	assert.ErrorIs(t, ff.SetEnabled("no.such.feature", true), ErrFeatureNotFound)

	require.NoError(t, ff.SetEnabled(FeatureRemindersRearm, false))
	assert.False(t, ff.IsEnabled(FeatureRemindersRearm))
	assert.NotContains(t, ff.EnabledFeatures(), FeatureRemindersRearm)
	assert.Equal(t, "FEATURE_REMINDERS_REARM", featureNameToEnvKey(FeatureRemindersRearm))
}
