package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/progress-engine/internal/domain/shared"
)

// newTestStore connects to TEST_DATABASE_URL and skips when it is unset.
func newTestStore(t *testing.T) *KVStore {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := NewConnectionFromURL(ctx, url, DefaultPoolOptions())
	require.NoError(t, err)
	require.NoError(t, NewMigrator(conn).Migrate(ctx))

	s := NewKVStore(conn)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKVStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "studybuddy:test:" + uuid.NewString()
	t.Cleanup(func() { _ = s.Delete(context.Background(), key) })

	_, err := s.Get(ctx, key)
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, s.Set(ctx, key, []byte(`{"current": 3}`)))
	require.NoError(t, s.Set(ctx, key, []byte(`{"current": 4}`)))

	v, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"current":4}`, string(v))
}

func TestKVStore_KeysEscapesWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	prefix := "studybuddy:test_" + uuid.NewString() + ":"

	keys := []string{prefix + "a", prefix + "b"}
	for _, k := range keys {
		require.NoError(t, s.Set(ctx, k, []byte(`[]`)))
		k := k
		t.Cleanup(func() { _ = s.Delete(context.Background(), k) })
	}

	got, err := s.Keys(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, keys, got)
}

func TestMigrator_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, NewMigrator(s.conn).Migrate(context.Background()))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\_b\%c\\`, escapeLike(`a_b%c\`))
}
