package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/progress-engine/internal/domain/shared"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "progress.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	_, err := s.Get(ctx, "studybuddy:user:u1:badges")
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, s.Set(ctx, "studybuddy:user:u1:badges", []byte(`[]`)))
	require.NoError(t, s.Set(ctx, "studybuddy:user:u1:badges", []byte(`[{"id":"first-quiz"}]`)))

	v, err := s.Get(ctx, "studybuddy:user:u1:badges")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"first-quiz"}]`, string(v))

	require.NoError(t, s.Delete(ctx, "studybuddy:user:u1:badges"))
	_, err = s.Get(ctx, "studybuddy:user:u1:badges")
	assert.True(t, shared.IsNotFound(err))
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	require.NoError(t, s.Set(ctx, "k", []byte(`5`)))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `5`, string(v))
}

func TestStore_KeysTreatsPrefixLiterally(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	for _, k := range []string{"g%:x", "g%:a", "gz:a"} {
		require.NoError(t, s.Set(ctx, k, []byte(`1`)))
	}

	keys, err := s.Keys(ctx, "g%:")
	require.NoError(t, err)
	assert.Equal(t, []string{"g%:a", "g%:x"}, keys)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	assert.Error(t, err)
}
