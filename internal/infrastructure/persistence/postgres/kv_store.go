package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/studybuddy/progress-engine/internal/domain/shared"
)

// KVStore implements progress.Store on the progress_kv table. Each Set is a
// single UPSERT statement, so a value is replaced atomically.
type KVStore struct {
	conn *Connection
}

// NewKVStore creates a store on conn. The schema must already be migrated.
func NewKVStore(conn *Connection) *KVStore {
	return &KVStore{conn: conn}
}

// Get implements progress.Store.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var raw string
	err := s.conn.QueryRow(ctx, `SELECT value::text FROM progress_kv WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get %s: %w", key, err)
	}
	return []byte(raw), nil
}

// Set implements progress.Store.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO progress_kv (key, value, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, string(value))
	if err != nil {
		return fmt.Errorf("postgres: set %s: %w", key, err)
	}
	return nil
}

// Delete implements progress.Store.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.Exec(ctx, `DELETE FROM progress_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", key, err)
	}
	return nil
}

// Keys implements progress.Store.
func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT key FROM progress_kv WHERE key LIKE $1 ESCAPE '\' ORDER BY key`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("postgres: keys %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("postgres: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Ping implements progress.Store.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close implements progress.Store.
func (s *KVStore) Close() error {
	s.conn.Close()
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
