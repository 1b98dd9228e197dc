package progress

import (
	"context"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE CONTRACT
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Store is a durable key-value store holding one JSON document per key.
// Writes are atomic per key: readers never observe a partial value.
// There are no cross-key transactions.
type Store interface {
	// Get returns the raw value stored under key.
	// Returns shared.ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns every key starting with prefix, in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// ══════════════════════════════════════════════════════════════════════════════
// KEY LAYOUT
// ══════════════════════════════════════════════════════════════════════════════

const (
	keyNamespace = "studybuddy"

	KeyStreak         = "streak"
	KeyBadges         = "badges"
	KeyQuizHistory    = "quizHistory"
	KeySessionHistory = "sessionHistory"
	KeySessions       = "sessions"
)

// UserKey returns the storage key of a per-user value.
func UserKey(userID, name string) string {
	return keyNamespace + ":user:" + userID + ":" + name
}

// CounterKey returns the storage key of a usage counter.
func CounterKey(userID string, c Counter) string {
	return UserKey(userID, c.String())
}

// GroupSessionsKey returns the storage key of a group's scheduled sessions.
func GroupSessionsKey(groupID string) string {
	return keyNamespace + ":group:" + groupID + ":" + KeySessions
}

// GroupSessionsPrefix is the common prefix of every group sessions key.
func GroupSessionsPrefix() string {
	return keyNamespace + ":group:"
}

// GroupIDFromKey extracts the group ID from a GroupSessionsKey.
func GroupIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, GroupSessionsPrefix())
	if !ok {
		return "", false
	}
	groupID, ok := strings.CutSuffix(rest, ":"+KeySessions)
	if !ok || groupID == "" {
		return "", false
	}
	return groupID, true
}
