// Package memory implements an in-process progress store. It backs tests
// and single-process development runs; nothing survives a restart.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/studybuddy/progress-engine/internal/domain/shared"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory: store is closed")

// Store is a map-backed key-value store safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool

	// failWith, when set, is returned by every operation. Tests use it to
	// simulate an unreachable backend.
	failWith error

	// failWrites, when set, is returned by Set and Delete only.
	failWrites error

	// failKeys fails writes to single keys.
	failKeys map[string]error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get implements progress.Store.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(); err != nil {
		return nil, err
	}
	v, ok := s.data[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set implements progress.Store.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWrite(key); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return nil
}

// Delete implements progress.Store.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWrite(key); err != nil {
		return err
	}
	delete(s.data, key)
	return nil
}

// Keys implements progress.Store.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(); err != nil {
		return nil, err
	}
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping implements progress.Store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check()
}

// Close implements progress.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Poison stores raw bytes under key, bypassing any encoding. Tests use it
// to plant corrupted values.
func (s *Store) Poison(key string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
}

// FailWith makes every later operation return err. A nil err heals the store.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// FailWritesWith makes later writes return err while reads keep working.
// A nil err heals the store.
func (s *Store) FailWritesWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

// FailWritesToKey makes later writes to key return err. A nil err heals
// the key.
func (s *Store) FailWritesToKey(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failKeys, key)
		return
	}
	if s.failKeys == nil {
		s.failKeys = make(map[string]error)
	}
	s.failKeys[key] = err
}

func (s *Store) checkWrite(key string) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.failWrites != nil {
		return s.failWrites
	}
	return s.failKeys[key]
}

func (s *Store) check() error {
	if s.closed {
		return ErrClosed
	}
	return s.failWith
}
