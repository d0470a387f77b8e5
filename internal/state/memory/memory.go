// Package memory is an in-process state.Store used for tests and for running
// without a database.
package memory

import (
	"context"
	"maps"
	"sync"

	"dailybudget/internal/state"
)

type Store struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// New returns a store pre-filled with seed, which may be nil.
func New(seed map[string]string) *Store {
	data := make(map[string]string, len(seed))
	maps.Copy(data, seed)
	return &Store{data: data}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, state.ErrClosed
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return state.ErrClosed
	}
	s.data[key] = value
	return nil
}

// Update stages writes in a private overlay and merges it on success.
// The store lock is held for the whole call, so updates are serialized.
func (s *Store) Update(ctx context.Context, fn func(state.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return state.ErrClosed
	}
	tx := &tx{base: s.data, staged: map[string]string{}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	maps.Copy(s.data, tx.staged)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Snapshot copies the raw content, for tests and debugging.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

type tx struct {
	base   map[string]string
	staged map[string]string
}

func (t *tx) Get(_ context.Context, key string) (string, bool, error) {
	if v, ok := t.staged[key]; ok {
		return v, true, nil
	}
	v, ok := t.base[key]
	return v, ok, nil
}

func (t *tx) Set(_ context.Context, key, value string) error {
	t.staged[key] = value
	return nil
}
