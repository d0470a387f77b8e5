// Package backend selects the state.Store implementation from configuration.
package backend

import (
	"context"

	"dailybudget/internal/state"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult is the store plus its cleanup function.
type BackendResult struct {
	Store   state.Store
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific, optional initial content
	Seed map[string]string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
