// Package backend selects and opens the record store behind the household
// service.
package backend

import (
	"context"

	"delat/internal/services"
)

// Backend is a record store that also feeds the recurring processor.
type Backend interface {
	services.Store
	services.RecurringSource
	Ping(ctx context.Context) error
	Close() error
}

// BackendType represents the type of record store.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
