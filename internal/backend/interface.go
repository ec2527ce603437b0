package backend

import (
	"context"

	"wealthywise/internal/amqp"
	"wealthywise/internal/services"
	"wealthywise/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the optional event client and a cleanup
// function releasing both.
type BackendResult struct {
	Store   storage.Store
	Events  *amqp.Client // nil when AMQP is disabled or unreachable
	Cleanup CleanupFunc
}

// Publisher returns the event publisher for the ledger, or nil when events
// are disabled.
func (r *BackendResult) Publisher() services.EventPublisher {
	if r.Events == nil {
		return nil
	}
	return r.Events
}

// Close runs the cleanup function if there is one.
func (r *BackendResult) Close() error {
	if r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP, optional for either backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
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
