// iface.go defines the StoreInterface for dependency injection and
// testing. The concrete *Store type satisfies it; the cmd layer accepts
// the interface so tests can inject mocks.
package store

import "github.com/daviddao/lamportsim/pkg/model"

// StoreInterface defines the full set of store operations.
type StoreInterface interface {
	// Close closes the database connection.
	Close() error

	// SaveRun persists a finished run with its audit log and operations.
	SaveRun(r *model.Run, msgs []model.Message, ops []model.Operation) error

	// GetRun retrieves a run summary by id.
	GetRun(id string) (*model.Run, error)

	// ListRuns returns all persisted runs, most recent first.
	ListRuns() ([]model.Run, error)

	// ListMessages returns a run's messages in extended Lamport order.
	ListMessages(runID string, sinceTS int64, limit int) ([]model.Message, error)

	// CountMessages returns the number of persisted messages for a run.
	CountMessages(runID string) int64

	// ListOperations returns a run's critical-section operations.
	ListOperations(runID string) ([]model.Operation, error)
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
