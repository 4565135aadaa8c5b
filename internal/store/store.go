// Package store persists trained models and their loss traces.
package store

// Store defines the interface for model persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveModel atomically saves the model of a run, overwriting any
	// previous model with the same run ID.
	SaveModel(runID string, model *Model) error

	// LoadModel retrieves the model of a run.
	// Returns ErrNotFound if no model exists for runID.
	LoadModel(runID string) (*Model, error)

	// ListModels returns metadata for all saved models. Unreadable models
	// are skipped.
	ListModels() ([]ModelInfo, error)

	// DeleteModel removes the model and every artifact of the run,
	// including its trace.
	// Returns ErrNotFound if the run doesn't exist.
	DeleteModel(runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
