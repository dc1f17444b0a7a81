package app

import (
	"time"

	"github.com/google/uuid"
)

// Operation tracks one CLI invocation. Its ID tags every line the
// invocation writes to the log file, so a failed command can be traced
// from the activity log back to the detailed command output.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Status     string // "success" or "error"
	StartedAt  time.Time
}

// NewOperation creates an operation with a fresh ID.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		ID:         uuid.New().String(),
		Name:       name,
		Parameters: parameters,
		Status:     "success",
		StartedAt:  time.Now().UTC(),
	}
}

// Observe marks the operation failed when err is non-nil and returns err.
func (op *Operation) Observe(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}

// Failed reports whether any observed step failed.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
