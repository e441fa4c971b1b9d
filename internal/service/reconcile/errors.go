package reconcile

import "errors"

// Sentinel errors for the reconciliation service layer.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrNoTask       = errors.New("no pending task")
)
