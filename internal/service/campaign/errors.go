package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidSchedule   = errors.New("invalid campaign schedule")
	ErrDuplicateLead     = errors.New("lead already attached to campaign")
)
