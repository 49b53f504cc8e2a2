package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotEditable       = errors.New("only draft campaigns can be edited")
	ErrScheduleInPast    = errors.New("scheduled_at must be in the future")
	ErrMissingSchedule   = errors.New("scheduled campaigns require scheduled_at")
)
