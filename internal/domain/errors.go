package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound             = errors.New("not found")
	ErrUnknownJobType       = errors.New("unknown notification job type")
	ErrInvalidPayload       = errors.New("invalid notification payload")
	ErrInvalidChannel       = errors.New("invalid channel: must be EMAIL, SMS, or PUSH")
	ErrMissingPhoneNumber   = errors.New("user has no phone number")
	ErrChannelNotConfigured = errors.New("channel provider is not configured")
	ErrDeadLetterNotFound   = errors.New("dead letter not found")
)
