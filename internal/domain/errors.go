package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound          = errors.New("not found")
	ErrUserNotFound      = errors.New("recipient user not found")
	ErrInvalidUser       = errors.New("user_id must be a positive integer")
	ErrNoMessages        = errors.New("message_ids must contain at least one id")
	ErrTooManyMessages   = errors.New("message_ids exceeds maximum of 1000 ids")
	ErrInvalidMessageID  = errors.New("message ids must be positive integers")
	ErrReplyTokenExpired = errors.New("reply address is unknown, expired or already used")
)
