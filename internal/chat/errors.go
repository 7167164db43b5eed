package chat

import "errors"

var (
	ErrNotOpen        = errors.New("connection not open")
	ErrClosed         = errors.New("session closed")
	ErrNotEligible    = errors.New("viewer is not a member of this event")
	ErrReadOnly       = errors.New("event has ended, chat is read-only")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrUnknownMessage = errors.New("unknown message")
)
