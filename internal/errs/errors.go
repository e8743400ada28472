package errs

import "errors"

var (
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrHistoryUnavailable = errors.New("history unavailable")
	ErrSendFailed         = errors.New("send failed")
	ErrEmptyMessage       = errors.New("empty message")
	ErrNotConnected       = errors.New("channel not connected")
	ErrUnauthorized       = errors.New("unauthorized")
)
