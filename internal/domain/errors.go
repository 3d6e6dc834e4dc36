package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrNoLevels          = errors.New("no grid levels on side")
	ErrOversold          = errors.New("sell exceeds tracked inventory")
	ErrLockHeld          = errors.New("lock already held")
	ErrNotRunning        = errors.New("bot is not running")
)
