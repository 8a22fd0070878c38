package services

import "errors"

var (
	// ErrInvalidAmount rejects charge/use amounts <= 0. Nothing was read or
	// written.
	ErrInvalidAmount = errors.New("amount must be > 0")
	// ErrInsufficientBalance rejects a use that would take the balance below
	// zero. Balance and history are untouched.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidCredentials is returned by login for a bad email/password
	// pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
