package core

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrSignatureDenied    = errors.New("signature denied")
	ErrSessionExpired     = errors.New("session expired, please sign in again")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNoSession          = errors.New("no active session")
	ErrRefreshRejected    = errors.New("refresh rejected")
	ErrNoCredential       = errors.New("no credential stored")
	ErrInvalidAddress     = errors.New("invalid wallet address")
)

// LoginRejectedError is returned when the server refuses a signed challenge
type LoginRejectedError struct {
	Status int
	Reason string
}

func (e *LoginRejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("login rejected (status %d)", e.Status)
	}
	return fmt.Sprintf("login rejected: %s", e.Reason)
}

// RateLimitedError carries the cooldown the faucet asked for
type RateLimitedError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Deadline returns the instant the cooldown ends
func (e *RateLimitedError) Deadline(now time.Time) time.Time {
	return now.Add(e.RetryAfter)
}

// StatusError is a non-2xx response that is not handled elsewhere
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: status %d: %s", e.Err, e.Code, msg)
	}
	return fmt.Sprintf("status %d: %s", e.Code, msg)
}

func (e *StatusError) Unwrap() error { return e.Err }

// NetworkError wraps transport-level failures. Callers may retry; the refresh
// coordinator never does.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
