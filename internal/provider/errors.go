package provider

import (
	"fmt"
	"time"
)

type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindNetwork
	KindRateLimited
	KindInvalidRequest
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidRequest:
		return "invalid_request"
	case KindServer:
		return "server"
	default:
		return "provider"
	}
}

// Error is the typed outcome of a failed provider call.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s error (http %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed: no response, 5xx,
// or 429. Other 4xx outcomes are permanent.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindServer, KindRateLimited:
		return true
	default:
		return false
	}
}
