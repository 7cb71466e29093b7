package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Error implements repositories.RepositoryError for Redis backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing key.
func (e *Error) IsNotFound() bool {
	return e != nil && e.notFound
}

// IsConflict always reports false; key-value writes here are last-write-wins.
func (e *Error) IsConflict() bool {
	return false
}

// IsUnavailable reports whether the error represents a backend outage.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.unavailable
}

// wrapError annotates Redis errors with repository semantics. Context
// cancellations are passed through untouched.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, goredis.Nil) {
		return &Error{op: op, err: err, notFound: true}
	}
	return &Error{op: op, err: err, unavailable: true}
}
