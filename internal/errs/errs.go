// Package errs classifies the failures recall surfaces to its callers.
// Callers branch on kind with errors.Is against the sentinel values.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the classification of an error for handling purposes.
type Kind int

const (
	// KindStorage is a backing-store failure: I/O, constraint violation, closed pool.
	KindStorage Kind = iota
	// KindValidation is a caller mistake that retrying will not fix.
	KindValidation
	// KindPoolExhausted means no connection became available within the acquire timeout.
	KindPoolExhausted
	// KindNotFound means a referenced record does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindStorage:
		return "storage"
	case KindValidation:
		return "validation"
	case KindPoolExhausted:
		return "pool_exhausted"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrStorage       = errors.New("storage error")
	ErrValidation    = errors.New("validation error")
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrNotFound      = errors.New("not found")
)

// Error is a classified error carrying the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrStorage:
		return e.Kind == KindStorage
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrPoolExhausted:
		return e.Kind == KindPoolExhausted
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// Validation builds a KindValidation error.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Storage wraps err as a KindStorage error. A nil err returns nil.
// Errors that are already classified pass through unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// PoolExhausted reports that acquisition gave up after waiting for wait.
func PoolExhausted(op string, wait time.Duration) error {
	return &Error{Kind: KindPoolExhausted, Op: op, Msg: fmt.Sprintf("no connection available after %s", wait)}
}

// NotFound reports a missing record.
func NotFound(op, id string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("%q not found", id)}
}

// KindOf returns the kind of a classified error and false for anything else.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether the caller may retry the operation later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolExhausted)
}
