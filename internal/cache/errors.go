package cache

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConnect Kind = "connect"
	KindBackend Kind = "backend"
	KindCodec   Kind = "codec"
)

// Error is the failure produced by the internal cache layer. Public Cache methods
// log it and fall back to their safe default.
type Error struct {
	Kind  Kind
	Op    string
	Key   string
	Cause error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("[cache:%s] %s %s: %v", e.Kind, e.Op, e.Key, e.Cause)
	}
	return fmt.Sprintf("[cache:%s] %s: %v", e.Kind, e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func wrap(kind Kind, op, key string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{Kind: kind, Op: op, Key: key, Cause: err}
}

// IsKind checks whether err is a cache error of the given kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}
