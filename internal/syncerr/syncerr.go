// Package syncerr classifies the failures that stop a fork sync run.
// Every error carries a Kind that can be checked with errors.Is and an
// optional one-line remedy for the operator.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a sync failure
type Kind string

const (
	KindConfig     Kind = "config"
	KindNetwork    Kind = "network"
	KindConflict   Kind = "conflict"
	KindUnexpected Kind = "unexpected"
)

// Sentinel errors, one per Kind, for use with errors.Is.
var (
	ErrConfig     = errors.New("configuration error")
	ErrNetwork    = errors.New("network error")
	ErrConflict   = errors.New("conflict")
	ErrUnexpected = errors.New("unexpected error")
)

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Op     string // step that failed, e.g. "fetch upstream"
	Remedy string // what the operator should do next
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's Kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindNetwork:
		return ErrNetwork
	case KindConflict:
		return ErrConflict
	default:
		return ErrUnexpected
	}
}

// Config returns a configuration error.
func Config(op, remedy string, err error) *Error {
	return &Error{Kind: KindConfig, Op: op, Remedy: remedy, Err: err}
}

// Network returns a network error.
func Network(op, remedy string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Remedy: remedy, Err: err}
}

// Conflict returns a conflict error.
func Conflict(op, remedy string, err error) *Error {
	return &Error{Kind: KindConflict, Op: op, Remedy: remedy, Err: err}
}

// KindOf reports the Kind of err. Unclassified errors are KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// RemedyOf returns the remedy attached to err, if any.
func RemedyOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Remedy
	}
	return ""
}
