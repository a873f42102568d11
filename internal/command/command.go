// Package command defines the values that flow through the dock command bus:
// the Command contract, the Result of executing one, the immutable Context
// handed to executors, and the stable catalog of command kinds.
package command

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrInvalidArgument is returned for programmer mistakes: a missing command,
// context handle, executor or catalog id. It never describes a domain failure.
var ErrInvalidArgument = errors.New("invalid argument")

// Kind is the explicit discriminant every command carries. Coalescing and
// diagnostics compare kinds, never concrete Go types.
type Kind string

// Command is a discrete request to mutate docking state.
type Command interface {
	Kind() Kind
}

func missing(name string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
}

// IsNil reports whether cmd is nil, including a nil pointer (or other
// nil-able value) stored in the interface. Calling Kind on such a command
// may panic, so callers check this first.
func IsNil(cmd Command) bool {
	if cmd == nil {
		return true
	}
	v := reflect.ValueOf(cmd)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
