package protocol

import (
	"context"
	"fmt"
)

// Stateful is implemented by actors whose methods are gated on a lifecycle state
type Stateful interface {
	State() string
}

// StateError reports a call made while the owner was in the wrong state.
// It travels on the wire as a "wrongState" error.
type StateError struct {
	Expected string
	Actual   string
	Activity string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while in state %q, expected state %q", e.Activity, e.Actual, e.Expected)
}

// WireName implements wireError
func (e *StateError) WireName() string { return "wrongState" }

// WireMessage implements wireError
func (e *StateError) WireMessage() string { return e.Error() }

// CheckState returns a *StateError unless owner is in the expected state
func CheckState(owner Stateful, expected, activity string) error {
	if actual := owner.State(); actual != expected {
		return &StateError{Expected: expected, Actual: actual, Activity: activity}
	}
	return nil
}

// ExpectState wraps method so that it only runs while owner is in the
// expected state. On mismatch the wrapped method is not called at all.
func ExpectState(owner Stateful, expected, activity string, method Method) Method {
	return func(ctx context.Context, req Packet) (Packet, error) {
		if err := CheckState(owner, expected, activity); err != nil {
			return nil, err
		}
		return method(ctx, req)
	}
}

// Guard is the closure form of ExpectState for methods of any arity:
// callers capture their arguments in fn.
func Guard[R any](owner Stateful, expected, activity string, fn func() (R, error)) func() (R, error) {
	return func() (R, error) {
		if err := CheckState(owner, expected, activity); err != nil {
			var zero R
			return zero, err
		}
		return fn()
	}
}
