package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when no session exists for an identity.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned when installing a session whose identity is taken.
var ErrSessionExists = errors.New("session already exists")

// ErrSessionKilled is returned when enqueuing into a session that is shutting down.
var ErrSessionKilled = errors.New("session killed")

// ErrElementNotFound is returned when a path does not resolve to an element.
var ErrElementNotFound = errors.New("element not found")

// ErrTargetNotFound is returned when a transition target is not reachable.
var ErrTargetNotFound = errors.New("transition target not found")

// ErrNoCaller is returned by a CALLER transition when no call-site was recorded.
var ErrNoCaller = errors.New("no caller recorded for tree")

// ErrKeyboardNotFound is returned when switching a keyboard that was never set.
var ErrKeyboardNotFound = errors.New("keyboard not found")

// ErrWaitInterrupted is returned when a wait is cancelled without an OnInterrupt handler.
var ErrWaitInterrupted = errors.New("wait interrupted")

// ErrUnknownController is returned when a tree names an unregistered controller.
var ErrUnknownController = errors.New("unknown controller")

// ErrMessageNotFound is returned when an edit targets an action that never sent a message.
var ErrMessageNotFound = errors.New("no message recorded for action")

// ConfigError reports a malformed hierarchy.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "invalid tree configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid tree configuration at %q: %s", e.Path, e.Reason)
}

// ActionError wraps a failure raised while executing an action.
type ActionError struct {
	Element string
	Action  string
	Err     error
}

func (e *ActionError) Error() string {
	name := e.Action
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("action %s in %q failed: %v", name, e.Element, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// TransitionError wraps a failure raised while applying a transition.
type TransitionError struct {
	Transition *Transition
	Err        error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s failed: %v", e.Transition, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
