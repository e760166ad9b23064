package workflow

import "errors"

var (
	// ErrScopeRequired is returned when a target is chosen before its required scope
	ErrScopeRequired = errors.New("workflow: scope must be selected first")
	// ErrInvalidTransition is returned for an event the current state does not accept
	ErrInvalidTransition = errors.New("workflow: invalid transition")
	// ErrBusy is returned for any event other than close while a commit is in flight
	ErrBusy = errors.New("workflow: commit in progress")
	// ErrClosed is returned for events on a dialog that is not open
	ErrClosed = errors.New("workflow: dialog is closed")
	// ErrUnknownOption is returned when an ID is not among the loaded options
	ErrUnknownOption = errors.New("workflow: option not available")
	// ErrUnknownReason is returned for a reason outside the flow's catalog
	ErrUnknownReason = errors.New("workflow: reason not in catalog")
)
