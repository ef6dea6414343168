package taskpulse

import "errors"

// ErrDuplicateTask is returned when Track is called with an ID that is already tracked and not terminal.
var ErrDuplicateTask = errors.New("taskpulse: duplicate task id")

// ErrUnknownTask is returned when an operation references a task ID that is not tracked.
var ErrUnknownTask = errors.New("taskpulse: unknown task id")

// ErrUnknownState is returned when an invalid task state string is parsed.
var ErrUnknownState = errors.New("taskpulse: unknown state")

// ErrClosed is returned when an operation is attempted on a stopped coordinator.
var ErrClosed = errors.New("taskpulse: coordinator closed")

// ErrNotConnected is returned by Emit when the push channel is not connected.
var ErrNotConnected = errors.New("taskpulse: push channel not connected")
