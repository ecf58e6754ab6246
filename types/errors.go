package types

import (
	"github.com/cockroachdb/errors"
)

// Error kinds follow the transient / capacity / fatal taxonomy: transient
// errors are retried or surfaced to the affected group's waiters while the
// pool stays alive; capacity errors are surfaced only to the waiter that hit
// the limit; fatal errors drive the pool into SHUTTING_DOWN.
var (
	// ErrPoolShuttingDown is returned to any waiter admitted after PrepareForShutdown.
	ErrPoolShuttingDown = errors.New("pool is shutting down")
	// ErrGroupShuttingDown is returned to any waiter admitted to a group that is shutting down.
	ErrGroupShuttingDown = errors.New("group is shutting down")
	// ErrAtFullCapacity is returned when MaxWaitQueueSize is configured and exceeded.
	ErrAtFullCapacity = errors.New("pool is at full capacity and the wait queue is full")
	// ErrRequestQueueTimeout is returned when a waiter's StartTimeout elapses before admission.
	ErrRequestQueueTimeout = errors.New("request queue timeout")
	// ErrProcessBusy is returned by Process.NewSession when no free session slot exists.
	ErrProcessBusy = errors.New("process has no free session slot")
	// ErrGroupNotFound is returned by lookups keyed on a group name or secret that doesn't exist.
	ErrGroupNotFound = errors.New("group not found")
	// ErrProcessNotFound is returned by lookups keyed on a pid/gupid that doesn't exist.
	ErrProcessNotFound = errors.New("process not found")
	// ErrCanceled is returned to a waiter whose ticket was canceled before admission.
	ErrCanceled = errors.New("get request canceled")
)

// SpawnError wraps a failure returned by the Spawner for a specific Options.
// It is a transient error: Group surfaces it to its current waiters and may
// retry according to policy; the pool itself stays alive.
type SpawnError struct {
	AppGroupName string
	Cause        error
}

func (e *SpawnError) Error() string {
	return errors.Wrapf(e.Cause, "spawn failed for group %q", e.AppGroupName).Error()
}

func (e *SpawnError) Unwrap() error { return e.Cause }

// NewSpawnError wraps cause as a SpawnError for the given group.
func NewSpawnError(appGroupName string, cause error) *SpawnError {
	return &SpawnError{AppGroupName: appGroupName, Cause: cause}
}

// InvariantViolation is raised by the invariant checker in self-checking
// mode. It is a fatal error: the pool transitions to SHUTTING_DOWN.
type InvariantViolation struct {
	Check   string
	Message string
}

func (e *InvariantViolation) Error() string {
	return errors.Newf("invariant %s violated: %s", e.Check, e.Message).Error()
}

// NewInvariantViolation constructs an InvariantViolation for check with message.
func NewInvariantViolation(check, message string) *InvariantViolation {
	return &InvariantViolation{Check: check, Message: message}
}
