package group

import (
	"time"

	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

// Waiter is one pending Get request sitting on a Group's or Pool's FIFO
// wait-list. The ID is the caller-owned handle used to cancel it or to let
// a timer surface RequestQueueTimeout.
type Waiter struct {
	ID       uint64
	Options  types.Options
	Deadline time.Time

	// Callback is invoked exactly once, from the post-lock callback phase,
	// with either a Session and a nil error, or a nil Session and an error.
	Callback func(*process.Session, error)

	canceled bool
}

// Cancel marks the waiter canceled. A drain pass that reaches it at the head
// of its queue removes it without calling Callback, so whoever cancels it is
// responsible for resolving it. Safe to call even after the waiter has
// already been resolved.
func (w *Waiter) Cancel() { w.canceled = true }

// Canceled reports whether Cancel was called.
func (w *Waiter) Canceled() bool { return w.canceled }

// Expired reports whether the waiter's deadline has passed.
func (w *Waiter) Expired(now time.Time) bool {
	return !w.Deadline.IsZero() && now.After(w.Deadline)
}
