package process

import "sync"

// Session is the opaque handle a caller receives from NewSession. It grants
// exclusive (or concurrent, depending on Process.Concurrency) use of the
// underlying Process for one request lifetime. Closing it is the only way
// session state and process bookkeeping move forward; callers must always
// close a Session they were handed, exactly once.
//
// A Session keeps a plain pointer to its Process, not a reference count.
// Detaching a process removes it from its Group's lists and schedules
// Pool.queueDetach, which terminates the OS process right away; Sessions
// still open on that process are not waited for, and their next use of the
// worker fails.
type Session struct {
	process *Process
	once    sync.Once

	// closeHook, when set, is called instead of process.SessionClosed
	// directly. Pool sets this on every Session it hands out so that Close
	// — called by an arbitrary caller goroutine, never holding syncher —
	// re-enters the lock before touching Process/Group state, and so the
	// detached return value reaches Pool.queueDetach. Left nil, a Session
	// closes straight against its Process and any detach signal is
	// discarded, which is only safe when the caller already holds (or
	// doesn't need) syncher itself, e.g. in tests that drive Group/Process
	// directly.
	closeHook func()

	// Endpoint is the opaque communication handle the Spawner attached to the
	// backing Process (e.g. a Unix socket or pipe). Pool and Group never read
	// it; it is forwarded to the caller unexamined.
	Endpoint any
}

// Process returns the backing Process. Valid for the lifetime of the Session.
func (s *Session) Process() *Process { return s.process }

// SetCloseHook installs fn as the action Close performs instead of calling
// straight into Process.SessionClosed. Must be set before the Session is
// handed to whichever goroutine will eventually call Close.
func (s *Session) SetCloseHook(fn func()) { s.closeHook = fn }

// Close releases the session back to its Process. Idempotent: calling Close
// more than once is a no-op after the first call.
func (s *Session) Close() {
	s.once.Do(func() {
		if s.closeHook != nil {
			s.closeHook()
			return
		}
		s.process.SessionClosed()
	})
}
