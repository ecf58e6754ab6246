// Package process models a single worker process as a data entity: its
// identity, its session-acquisition contract, and the counters Group and
// Pool read to schedule and evict it. All mutable fields are protected by
// the Pool's single syncher lock; Process itself holds no lock because it
// is never reachable outside that lock except through an already-issued
// Session.
package process

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/appfleet/appfleet/types"
)

// Notifier is the non-owning back-reference contract a Process holds to its
// Group. Group implements this; Process never imports the group package,
// which avoids an import cycle and keeps the back-reference a validated
// handle rather than a raw pointer into state Process doesn't own.
type Notifier interface {
	// ProcessDrained is called exactly once, synchronously under syncher, the
	// moment a DISABLING process's session count reaches zero. Returns true
	// if it detached p from the Group's lists, meaning the caller now owns
	// scheduling its OS-level teardown.
	ProcessDrained(p *Process) (detached bool)
	// ProcessShouldRetire is called the first time processed reaches
	// MaxRequests; the Group detaches the process on its next opportunity.
	// Returns true if that detach happened immediately (the process was
	// idle), meaning the caller now owns scheduling its OS-level teardown.
	ProcessShouldRetire(p *Process) (detached bool)
}

// Process is the pool's record of one live (or dying) worker process.
type Process struct {
	Pid   int
	Gupid string

	// GroupName is the non-owning identity of the owning Group. Resolving it
	// back to a *group.Group, when needed, is the caller's job (the caller
	// already holds syncher and has the Pool's group map at hand).
	GroupName string
	notifier  Notifier

	// Concurrency is the max concurrent sessions; 0 means unbounded
	// (cooperative) concurrency, matched by a nil semaphore.
	Concurrency int
	sem         *semaphore.Weighted

	sessions int

	Enabled   types.ProcessEnabled
	LifeStatus types.ProcessLifeStatus

	// LastUsed is a monotonic microsecond timestamp, updated on every
	// NewSession. Compared only to other LastUsed values, never to wall time.
	LastUsed int64

	// Processed is the lifetime count of sessions this process has served.
	Processed uint64
	// maxRequests mirrors the Group's Options.MaxRequests at spawn time.
	maxRequests uint64
	retiring    bool

	SpawnerCreationTime time.Time

	// RSSBytes and CPUTimeMicros are the most recent OS-level readings the
	// metrics collector took for this process's pid; zero until the first
	// collection pass runs. CPUTimeMicros is cumulative since process start.
	RSSBytes      int64
	CPUTimeMicros int64
}

// New constructs a Process in the ENABLED/ALIVE state for the given pid,
// owned by the named group, with the concurrency ceiling and per-process
// request budget taken from that group's Options.
func New(pid int, groupName string, concurrency int, maxRequests int, notifier Notifier) *Process {
	p := &Process{
		Pid:                 pid,
		Gupid:               uuid.NewString(),
		GroupName:           groupName,
		notifier:            notifier,
		Concurrency:         concurrency,
		Enabled:             types.ENABLED,
		LifeStatus:          types.ALIVE,
		SpawnerCreationTime: time.Now(),
	}
	if concurrency > 0 {
		p.sem = semaphore.NewWeighted(int64(concurrency))
	}
	if maxRequests > 0 {
		p.maxRequests = uint64(maxRequests)
	}
	return p
}

// Sessions returns the current live session count.
func (p *Process) Sessions() int { return p.sessions }

// SetNotifier installs notifier as the Process's back-reference, replacing
// whatever it was constructed with. A Spawner has no Group to hand New, so
// it always passes nil; the Group that adopts the resulting Process calls
// this before the process becomes reachable by any caller, so
// SessionClosed's notifications are never silently dropped.
func (p *Process) SetNotifier(notifier Notifier) { p.notifier = notifier }

// UpdateMetrics records the latest OS-level reading for this process. Called
// by the metrics collector; must be called under syncher.
func (p *Process) UpdateMetrics(rssBytes, cpuTimeMicros int64) {
	p.RSSBytes = rssBytes
	p.CPUTimeMicros = cpuTimeMicros
}

// Retiring reports whether this process has crossed MaxRequests and should
// be detached by the Group on its next opportunity.
func (p *Process) Retiring() bool { return p.retiring }

// HasCapacity reports whether NewSession would currently succeed, without
// mutating any state.
func (p *Process) HasCapacity() bool {
	if p.Enabled != types.ENABLED {
		return false
	}
	if p.Concurrency <= 0 {
		return true
	}
	return p.sessions < p.Concurrency
}

// Busyness is the tie-break metric Group uses to pick among ENABLED
// processes with free capacity: sessions/concurrency when bounded,
// otherwise raw sessions. Lower is less busy.
func (p *Process) Busyness() float64 {
	if p.Concurrency > 0 {
		return float64(p.sessions) / float64(p.Concurrency)
	}
	return float64(p.sessions)
}

// NewSession attempts to hand out a Session. It fails with
// types.ErrProcessBusy when the process is not ENABLED or has no free
// session slot. Must be called under syncher.
func (p *Process) NewSession() (*Session, error) {
	if p.Enabled != types.ENABLED {
		return nil, types.ErrProcessBusy
	}
	if p.sem != nil && !p.sem.TryAcquire(1) {
		return nil, types.ErrProcessBusy
	}
	p.sessions++
	p.LastUsed = time.Now().UnixMicro()
	return &Session{process: p}, nil
}

// SessionClosed decrements the session count, notifies the Group when a
// draining process finishes, bumps the lifetime counter, and flags
// retirement once Processed reaches MaxRequests. Must be called under syncher —
// Session.Close reaches this either directly (tests driving Process
// without a Pool) or via the close hook Pool installs on every Session it
// hands out, which re-enters syncher first.
// SessionClosed returns true if the notifier detached p from its Group as
// a consequence of this call — the caller then owns scheduling p's
// OS-level teardown (see Pool.queueDetach).
func (p *Process) SessionClosed() (detached bool) {
	p.sessions--
	if p.sem != nil {
		p.sem.Release(1)
	}
	p.Processed++

	if p.sessions == 0 && p.Enabled == types.DISABLING {
		p.Enabled = types.DISABLED
		if p.notifier != nil && p.notifier.ProcessDrained(p) {
			detached = true
		}
	}
	if !p.retiring && p.maxRequests > 0 && p.Processed >= p.maxRequests {
		p.retiring = true
		if p.notifier != nil && p.notifier.ProcessShouldRetire(p) {
			detached = true
		}
	}
	return detached
}
