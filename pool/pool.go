// Package pool implements the global capacity scheduler, cross-group
// wait-list, eviction policy, invariant verifier, and lifecycle owner for
// an application process pool. Pool is the only component that takes a
// lock: a single sync.Mutex ("syncher") protects all Pool, Group, and
// Process mutable state. Every mutating method follows the same
// discipline: take the lock, mutate, collect post-lock callbacks into a
// reused slice, release the lock, run the callbacks.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/appfleet/appfleet/events"
	"github.com/appfleet/appfleet/group"
	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/spawn"
	"github.com/appfleet/appfleet/types"
	"github.com/appfleet/appfleet/utils"
)

// Config holds the knobs Pool.New needs. There is no on-disk config
// loader here — configuration loading is an external collaborator's job;
// a caller builds a Config from whatever source it wants.
type Config struct {
	Max              int
	MaxIdleTime      time.Duration
	MaxWaitQueueSize int // 0 = unlimited
	SelfChecking     bool

	// RecreateShutDownGroups controls what happens when AsyncGet targets a
	// group that is currently SHUT_DOWN: true re-creates it silently; false
	// fails the request with types.ErrGroupShuttingDown instead. Default
	// false — see DESIGN.md.
	RecreateShutDownGroups bool

	Spawner spawn.Spawner
	Tracker events.Tracker
}

// Pool is the top-level supervisor owning every Group, the cross-group
// wait-list, and the background services that keep the pool healthy.
type Pool struct {
	mu sync.Mutex

	max              int
	maxIdleTime      time.Duration
	maxWaitQueueSize int
	selfChecking     bool
	recreate         bool

	groups   map[string]*group.Group
	waitlist []*group.Waiter

	// capacityBlockedGroups names groups whose last spawn attempt was
	// refused purely because the pool was at full capacity (not because the
	// group's own throttle or ceiling said no). Wait-list drains retry these
	// first, since freed-up pool capacity is the only thing that can unblock them.
	capacityBlockedGroups map[string]bool

	lifeStatus types.PoolLifeStatus
	spawner    spawn.Spawner
	tracker    events.Tracker

	nextWaiterID uint64

	// cbs is the reused post-lock callback arena: truncated to length 0,
	// never reallocated, between phases.
	cbs []func()

	gcCancel      context.CancelFunc
	gcWake        chan struct{}
	metricsCancel context.CancelFunc
	bgWG          sync.WaitGroup // interruptable group: gc + metrics
	spawnWG       sync.WaitGroup // non-interruptable group: in-flight spawns
}

// New constructs a Pool in the ALIVE state. Call Start to launch its
// background services before serving any traffic.
func New(cfg Config) *Pool {
	if cfg.Tracker == nil {
		cfg.Tracker = events.Nop
	}
	return &Pool{
		max:                   cfg.Max,
		maxIdleTime:           cfg.MaxIdleTime,
		maxWaitQueueSize:      cfg.MaxWaitQueueSize,
		selfChecking:          cfg.SelfChecking,
		recreate:              cfg.RecreateShutDownGroups,
		groups:                make(map[string]*group.Group),
		capacityBlockedGroups: make(map[string]bool),
		lifeStatus:            types.PoolAlive,
		spawner:               cfg.Spawner,
		tracker:               cfg.Tracker,
		gcWake:                make(chan struct{}, 1),
	}
}

// Start launches the garbage collector and metrics collector background
// goroutines — the "interruptable" thread group, as opposed to the
// in-flight spawns tracked by spawnWG.
func (p *Pool) Start() {
	gcCtx, gcCancel := context.WithCancel(context.Background())
	p.gcCancel = gcCancel
	p.bgWG.Add(1)
	go p.runGC(gcCtx)

	metricsCtx, metricsCancel := context.WithCancel(context.Background())
	p.metricsCancel = metricsCancel
	p.bgWG.Add(1)
	go p.runMetricsCollector(metricsCtx)
}

func (p *Pool) nextID() uint64 {
	return atomic.AddUint64(&p.nextWaiterID, 1)
}

// runCallbacks executes the callbacks takeCallbacks handed out. Must be
// called with the lock already released.
func (p *Pool) runCallbacks(cbs []func()) {
	for _, cb := range cbs {
		cb()
	}
}

// takeCallbacks swaps out the accumulated callback slice for the caller to
// run after unlocking, resetting the arena (not reallocating) for reuse.
func (p *Pool) takeCallbacks() []func() {
	cbs := append([]func(){}, p.cbs...)
	p.cbs = p.cbs[:0]
	return cbs
}

// queueCallback appends a Waiter resolution to the arena, first wiring any
// granted Session to re-enter syncher on Close (Close can run from any
// caller goroutine, never holding the lock itself). Caller holds mu.
func (p *Pool) queueCallback(cb func(*process.Session, error), sess *process.Session, err error) {
	if sess != nil {
		sess.SetCloseHook(func() { p.closeSession(sess) })
	}
	p.cbs = append(p.cbs, func() { cb(sess, err) })
}

// closeSession is the Close hook installed on every Session handed to a
// caller: re-take syncher, release the session, let any newly-freed
// capacity drain the wait-lists, then run whatever that unblocked.
func (p *Pool) closeSession(sess *process.Session) {
	p.mu.Lock()
	proc := sess.Process()
	if proc.SessionClosed() {
		p.queueDetach(proc)
	}
	p.drainWaitlistsLocked()
	p.checkInvariantsLocked("session-closed")
	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	p.tracker.OnEvent(events.Event{Kind: events.KindSessionClosed, GroupName: proc.GroupName})
}

// queueDetach appends an OS-level teardown for proc to the arena, then
// posts a KindProcessDetached event. Caller holds mu.
func (p *Pool) queueDetach(proc *process.Process) {
	p.cbs = append(p.cbs, func() {
		if err := utils.TerminateProcess(proc.Pid, 5*time.Second); err != nil {
			log.WithFunc("pool.queueDetach").Warnf(context.Background(), "terminate pid %d: %v", proc.Pid, err)
		}
		p.tracker.OnEvent(events.Event{Kind: events.KindProcessDetached, GroupName: proc.GroupName, Detail: proc.Gupid})
	})
}

// capacityUsedLocked sums TotalProcessCount across every group: live +
// being-spawned processes, the figure bounded by the pool ceiling. Caller
// must hold mu.
func (p *Pool) capacityUsedLocked() int {
	used := 0
	for _, g := range p.groups {
		used += g.TotalProcessCount()
	}
	return used
}

// CapacityUsed returns the current total process count (live + being-spawned).
func (p *Pool) CapacityUsed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacityUsedLocked()
}

// AtFullCapacity reports whether CapacityUsed has reached Max.
func (p *Pool) AtFullCapacity() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacityUsedLocked() >= p.max
}

// GetProcessCount returns the number of live (not merely being-spawned) processes.
func (p *Pool) GetProcessCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, g := range p.groups {
		n += g.EnabledCount() + g.DisablingCount() + g.DisabledCount()
	}
	return n
}

// GetGroupCount returns the number of groups currently tracked.
func (p *Pool) GetGroupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.groups)
}

// IsSpawning reports whether any group currently has a spawn in flight.
func (p *Pool) IsSpawning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.groups {
		if g.IsSpawning() {
			return true
		}
	}
	return false
}

// Max returns the current global process ceiling.
func (p *Pool) Max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}
