package pool

import (
	"time"

	"github.com/appfleet/appfleet/events"
	"github.com/appfleet/appfleet/group"
	"github.com/appfleet/appfleet/types"
)

// DetachProcess removes a single process, identified by gupid, from
// whichever group owns it and schedules its OS-level teardown.
func (p *Pool) DetachProcess(gupid string) error {
	p.mu.Lock()

	var owner *group.Group
	for _, g := range p.groups {
		if g.FindProcess(gupid) != nil {
			owner = g
			break
		}
	}
	if owner == nil {
		p.mu.Unlock()
		return types.ErrProcessNotFound
	}

	proc := owner.DetachProcess(gupid)
	p.queueDetach(proc)
	p.drainWaitlistsLocked()
	p.checkInvariantsLocked("detach-process")

	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	return nil
}

// DetachGroupByName shuts down and removes the named group, failing every
// waiter still queued on it with types.ErrGroupShuttingDown.
func (p *Pool) DetachGroupByName(name string) error {
	p.mu.Lock()
	g, ok := p.groups[name]
	if !ok {
		p.mu.Unlock()
		return types.ErrGroupNotFound
	}
	p.detachGroupLocked(name, g)
	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	return nil
}

// DetachGroupBySecret is a low-privilege admin path: callers that only
// know a group's secret, not its name, can still detach it.
func (p *Pool) DetachGroupBySecret(secret string) error {
	p.mu.Lock()
	var name string
	var g *group.Group
	for n, cand := range p.groups {
		if cand.Secret == secret {
			name, g = n, cand
			break
		}
	}
	if g == nil {
		p.mu.Unlock()
		return types.ErrGroupNotFound
	}
	p.detachGroupLocked(name, g)
	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	return nil
}

func (p *Pool) detachGroupLocked(name string, g *group.Group) {
	failedWaiters, detached := g.ShutDown()
	for _, w := range failedWaiters {
		w := w
		p.queueCallback(w.Callback, nil, types.ErrGroupShuttingDown)
	}
	for _, proc := range detached {
		p.queueDetach(proc)
	}
	delete(p.groups, name)
	delete(p.capacityBlockedGroups, name)
	p.tracker.OnEvent(events.Event{Kind: events.KindGroupShutDown, GroupName: name})
	p.drainWaitlistsLocked()
	p.checkInvariantsLocked("detach-group")
}

// DisableProcess stops routing new sessions to gupid. onDeferred, if
// non-nil, is called exactly once from a future post-lock callback phase
// if the initial result is types.DR_DEFERRED.
func (p *Pool) DisableProcess(gupid string, onDeferred func(types.DisableResult)) (types.DisableResult, error) {
	p.mu.Lock()

	var owner *group.Group
	for _, g := range p.groups {
		if g.FindProcess(gupid) != nil {
			owner = g
			break
		}
	}
	if owner == nil {
		p.mu.Unlock()
		return types.DR_ERROR, types.ErrProcessNotFound
	}

	var wrapped func(types.DisableResult)
	if onDeferred != nil {
		wrapped = func(r types.DisableResult) {
			// Called later, synchronously under mu, from ProcessDrained's
			// resolveDisableWaiters — so just append to the arena directly.
			p.cbs = append(p.cbs, func() { onDeferred(r) })
		}
	}
	result := owner.Disable(gupid, wrapped)

	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	return result, nil
}

// EnableProcess re-enables a previously disabled process.
func (p *Pool) EnableProcess(gupid string) error {
	p.mu.Lock()
	var owner *group.Group
	for _, g := range p.groups {
		if g.FindProcess(gupid) != nil {
			owner = g
			break
		}
	}
	if owner == nil {
		p.mu.Unlock()
		return types.ErrProcessNotFound
	}
	if !owner.Enable(gupid) {
		p.mu.Unlock()
		return types.ErrProcessNotFound
	}
	p.drainWaitlistsLocked()
	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	return nil
}

// RestartGroupByName restarts the named group. For types.RestartRolling it
// authorises up to the needed number of replacement spawns immediately;
// subsequent ones are authorised as earlier replacements land (see
// onSpawnResult's call into maybeSpawnForGroup).
func (p *Pool) RestartGroupByName(name string, method types.RestartMethod) error {
	p.mu.Lock()
	g, ok := p.groups[name]
	if !ok {
		p.mu.Unlock()
		return types.ErrGroupNotFound
	}
	p.restartGroupLocked(g, method)
	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	return nil
}

// RestartGroupsByAppRoot restarts every group whose Options.AppRoot
// exactly matches appRoot, returning the number of groups restarted.
// Useful for a deploy tool that knows the filesystem path it just updated
// but not every app name sharing it.
func (p *Pool) RestartGroupsByAppRoot(appRoot string, method types.RestartMethod) int {
	p.mu.Lock()
	count := 0
	for _, g := range p.groups {
		if g.Options.AppRoot == appRoot {
			p.restartGroupLocked(g, method)
			count++
		}
	}
	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	return count
}

func (p *Pool) restartGroupLocked(g *group.Group, method types.RestartMethod) {
	detachedNow, replacementsNeeded := g.Restart(method)
	for _, proc := range detachedNow {
		p.queueDetach(proc)
	}
	for i := 0; i < replacementsNeeded; i++ {
		p.maybeSpawnForGroup(g, true)
	}
	if method == types.RestartBlocking {
		p.maybeSpawnForGroup(g, false)
	}
	p.drainWaitlistsLocked()
	p.checkInvariantsLocked("restart-group")
}

// SetMax changes the global process ceiling. Raising it may immediately
// free room for blocked groups and queued waiters. Shrinking it detaches
// nothing directly; it wakes the garbage collector for an immediate pass
// (which evicts by idle time only) rather than waiting for its next tick.
func (p *Pool) SetMax(max int) {
	p.mu.Lock()
	shrunk := max < p.max
	p.max = max
	p.drainWaitlistsLocked()
	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	if shrunk {
		p.WakeGC()
	}
}

// SetMaxIdleTime changes how long an idle process may sit before the
// garbage collector considers it for eviction. Any change can make
// already-idle processes newly evictable (or newly exempt), so it wakes
// the garbage collector rather than waiting for its next tick.
func (p *Pool) SetMaxIdleTime(d time.Duration) {
	p.mu.Lock()
	p.maxIdleTime = d
	p.mu.Unlock()
	p.WakeGC()
}

// EnableSelfChecking toggles the invariant checker.
func (p *Pool) EnableSelfChecking(enabled bool) {
	p.mu.Lock()
	p.selfChecking = enabled
	p.mu.Unlock()
}
