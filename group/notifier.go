package group

import (
	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

// compile-time interface check: Group is a process.Notifier for every
// Process it creates.
var _ process.Notifier = (*Group)(nil)

// ProcessDrained implements process.Notifier. It is called synchronously
// from Process.SessionClosed the instant a DISABLING process's session
// count reaches zero. The process has already flipped itself to DISABLED;
// here Group moves it between its own lists and fires any disable-waiters
// registered for it. If the process was marked for retirement, it is
// detached immediately instead of parked in disabledProcesses, and the
// caller (Process.SessionClosed, which Pool.closeSession unwinds into)
// must schedule its OS-level teardown.
func (g *Group) ProcessDrained(p *process.Process) (detached bool) {
	if p.LifeStatus != types.ALIVE {
		// Already detached while draining: it is in none of this group's lists.
		return false
	}
	g.disablingProcesses = removeProcess(g.disablingProcesses, p)

	if g.retiring[p.Gupid] {
		delete(g.retiring, p.Gupid)
		g.detachFromLists(p)
		g.resolveDisableWaiters(p.Gupid, types.DR_SUCCESS)
		return true
	}

	g.disabledProcesses = append(g.disabledProcesses, p)
	g.resolveDisableWaiters(p.Gupid, types.DR_SUCCESS)
	return false
}

// ProcessShouldRetire implements process.Notifier. It is called the first
// time a process's lifetime request count crosses Options.MaxRequests.
// A retiring process that is already idle is detached right away, and the
// caller must schedule its OS-level teardown; one still serving sessions
// is disabled so it drains normally and ProcessDrained finishes the detach.
func (g *Group) ProcessShouldRetire(p *process.Process) (detached bool) {
	if p.LifeStatus != types.ALIVE {
		return false
	}
	g.retiring[p.Gupid] = true
	if p.Sessions() == 0 {
		delete(g.retiring, p.Gupid)
		g.detachFromLists(p)
		return true
	}
	g.disableLocked(p)
	return false
}

func (g *Group) resolveDisableWaiters(gupid string, result types.DisableResult) {
	for _, cb := range g.disableWaiters[gupid] {
		cb(result)
	}
	delete(g.disableWaiters, gupid)
}

func removeProcess(list []*process.Process, target *process.Process) []*process.Process {
	for i, p := range list {
		if p == target {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
