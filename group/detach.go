package group

import (
	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

// detachFromLists removes p from whichever of the three lists currently
// holds it and resolves any pending disable-waiters for it as DR_CANCELED
// (a process detached mid-drain never reaches DR_SUCCESS). It does not
// terminate the underlying OS process — that is the caller's job, run as a
// post-lock callback (see pool.queueDetach).
func (g *Group) detachFromLists(p *process.Process) {
	switch p.Enabled {
	case types.ENABLED:
		g.enabledProcesses = removeProcess(g.enabledProcesses, p)
	case types.DISABLING:
		g.disablingProcesses = removeProcess(g.disablingProcesses, p)
		g.resolveDisableWaiters(p.Gupid, types.DR_CANCELED)
	case types.DISABLED:
		g.disabledProcesses = removeProcess(g.disabledProcesses, p)
	}
	p.LifeStatus = types.SHUTDOWN_TRIGGERED
	delete(g.retiring, p.Gupid)
	delete(g.generationOf, p.Gupid)
}

// DetachProcess removes the process identified by gupid from the group.
// Returns the detached Process so the caller can schedule its OS-level
// teardown, or nil if no such process exists in this group.
func (g *Group) DetachProcess(gupid string) *process.Process {
	p := g.FindProcess(gupid)
	if p == nil {
		return nil
	}
	g.detachFromLists(p)
	return p
}

// DetachAll removes every process the group owns and returns them, used by
// Restart(BLOCKING) and by group shutdown.
func (g *Group) DetachAll() []*process.Process {
	all := g.AllProcesses()
	for _, p := range all {
		g.detachFromLists(p)
	}
	return all
}

// IdleCandidates returns (without removing — the caller decides, since
// the garbage collector must also respect MinProcesses across the whole
// group before committing) every DISABLED-or-ENABLED-idle process whose
// LastUsed predates the cutoff, for the garbage collector.
func (g *Group) IdleCandidates(cutoffMicros int64) []*process.Process {
	var out []*process.Process
	for _, p := range g.enabledProcesses {
		if p.Sessions() == 0 && p.LastUsed < cutoffMicros {
			out = append(out, p)
		}
	}
	for _, p := range g.disabledProcesses {
		if p.Sessions() == 0 && p.LastUsed < cutoffMicros {
			out = append(out, p)
		}
	}
	return out
}
