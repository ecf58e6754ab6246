package group

import (
	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

// Disable implements the ENABLED/DISABLING/DISABLED state machine.
// onDeferred, if non-nil, is called exactly once — from the post-lock
// callback phase the caller is responsible for running — when a
// DR_DEFERRED disable eventually resolves to DR_SUCCESS or DR_CANCELED.
func (g *Group) Disable(gupid string, onDeferred func(types.DisableResult)) types.DisableResult {
	p := g.FindProcess(gupid)
	if p == nil {
		return types.DR_ERROR
	}
	switch p.Enabled {
	case types.DISABLED:
		return types.DR_NOOP
	case types.DISABLING:
		if onDeferred != nil {
			g.disableWaiters[gupid] = append(g.disableWaiters[gupid], onDeferred)
		}
		return types.DR_DEFERRED
	}

	g.disableLocked(p)

	if p.Enabled == types.DISABLED {
		return types.DR_SUCCESS
	}
	if onDeferred != nil {
		g.disableWaiters[gupid] = append(g.disableWaiters[gupid], onDeferred)
	}
	return types.DR_DEFERRED
}

// disableLocked transitions an ENABLED process to DISABLING (if it has live
// sessions) or straight to DISABLED (if already idle), moving it between
// lists accordingly. Never touches disableWaiters — callers decide whether
// to register one.
func (g *Group) disableLocked(p *process.Process) {
	if p.Enabled == types.DISABLED {
		return
	}
	if p.Enabled == types.ENABLED {
		g.enabledProcesses = removeProcess(g.enabledProcesses, p)
	} else if p.Enabled == types.DISABLING {
		return
	}

	if p.Sessions() == 0 {
		p.Enabled = types.DISABLED
		g.disabledProcesses = append(g.disabledProcesses, p)
		return
	}
	p.Enabled = types.DISABLING
	g.disablingProcesses = append(g.disablingProcesses, p)
}

// Enable transitions a DISABLED process back to ENABLED. Returns false,
// changing nothing, if the process is unknown or not DISABLED.
func (g *Group) Enable(gupid string) bool {
	p := g.FindProcess(gupid)
	if p == nil || p.Enabled != types.DISABLED {
		return false
	}
	g.disabledProcesses = removeProcess(g.disabledProcesses, p)
	p.Enabled = types.ENABLED
	g.enabledProcesses = append(g.enabledProcesses, p)
	return true
}

// BeginOOBWork is a transient variant of Disable used when a process
// requests an out-of-band work window: it is treated as a short disable
// with automatic re-enable via EndOOBWork.
func (g *Group) BeginOOBWork(gupid string) bool {
	p := g.FindProcess(gupid)
	if p == nil || p.Enabled != types.ENABLED {
		return false
	}
	g.disableLocked(p)
	return true
}

// EndOOBWork re-enables a process previously taken out for OOB work,
// regardless of whether it finished draining yet.
func (g *Group) EndOOBWork(gupid string) bool {
	p := g.FindProcess(gupid)
	if p == nil {
		return false
	}
	switch p.Enabled {
	case types.DISABLED:
		return g.Enable(gupid)
	case types.DISABLING:
		// Still draining: flip it straight back to ENABLED without waiting
		// for the session count to reach zero, since OOB re-enable is not a
		// real drain-for-eviction — the process stays alive throughout.
		g.disablingProcesses = removeProcess(g.disablingProcesses, p)
		p.Enabled = types.ENABLED
		g.enabledProcesses = append(g.enabledProcesses, p)
		g.resolveDisableWaiters(p.Gupid, types.DR_CANCELED)
		return true
	default:
		return true
	}
}
