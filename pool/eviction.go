package pool

import (
	"github.com/appfleet/appfleet/events"
	"github.com/appfleet/appfleet/process"
)

// findBestProcessToTrashLocked implements the pool's eviction policy:
// never evict below a group's MinProcesses floor, never evict a group's
// last ENABLED process while
// that group has queued waiters (doing so would starve demand instead of
// just redistributing capacity), prefer an already-DISABLED process over
// an idle ENABLED one, and among equally eligible candidates prefer the
// one idle the longest. excludeGroup, if non-empty, is skipped entirely
// (used when the caller is about to create that very group and evicting
// from it would be self-defeating). Caller holds mu.
func (p *Pool) findBestProcessToTrashLocked(excludeGroup string) (victim *process.Process, groupName string, ok bool) {
	if v, gn, ok := p.scanForTrash(excludeGroup, true); ok {
		return v, gn, true
	}
	return p.scanForTrash(excludeGroup, false)
}

func (p *Pool) scanForTrash(excludeGroup string, disabledOnly bool) (*process.Process, string, bool) {
	var best *process.Process
	var bestGroup string
	for name, g := range p.groups {
		if name == excludeGroup {
			continue
		}
		candidates := g.DisabledProcesses()
		if !disabledOnly {
			candidates = idleEnabled(g.EnabledProcesses())
			if len(candidates) > 0 && g.EnabledCount() == len(candidates) && g.WaitlistLen() > 0 {
				// Every enabled process is idle AND waiters are queued: admission
				// must already be failing for a non-capacity reason (e.g. none of
				// them individually has room), so evicting the group's last
				// enabled process here would just strand those waiters longer.
				if g.EnabledCount() == 1 {
					continue
				}
			}
		}
		if g.Options.MinProcesses > 0 && g.TotalProcessCount() <= g.Options.MinProcesses {
			continue
		}
		for _, proc := range candidates {
			if best == nil || proc.LastUsed < best.LastUsed {
				best = proc
				bestGroup = name
			}
		}
	}
	if best == nil {
		return nil, "", false
	}
	return best, bestGroup, true
}

func idleEnabled(procs []*process.Process) []*process.Process {
	out := make([]*process.Process, 0, len(procs))
	for _, p := range procs {
		if p.Sessions() == 0 {
			out = append(out, p)
		}
	}
	return out
}

// evictLocked detaches victim from its owning group and schedules its OS
// teardown as a post-lock callback. Caller holds mu.
func (p *Pool) evictLocked(victim *process.Process, groupName string) {
	g, ok := p.groups[groupName]
	if !ok {
		return
	}
	g.DetachProcess(victim.Gupid)
	p.queueDetach(victim)
	p.tracker.OnEvent(events.Event{Kind: events.KindEviction, GroupName: groupName, Detail: victim.Gupid})
}
