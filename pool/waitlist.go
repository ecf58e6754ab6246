package pool

import (
	"time"

	"github.com/appfleet/appfleet/events"
	"github.com/appfleet/appfleet/types"
)

// drainWaitlistsLocked retries every group parked in capacityBlockedGroups
// and then walks Pool.waitlist FIFO, admitting or routing waiters now that
// a spawn, detach, or capacity change may have freed up room. Caller holds
// mu; resolutions land in p.cbs.
func (p *Pool) drainWaitlistsLocked() {
	for name := range p.capacityBlockedGroups {
		g, ok := p.groups[name]
		if !ok {
			delete(p.capacityBlockedGroups, name)
			continue
		}
		p.maybeSpawnForGroup(g, false)
	}

	progressed := false
	for len(p.waitlist) > 0 {
		w := p.waitlist[0]
		if w.Canceled() {
			p.waitlist = p.waitlist[1:]
			progressed = true
			continue
		}

		if g, ok := p.groups[w.Options.AppGroupName]; ok {
			p.waitlist = p.waitlist[1:]
			p.admitToGroup(g, w)
			progressed = true
			continue
		}

		if p.capacityUsedLocked() < p.max {
			p.waitlist = p.waitlist[1:]
			p.createGroupAndAdmit(w)
			progressed = true
			continue
		}

		if victim, victimGroup, ok := p.findBestProcessToTrashLocked(""); ok {
			p.evictLocked(victim, victimGroup)
			p.waitlist = p.waitlist[1:]
			p.createGroupAndAdmit(w)
			progressed = true
			continue
		}

		break // no admittable waiter and no freeable capacity: stop scanning
	}

	if progressed {
		p.tracker.OnEvent(events.Event{Kind: events.KindWaitlistDrain})
	}
}

// expireWaitersLocked drops every waiter (pool-level and per-group) whose
// StartTimeout has elapsed, resolving each with types.ErrRequestQueueTimeout.
// Called by the garbage collector's periodic pass. Caller holds mu.
func (p *Pool) expireWaitersLocked(now time.Time) {
	kept := p.waitlist[:0:0]
	for _, w := range p.waitlist {
		if w.Expired(now) {
			p.queueCallback(w.Callback, nil, types.ErrRequestQueueTimeout)
			continue
		}
		kept = append(kept, w)
	}
	p.waitlist = kept

	for _, g := range p.groups {
		for _, w := range g.DrainExpired(now) {
			p.queueCallback(w.Callback, nil, types.ErrRequestQueueTimeout)
		}
	}
}
