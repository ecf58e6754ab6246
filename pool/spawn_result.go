package pool

import (
	"context"

	"github.com/projecteru2/core/log"

	"github.com/appfleet/appfleet/events"
	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

// onSpawnResult routes a completed Spawner.Spawn call back through the
// lock. It runs in the goroutine scheduleSpawn launched, never under mu
// until this call takes it.
func (p *Pool) onSpawnResult(groupName string, generation int, proc *process.Process, err error) {
	logger := log.WithFunc("pool.onSpawnResult")

	p.mu.Lock()

	g, ok := p.groups[groupName]
	if !ok {
		// The group was detached (or shut down) while the spawn was in
		// flight. Nothing left to resolve it against; just tear down any OS
		// process that was produced.
		if proc != nil {
			p.queueDetach(proc)
		}
		cbs := p.takeCallbacks()
		p.mu.Unlock()
		p.runCallbacks(cbs)
		return
	}

	if err != nil {
		failed := g.SpawnFailed()
		spawnErr := types.NewSpawnError(groupName, err)
		for _, w := range failed {
			w := w
			p.queueCallback(w.Callback, nil, spawnErr)
		}
		logger.Warnf(context.Background(), "spawn failed for %s: %v", groupName, err)
		p.tracker.OnEvent(events.Event{Kind: events.KindSpawnFailed, GroupName: groupName, Detail: err.Error()})
	} else {
		resolved, legacyDetached := g.SpawnSucceeded(proc, generation)
		for _, rw := range resolved {
			rw := rw
			p.queueCallback(rw.Waiter.Callback, rw.Session, nil)
			p.tracker.OnEvent(events.Event{Kind: events.KindSessionOpened, GroupName: groupName})
		}
		for _, lp := range legacyDetached {
			p.queueDetach(lp)
		}
		p.tracker.OnEvent(events.Event{Kind: events.KindSpawnSucceeded, GroupName: groupName, Detail: proc.Gupid})
	}

	p.drainWaitlistsLocked()
	p.checkInvariantsLocked("spawn-result")

	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
}
