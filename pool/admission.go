package pool

import (
	"context"
	"time"

	"github.com/appfleet/appfleet/events"
	"github.com/appfleet/appfleet/group"
	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

// AsyncGet requests a session for options without blocking the caller:
// callback is invoked exactly once, from an arbitrary goroutine, after the
// lock has been released. The returned ticket can be passed to CancelGet
// to withdraw the request before it resolves.
func (p *Pool) AsyncGet(_ context.Context, options types.Options, callback func(*process.Session, error)) uint64 {
	p.mu.Lock()

	if p.lifeStatus != types.PoolAlive {
		p.mu.Unlock()
		callback(nil, types.ErrPoolShuttingDown)
		return 0
	}

	w := &group.Waiter{ID: p.nextID(), Options: options, Callback: callback}
	if options.StartTimeout > 0 {
		w.Deadline = time.Now().Add(options.StartTimeout)
	}

	p.admitOrRoute(w)

	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	return w.ID
}

// Get is the synchronous wrapper around AsyncGet. Canceling ctx withdraws
// the request via CancelGet and returns ctx.Err().
func (p *Pool) Get(ctx context.Context, options types.Options) (*process.Session, error) {
	type result struct {
		sess *process.Session
		err  error
	}
	ch := make(chan result, 1)
	id := p.AsyncGet(ctx, options, func(sess *process.Session, err error) {
		ch <- result{sess, err}
	})

	select {
	case r := <-ch:
		return r.sess, r.err
	case <-ctx.Done():
		p.CancelGet(id)
		select {
		case r := <-ch:
			if r.sess != nil {
				r.sess.Close()
			}
		default:
		}
		return nil, ctx.Err()
	}
}

// CancelGet withdraws a waiter by its ticket, firing its callback with
// types.ErrCanceled. Returns false if the ticket is unknown (already
// resolved, or never existed).
func (p *Pool) CancelGet(id uint64) bool {
	p.mu.Lock()

	found := false
	for i, w := range p.waitlist {
		if w.ID == id {
			p.waitlist = append(p.waitlist[:i:i], p.waitlist[i+1:]...)
			p.queueCallback(w.Callback, nil, types.ErrCanceled)
			found = true
			break
		}
	}
	if !found {
		for _, g := range p.groups {
			if w := g.RemoveWaiter(id); w != nil {
				p.queueCallback(w.Callback, nil, types.ErrCanceled)
				found = true
				break
			}
		}
	}

	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	return found
}

// admitOrRoute is the core admission algorithm: route to an existing
// group, create one if capacity allows, evict to make room, or queue on
// the pool-wide wait-list. Caller holds mu; any resolution is appended to
// p.cbs, not run directly.
func (p *Pool) admitOrRoute(w *group.Waiter) {
	g, exists := p.groups[w.Options.AppGroupName]

	if exists {
		switch g.LifeStatus {
		case types.GroupShuttingDown:
			p.queueCallback(w.Callback, nil, types.ErrGroupShuttingDown)
			return
		case types.GroupShutDown:
			if !p.recreate {
				p.queueCallback(w.Callback, nil, types.ErrGroupShuttingDown)
				return
			}
			delete(p.groups, g.Name)
			exists = false
		}
	}

	if exists {
		p.admitToGroup(g, w)
		return
	}

	// No matching group: this is the only case where a waiter lands on
	// Pool.waitlist rather than a group's own waitlist.
	if p.capacityUsedLocked() < p.max {
		p.createGroupAndAdmit(w)
		return
	}

	if victim, victimGroup, ok := p.findBestProcessToTrashLocked(""); ok {
		p.evictLocked(victim, victimGroup)
		p.createGroupAndAdmit(w)
		return
	}

	if p.maxWaitQueueSize > 0 && len(p.waitlist) >= p.maxWaitQueueSize {
		p.queueCallback(w.Callback, nil, types.ErrAtFullCapacity)
		return
	}
	p.waitlist = append(p.waitlist, w)
}

func (p *Pool) createGroupAndAdmit(w *group.Waiter) {
	ng := group.New(w.Options)
	p.groups[ng.Name] = ng
	p.tracker.OnEvent(events.Event{Kind: events.KindGroupCreated, GroupName: ng.Name})
	p.admitToGroup(ng, w)
}

// admitToGroup tries an immediate admission; on failure it enqueues w on
// the group's own FIFO and considers authorising a spawn.
func (p *Pool) admitToGroup(g *group.Group, w *group.Waiter) {
	if sess, ok := g.TryAdmit(); ok {
		p.queueCallback(w.Callback, sess, nil)
		p.tracker.OnEvent(events.Event{Kind: events.KindSessionOpened, GroupName: g.Name})
		return
	}
	g.Enqueue(w)
	p.maybeSpawnForGroup(g, false)
}

// maybeSpawnForGroup authorises a spawn for g if its own ceiling and the
// pool's global ceiling both have room, respecting Group's own
// one-spawn-at-a-time throttle (burst lifts that throttle for MinProcesses
// catch-up spawns). If only the global ceiling is the blocker, g is
// recorded in capacityBlockedGroups so the next wait-list drain retries it.
func (p *Pool) maybeSpawnForGroup(g *group.Group, burst bool) {
	if !g.ShouldSpawn() {
		return
	}
	if p.capacityUsedLocked() >= p.max {
		p.capacityBlockedGroups[g.Name] = true
		return
	}
	generation, ok := g.BeginSpawn(burst)
	if !ok {
		return
	}
	delete(p.capacityBlockedGroups, g.Name)
	p.tracker.OnEvent(events.Event{Kind: events.KindSpawnRequested, GroupName: g.Name})
	p.scheduleSpawn(g.Name, g.Options, generation)
}

// scheduleSpawn queues a post-lock callback that launches the actual
// Spawner call in its own goroutine — Spawner invocations must happen
// outside the lock, since they can block for as long as StartTimeout
// allows — and routes the result back through onSpawnResult.
func (p *Pool) scheduleSpawn(groupName string, options types.Options, generation int) {
	p.cbs = append(p.cbs, func() {
		p.spawnWG.Add(1)
		go func() {
			defer p.spawnWG.Done()
			proc, err := p.spawner.Spawn(context.Background(), options)
			p.onSpawnResult(groupName, generation, proc, err)
		}()
	})
}
