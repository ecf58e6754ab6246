package pool

import (
	"context"
	"sync"

	"github.com/appfleet/appfleet/types"
)

// PrepareForShutdown marks the pool as about to shut down without tearing
// anything down yet: existing Sessions keep working, but AsyncGet
// already refuses anything arriving once lifeStatus leaves PoolAlive, so
// this is the point at which new Get calls start failing with
// types.ErrPoolShuttingDown while Destroy has not yet detached anyone.
func (p *Pool) PrepareForShutdown() {
	p.mu.Lock()
	if p.lifeStatus == types.PoolAlive {
		p.lifeStatus = types.PoolPreparedForShutdown
	}
	p.mu.Unlock()
}

// Destroy fails every queued waiter, detaches and tears down every
// process in every group, stops the background services, and waits for
// any spawns already in flight to finish (so their Spawner-side resources
// don't leak) before returning. ctx bounds only that final wait; detach
// and wait-list failure always run to completion.
func (p *Pool) Destroy(ctx context.Context) error {
	p.mu.Lock()
	p.lifeStatus = types.PoolShuttingDown

	for _, w := range p.waitlist {
		w := w
		p.queueCallback(w.Callback, nil, types.ErrPoolShuttingDown)
	}
	p.waitlist = nil

	for name, g := range p.groups {
		failedWaiters, detached := g.ShutDown()
		for _, w := range failedWaiters {
			w := w
			p.queueCallback(w.Callback, nil, types.ErrPoolShuttingDown)
		}
		for _, proc := range detached {
			p.queueDetach(proc)
		}
		delete(p.groups, name)
	}
	p.capacityBlockedGroups = make(map[string]bool)

	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)

	if p.gcCancel != nil {
		p.gcCancel()
	}
	if p.metricsCancel != nil {
		p.metricsCancel()
	}
	if err := waitWithContext(ctx, &p.bgWG); err != nil {
		return err
	}
	// spawnWG is the non-interruptable group: in-flight Spawner.Spawn calls
	// are let run to completion rather than abandoned, since their OS
	// process would otherwise leak with nothing to reap it.
	if err := waitWithContext(ctx, &p.spawnWG); err != nil {
		return err
	}

	p.mu.Lock()
	p.lifeStatus = types.PoolShutDown
	p.mu.Unlock()
	return nil
}

func waitWithContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LifeStatus reports the pool's current shutdown-sequence state.
func (p *Pool) LifeStatus() types.PoolLifeStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifeStatus
}
