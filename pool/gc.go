package pool

import (
	"context"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/appfleet/appfleet/events"
)

const gcInterval = 30 * time.Second

// runGC is an interruptable background service: on every tick (or an
// explicit WakeGC, which SetMax and SetMaxIdleTime use to force a pass
// without waiting out the interval) it evicts idle processes above
// MinProcesses and expires waiters past their StartTimeout.
func (p *Pool) runGC(ctx context.Context) {
	defer p.bgWG.Done()
	logger := log.WithFunc("pool.runGC")

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runGCPass()
		case <-p.gcWake:
			p.runGCPass()
		}
		logger.Debugf(ctx, "gc pass complete")
	}
}

// WakeGC forces an immediate garbage collection pass instead of waiting
// for the next tick. Non-blocking: a pass already queued is left alone.
func (p *Pool) WakeGC() {
	select {
	case p.gcWake <- struct{}{}:
	default:
	}
}

func (p *Pool) runGCPass() {
	p.mu.Lock()
	now := time.Now()

	if p.maxIdleTime > 0 {
		cutoff := now.Add(-p.maxIdleTime).UnixMicro()
		for _, g := range p.groups {
			floor := g.Options.MinProcesses
			room := g.TotalProcessCount() - floor
			for _, proc := range g.IdleCandidates(cutoff) {
				if floor > 0 && room <= 0 {
					break
				}
				g.DetachProcess(proc.Gupid)
				p.queueDetach(proc)
				room--
			}
		}
	}

	p.expireWaitersLocked(now)
	p.checkInvariantsLocked("gc")

	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	p.tracker.OnEvent(events.Event{Kind: events.KindGCRun})
}
