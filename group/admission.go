package group

import (
	"time"

	"github.com/appfleet/appfleet/process"
)

// ResolvedWaiter pairs a Waiter popped off a wait-list with the Session it
// was just admitted to. Pool schedules Waiter.Callback(Session, nil) as a
// post-lock action for each one.
type ResolvedWaiter struct {
	Waiter  *Waiter
	Session *process.Session
}

// TryAdmit attempts to hand out a Session from the best available ENABLED
// process, without touching the wait-list. Returns ok=false if no process
// currently has free capacity.
func (g *Group) TryAdmit() (*process.Session, bool) {
	p := g.pickProcess()
	if p == nil {
		return nil, false
	}
	sess, err := p.NewSession()
	if err != nil {
		// Lost a race against another admission between pick and NewSession
		// is impossible under the single syncher lock; a failure here means
		// the process became ineligible between pickProcess's check and the
		// call, which pickProcess's HasCapacity guard already prevents. Kept
		// defensive rather than panicking.
		return nil, false
	}
	return sess, true
}

// Enqueue appends w to this group's FIFO wait-list.
func (g *Group) Enqueue(w *Waiter) {
	g.waitlist = append(g.waitlist, w)
}

// RemoveWaiter removes the waiter with the given ID from the wait-list
// without resolving it (the caller fires its callback itself, typically
// with types.ErrCanceled or types.ErrRequestQueueTimeout). Returns the
// removed Waiter, or nil if no waiter with that ID is queued here.
func (g *Group) RemoveWaiter(id uint64) *Waiter {
	for i, w := range g.waitlist {
		if w.ID == id {
			g.waitlist = append(g.waitlist[:i:i], g.waitlist[i+1:]...)
			return w
		}
	}
	return nil
}

// DrainExpired removes and returns every waiter whose deadline has passed
// as of now.
func (g *Group) DrainExpired(now time.Time) []*Waiter {
	var expired []*Waiter
	kept := g.waitlist[:0:0]
	for _, w := range g.waitlist {
		if w.Expired(now) {
			expired = append(expired, w)
		} else {
			kept = append(kept, w)
		}
	}
	g.waitlist = kept
	return expired
}

// drainWaitlist admits as many queued waiters as currently-available
// capacity allows, FIFO, stopping at the first one that can't be admitted.
// Canceled waiters are dropped without resolution (their canceler already
// ran the callback).
func (g *Group) drainWaitlist() []ResolvedWaiter {
	var out []ResolvedWaiter
	for len(g.waitlist) > 0 {
		w := g.waitlist[0]
		if w.canceled {
			g.waitlist = g.waitlist[1:]
			continue
		}
		sess, ok := g.TryAdmit()
		if !ok {
			break
		}
		g.waitlist = g.waitlist[1:]
		out = append(out, ResolvedWaiter{Waiter: w, Session: sess})
	}
	return out
}

// pickProcess selects the ENABLED process with free capacity to hand the
// next session to: lowest Busyness, ties broken by lower lifetime Processed
// count, final ties broken by the round-robin cursor.
func (g *Group) pickProcess() *process.Process {
	n := len(g.enabledProcesses)
	if n == 0 {
		return nil
	}
	bestIdx := -1
	var bestBusy float64
	var bestProcessed uint64
	for i := 0; i < n; i++ {
		idx := (g.rrCursor + i) % n
		p := g.enabledProcesses[idx]
		if !p.HasCapacity() {
			continue
		}
		busy := p.Busyness()
		if bestIdx == -1 || busy < bestBusy || (busy == bestBusy && p.Processed < bestProcessed) {
			bestIdx = idx
			bestBusy = busy
			bestProcessed = p.Processed
		}
	}
	if bestIdx == -1 {
		return nil
	}
	g.rrCursor = (bestIdx + 1) % n
	return g.enabledProcesses[bestIdx]
}
