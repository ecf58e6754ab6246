package group

import "github.com/appfleet/appfleet/process"

// ShouldSpawn reports whether this group's own ceiling (Options.MaxProcesses)
// has room for another process. It says nothing about Pool's global
// ceiling — Pool checks that separately before authorising a spawn.
func (g *Group) ShouldSpawn() bool {
	if g.Options.MaxProcesses > 0 && g.TotalProcessCount() >= g.Options.MaxProcesses {
		return false
	}
	return true
}

// BeginSpawn reserves a spawn slot, enforcing the rule that there is never
// more than one concurrent spawn per Group unless Pool explicitly
// authorises a burst. burst is true when the caller
// (Pool) has decided this spawn is satisfying MinProcesses rather than
// ordinary demand growth. Returns the restart generation the resulting
// Process should be stamped with, and whether a spawn slot was reserved.
func (g *Group) BeginSpawn(burst bool) (generation int, ok bool) {
	if g.spawning && !burst {
		return 0, false
	}
	if g.spawning && burst {
		limit := g.Options.MinProcesses
		if limit <= 0 {
			limit = 1
		}
		if g.processesBeingSpawned >= limit {
			return 0, false
		}
	}
	g.spawning = true
	g.processesBeingSpawned++
	return g.currentGeneration, true
}

// SpawnSucceeded inserts the newly-ready process into enabledProcesses,
// drains as many FIFO waiters as it (and any other already-enabled
// process) can now admit, and — if this completes a rolling restart's
// replacement quota — detaches the old generation's processes too.
func (g *Group) SpawnSucceeded(p *process.Process, generation int) (resolved []ResolvedWaiter, legacyDetached []*process.Process) {
	g.processesBeingSpawned--
	if g.processesBeingSpawned == 0 {
		g.spawning = false
	}

	p.SetNotifier(g)
	g.generationOf[p.Gupid] = generation
	g.enabledProcesses = append(g.enabledProcesses, p)

	resolved = g.drainWaitlist()
	legacyDetached = g.maybeFinishRollingRestart()
	return resolved, legacyDetached
}

// SpawnFailed releases the reserved spawn slot and, if waiters are queued,
// returns all of them so the caller can surface the same SpawnError to
// every one of them.
func (g *Group) SpawnFailed() []*Waiter {
	g.processesBeingSpawned--
	if g.processesBeingSpawned == 0 {
		g.spawning = false
	}
	if len(g.waitlist) == 0 {
		return nil
	}
	failed := g.waitlist
	g.waitlist = nil
	return failed
}
