package group

import (
	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

// Restart implements the IDLE → RESTARTING → IDLE state machine.
// For RestartBlocking it detaches every process immediately
// and returns them for OS-level teardown; the caller is responsible for
// triggering a fresh spawn on the next Get (or immediately, to satisfy
// MinProcesses). For RestartRolling it marks the group restarting and
// reports how many replacement processes are needed before the old
// generation is detached; the caller must then authorise that many spawns
// (as a burst, bypassing the single-concurrent-spawn throttle).
func (g *Group) Restart(method types.RestartMethod) (detachedNow []*process.Process, replacementsNeeded int) {
	g.currentGeneration++

	switch method {
	case types.RestartBlocking:
		detachedNow = g.DetachAll()
		g.restarting = false
		g.restartReplacementsNeeded = 0
		return detachedNow, 0
	default: // RestartRolling
		needed := g.TotalProcessCount()
		if needed == 0 {
			// Nothing to roll; behave like a no-op restart that still bumps
			// the generation so any processes spawned from here on are
			// tagged current.
			g.restarting = false
			return nil, 0
		}
		g.restarting = true
		g.restartReplacementsNeeded = needed
		return nil, needed
	}
}

// maybeFinishRollingRestart detaches every process from a prior generation
// once enough replacements from the current generation have landed.
func (g *Group) maybeFinishRollingRestart() []*process.Process {
	if !g.restarting {
		return nil
	}
	count := 0
	for _, gen := range g.generationOf {
		if gen == g.currentGeneration {
			count++
		}
	}
	if count < g.restartReplacementsNeeded {
		return nil
	}

	var legacy []*process.Process
	for _, p := range g.AllProcesses() {
		if g.generationOf[p.Gupid] != g.currentGeneration {
			legacy = append(legacy, p)
		}
	}
	for _, p := range legacy {
		g.detachFromLists(p)
	}
	g.restarting = false
	g.restartReplacementsNeeded = 0
	return legacy
}
