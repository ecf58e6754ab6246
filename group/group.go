// Package group implements the per-application admission queue, spawn
// throttle, and restart/disable state machines that make up one
// application's slice of the pool. Every method assumes its caller already
// holds the Pool's single syncher lock; Group has no lock of its own.
package group

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

// Group is all Processes serving one application identity.
type Group struct {
	Name    string
	Secret  string
	Options types.Options

	enabledProcesses   []*process.Process
	disablingProcesses []*process.Process
	disabledProcesses  []*process.Process
	rrCursor           int

	waitlist []*Waiter

	spawning              bool
	processesBeingSpawned int
	currentGeneration     int

	restarting               bool
	restartReplacementsNeeded int

	LifeStatus types.GroupLifeStatus

	// retiring tracks gupids that must be detached the moment they finish
	// draining (set by ProcessShouldRetire, consumed by ProcessDrained).
	retiring map[string]bool

	// disableWaiters tracks gupid -> pending Disable() callbacks fired once
	// the process finishes draining (DR_DEFERRED callers).
	disableWaiters map[string][]func(types.DisableResult)

	// generationOf tracks which restart generation each live process
	// belongs to, keyed by gupid, so Restart(ROLLING) can tell legacy
	// processes apart from their replacements.
	generationOf map[string]int
}

// New creates an empty, ALIVE Group for options. Options are frozen with
// WithDefaults the moment the Group is created; later Get calls for the
// same AppGroupName do not change them — the first Options seen is
// authoritative for the Group's whole lifetime.
func New(options types.Options) *Group {
	return &Group{
		Name:           options.AppGroupName,
		Secret:         randomSecret(),
		Options:        options.WithDefaults(),
		LifeStatus:     types.GroupAlive,
		retiring:       make(map[string]bool),
		disableWaiters: make(map[string][]func(types.DisableResult)),
		generationOf:   make(map[string]int),
	}
}

func randomSecret() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// EnabledCount, DisablingCount, DisabledCount report the size of each
// per-state process list.
func (g *Group) EnabledCount() int   { return len(g.enabledProcesses) }
func (g *Group) DisablingCount() int { return len(g.disablingProcesses) }
func (g *Group) DisabledCount() int  { return len(g.disabledProcesses) }

// ProcessesBeingSpawned is the count of in-flight Spawn calls for this group.
func (g *Group) ProcessesBeingSpawned() int { return g.processesBeingSpawned }

// TotalProcessCount is enabled+disabling+disabled+beingSpawned, the figure
// Group.ShouldSpawn compares against Options.MaxProcesses and Pool sums against its
// own ceiling.
func (g *Group) TotalProcessCount() int {
	return g.EnabledCount() + g.DisablingCount() + g.DisabledCount() + g.processesBeingSpawned
}

// IsSpawning reports whether a spawn is currently in flight for this group.
func (g *Group) IsSpawning() bool { return g.spawning }

// IsRestarting reports whether a restart is currently in flight.
func (g *Group) IsRestarting() bool { return g.restarting }

// WaitlistLen returns the number of waiters queued on this group.
func (g *Group) WaitlistLen() int { return len(g.waitlist) }

// AllProcesses returns every process the group currently owns, across all
// three lists, in no particular order. Callers must treat the result as a
// read-only snapshot.
func (g *Group) AllProcesses() []*process.Process {
	out := make([]*process.Process, 0, g.TotalProcessCount())
	out = append(out, g.enabledProcesses...)
	out = append(out, g.disablingProcesses...)
	out = append(out, g.disabledProcesses...)
	return out
}

// EnabledProcesses, DisabledProcesses expose the lists read-only for GC and inspection.
func (g *Group) EnabledProcesses() []*process.Process  { return g.enabledProcesses }
func (g *Group) DisabledProcesses() []*process.Process { return g.disabledProcesses }

// FindProcess locates a process owned by this group by gupid.
func (g *Group) FindProcess(gupid string) *process.Process {
	for _, p := range g.AllProcesses() {
		if p.Gupid == gupid {
			return p
		}
	}
	return nil
}
