// Package spawn defines the Spawner contract Pool and Group consume, and a
// reference implementation that launches a worker binary as a plain OS
// process. The spawning mechanism is an external collaborator — Pool and
// Group only ever see the Spawner interface.
package spawn

import (
	"context"

	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

// Spawner asynchronously produces a ready Process (or an error) for the
// given Options. Implementations must be safe for concurrent use: Group may
// have several Spawn calls for different groups in flight at once, though
// never more than one per group unless a burst is authorised.
type Spawner interface {
	// Spawn starts a new worker process for options and blocks until it is
	// ready to accept sessions or has definitively failed. Pool calls this
	// from a goroutine it owns, never while holding syncher.
	Spawn(ctx context.Context, options types.Options) (*process.Process, error)
}

// Func adapts a plain function into a Spawner.
type Func func(ctx context.Context, options types.Options) (*process.Process, error)

// Spawn implements Spawner.
func (f Func) Spawn(ctx context.Context, options types.Options) (*process.Process, error) {
	return f(ctx, options)
}
