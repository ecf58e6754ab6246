package group

import (
	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

// ShutDown transitions the group to SHUT_DOWN, returning every still-queued
// waiter (for the caller to fail with types.ErrGroupShuttingDown) and every
// process it owned (for the caller to schedule OS-level teardown).
func (g *Group) ShutDown() (failedWaiters []*Waiter, detached []*process.Process) {
	g.LifeStatus = types.GroupShutDown
	failedWaiters = g.waitlist
	g.waitlist = nil
	detached = g.DetachAll()
	return failedWaiters, detached
}
