package pool

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/appfleet/appfleet/types"
)

// checkInvariantsLocked runs the cheap and expensive consistency checks
// below when SelfChecking is enabled, and drives the pool into
// SHUTTING_DOWN on the first violation found — a violation here is
// definitionally a programming bug, not a transient condition a caller can
// retry past. Caller holds mu. No-op when SelfChecking is off.
func (p *Pool) checkInvariantsLocked(reason string) {
	if !p.selfChecking || p.lifeStatus != types.PoolAlive {
		return
	}
	violation := p.verifyCheapInvariantsLocked()
	if violation == nil {
		violation = p.verifyExpensiveInvariantsLocked()
	}
	if violation == nil {
		return
	}
	log.WithFunc("pool.checkInvariantsLocked").Errorf(context.Background(), violation,
		"invariant violated during %s", reason)
	p.lifeStatus = types.PoolShuttingDown
}

// VerifySelf runs every invariant check without mutating pool state,
// regardless of whether SelfChecking is enabled. Intended for test
// helpers that want an assertion, not a side effect.
func (p *Pool) VerifySelf() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v := p.verifyCheapInvariantsLocked(); v != nil {
		return v
	}
	if v := p.verifyExpensiveInvariantsLocked(); v != nil {
		return v
	}
	return nil
}

// verifyCheapInvariantsLocked checks the pool-level bookkeeping: the
// global wait-list only ever holds waiters for groups that don't exist
// yet, total capacity never exceeds the ceiling, and no group sits idle
// with queued waiters unless something is actively working to unblock it.
// All O(groups), cheap enough to run after every mutating call.
func (p *Pool) verifyCheapInvariantsLocked() *types.InvariantViolation {
	for _, w := range p.waitlist {
		if _, ok := p.groups[w.Options.AppGroupName]; ok {
			return types.NewInvariantViolation("waitlist-targets-existing-group", "pool wait-list holds a waiter for an existing group "+w.Options.AppGroupName)
		}
	}

	if used := p.capacityUsedLocked(); p.max > 0 && used > p.max {
		return types.NewInvariantViolation("capacity-exceeds-max", fmt.Sprintf("capacity used %d exceeds max %d", used, p.max))
	}

	for name, g := range p.groups {
		if g.EnabledCount() == 0 && g.WaitlistLen() > 0 {
			if !g.IsSpawning() && !g.IsRestarting() && !p.capacityBlockedGroups[name] {
				return types.NewInvariantViolation("group-idle-with-waiters", "group "+name+" has queued waiters while idle and not spawning, restarting, or capacity-blocked")
			}
		}
	}
	return nil
}

// verifyExpensiveInvariantsLocked checks cross-entity consistency: gupid
// uniqueness across the whole pool, and that every process's GroupName
// actually names the group holding it. O(processes); run from the same
// post-mutation hook as the cheap checks since this pool's scale keeps
// that affordable — see DESIGN.md.
func (p *Pool) verifyExpensiveInvariantsLocked() *types.InvariantViolation {
	seen := make(map[string]string, p.capacityUsedLocked())
	for name, g := range p.groups {
		for _, proc := range g.AllProcesses() {
			if proc.GroupName != name {
				return types.NewInvariantViolation("group-name-mismatch", fmt.Sprintf("process %s claims group %q but is held by group %q", proc.Gupid, proc.GroupName, name))
			}
			if owner, ok := seen[proc.Gupid]; ok {
				return types.NewInvariantViolation("gupid-collision", fmt.Sprintf("gupid %s present in both group %q and group %q", proc.Gupid, owner, name))
			}
			seen[proc.Gupid] = name
		}
	}
	return nil
}
