package group

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
)

func newTestGroup(name string) *Group {
	return New(types.Options{AppGroupName: name})
}

func spawnInto(g *Group, concurrency int) *process.Process {
	generation, ok := g.BeginSpawn(false)
	if !ok {
		return nil
	}
	p := process.New(1, g.Name, concurrency, 0, g)
	g.SpawnSucceeded(p, generation)
	return p
}

func TestNewGroupFreezesOptionsWithDefaults(t *testing.T) {
	g := newTestGroup("app")
	require.Equal(t, types.SpawnMethodSmart, g.Options.SpawnMethod)
	require.Equal(t, types.RestartRolling, g.Options.RestartMethod)
	require.Equal(t, types.GroupAlive, g.LifeStatus)
	require.NotEmpty(t, g.Secret)
}

func TestBeginSpawnSerializesWithoutBurst(t *testing.T) {
	g := newTestGroup("app")

	gen, ok := g.BeginSpawn(false)
	require.True(t, ok)
	require.Equal(t, 0, gen)

	_, ok = g.BeginSpawn(false)
	require.False(t, ok, "a second non-burst spawn must not be admitted while one is in flight")
}

func TestBeginSpawnBurstRespectsMinProcesses(t *testing.T) {
	g := New(types.Options{AppGroupName: "app", MinProcesses: 2})

	_, ok := g.BeginSpawn(true)
	require.True(t, ok)
	_, ok = g.BeginSpawn(true)
	require.True(t, ok)
	_, ok = g.BeginSpawn(true)
	require.False(t, ok, "burst spawns are capped at MinProcesses")
}

func TestTryAdmitPrefersLeastBusyProcess(t *testing.T) {
	g := newTestGroup("app")
	busy := spawnInto(g, 4)
	idle := spawnInto(g, 4)

	// Make busy actually busier than idle.
	for i := 0; i < 2; i++ {
		_, err := busy.NewSession()
		require.NoError(t, err)
	}

	sess, ok := g.TryAdmit()
	require.True(t, ok)
	require.Same(t, idle, sess.Process())
}

func TestTryAdmitFailsWhenNoCapacity(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 1)
	_, err := p.NewSession()
	require.NoError(t, err)

	_, ok := g.TryAdmit()
	require.False(t, ok)
}

func TestEnqueueAndDrainWaitlistFIFO(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 2)
	_, err := p.NewSession()
	require.NoError(t, err) // occupy the one free slot's sibling isn't needed; fill to capacity below
	sess0, err := p.NewSession()
	require.NoError(t, err)
	_ = sess0

	var order []uint64
	g.Enqueue(&Waiter{ID: 1, Callback: func(*process.Session, error) { order = append(order, 1) }})
	g.Enqueue(&Waiter{ID: 2, Callback: func(*process.Session, error) { order = append(order, 2) }})

	resolved := g.drainWaitlist()
	require.Empty(t, resolved, "process is at capacity, nothing should drain yet")

	sess0.Close()
	resolved = g.drainWaitlist()
	require.Len(t, resolved, 1)
	require.Equal(t, uint64(1), resolved[0].Waiter.ID, "FIFO order must admit the earliest waiter first")
}

func TestRemoveWaiterByID(t *testing.T) {
	g := newTestGroup("app")
	g.Enqueue(&Waiter{ID: 1})
	g.Enqueue(&Waiter{ID: 2})

	removed := g.RemoveWaiter(1)
	require.NotNil(t, removed)
	require.Equal(t, uint64(1), removed.ID)
	require.Equal(t, 1, g.WaitlistLen())

	require.Nil(t, g.RemoveWaiter(99))
}

func TestDrainExpiredSeparatesExpiredFromLive(t *testing.T) {
	g := newTestGroup("app")
	now := time.Now()
	g.Enqueue(&Waiter{ID: 1, Deadline: now.Add(-time.Second)})
	g.Enqueue(&Waiter{ID: 2, Deadline: now.Add(time.Hour)})
	g.Enqueue(&Waiter{ID: 3})

	expired := g.DrainExpired(now)
	require.Len(t, expired, 1)
	require.Equal(t, uint64(1), expired[0].ID)
	require.Equal(t, 2, g.WaitlistLen())
}

func TestDisableIdleProcessSucceedsSynchronously(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 1)

	result := g.Disable(p.Gupid, nil)
	require.Equal(t, types.DR_SUCCESS, result)
	require.Equal(t, types.DISABLED, p.Enabled)
	require.Equal(t, 1, g.DisabledCount())
}

func TestDisableBusyProcessDefersUntilDrained(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 1)
	sess, err := p.NewSession()
	require.NoError(t, err)

	var result types.DisableResult
	done := false
	r := g.Disable(p.Gupid, func(res types.DisableResult) { result = res; done = true })
	require.Equal(t, types.DR_DEFERRED, r)
	require.False(t, done)

	sess.Close()
	require.True(t, done)
	require.Equal(t, types.DR_SUCCESS, result)
	require.Equal(t, types.DISABLED, p.Enabled)
}

func TestDisableUnknownProcessErrors(t *testing.T) {
	g := newTestGroup("app")
	require.Equal(t, types.DR_ERROR, g.Disable("nonexistent", nil))
}

func TestDisableAlreadyDisabledIsNoop(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 1)
	require.Equal(t, types.DR_SUCCESS, g.Disable(p.Gupid, nil))
	require.Equal(t, types.DR_NOOP, g.Disable(p.Gupid, nil))
}

func TestEnableRestoresDisabledProcess(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 1)
	require.Equal(t, types.DR_SUCCESS, g.Disable(p.Gupid, nil))

	ok := g.Enable(p.Gupid)
	require.True(t, ok)
	require.Equal(t, types.ENABLED, p.Enabled)
	require.Equal(t, 1, g.EnabledCount())
}

func TestEnableNonDisabledProcessFails(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 1)
	require.False(t, g.Enable(p.Gupid))
}

func TestDetachFromListsCancelsPendingDisableWaiter(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 1)
	sess, err := p.NewSession()
	require.NoError(t, err)

	var result types.DisableResult
	g.Disable(p.Gupid, func(res types.DisableResult) { result = res })

	detached := g.DetachProcess(p.Gupid)
	require.Same(t, p, detached)
	require.Equal(t, types.DR_CANCELED, result)
	sess.Close() // no-op against group bookkeeping now, but must not panic
}

func TestRestartBlockingDetachesEverythingImmediately(t *testing.T) {
	g := newTestGroup("app")
	spawnInto(g, 1)
	spawnInto(g, 1)

	detached, needed := g.Restart(types.RestartBlocking)
	require.Len(t, detached, 2)
	require.Zero(t, needed)
	require.Zero(t, g.TotalProcessCount())
	require.False(t, g.IsRestarting())
}

func TestRestartRollingWaitsForReplacementsBeforeDetachingLegacy(t *testing.T) {
	g := newTestGroup("app")
	legacy1 := spawnInto(g, 1)
	legacy2 := spawnInto(g, 1)

	detached, needed := g.Restart(types.RestartRolling)
	require.Empty(t, detached)
	require.Equal(t, 2, needed)
	require.True(t, g.IsRestarting())

	gen, ok := g.BeginSpawn(true)
	require.True(t, ok)
	replacement1 := process.New(10, g.Name, 1, 0, g)
	_, legacyDetached := g.SpawnSucceeded(replacement1, gen)
	require.Empty(t, legacyDetached, "legacy processes stay until every replacement has landed")

	gen, ok = g.BeginSpawn(true)
	require.True(t, ok)
	replacement2 := process.New(11, g.Name, 1, 0, g)
	_, legacyDetached = g.SpawnSucceeded(replacement2, gen)
	require.ElementsMatch(t, []*process.Process{legacy1, legacy2}, legacyDetached)
	require.False(t, g.IsRestarting())
}

func TestRestartRollingNoopWhenGroupEmpty(t *testing.T) {
	g := newTestGroup("app")
	detached, needed := g.Restart(types.RestartRolling)
	require.Empty(t, detached)
	require.Zero(t, needed)
	require.False(t, g.IsRestarting())
}

func TestProcessShouldRetireDetachesIdleImmediately(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 1)

	g.ProcessShouldRetire(p)
	require.Nil(t, g.FindProcess(p.Gupid))
}

func TestProcessShouldRetireDrainsBusyBeforeDetach(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 1)
	sess, err := p.NewSession()
	require.NoError(t, err)

	g.ProcessShouldRetire(p)
	require.Equal(t, types.DISABLING, p.Enabled)
	require.NotNil(t, g.FindProcess(p.Gupid))

	sess.Close()
	require.Nil(t, g.FindProcess(p.Gupid), "ProcessDrained must detach a retiring process once idle")
}

func TestIdleCandidatesRespectsCutoff(t *testing.T) {
	g := newTestGroup("app")
	p := spawnInto(g, 1)
	p.LastUsed = 100

	require.Empty(t, g.IdleCandidates(50))
	require.ElementsMatch(t, []*process.Process{p}, g.IdleCandidates(150))
}
