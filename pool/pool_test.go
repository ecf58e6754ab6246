package pool

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appfleet/appfleet/events"
	"github.com/appfleet/appfleet/group"
	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/spawn"
	"github.com/appfleet/appfleet/types"
)

// syncSpawner hands back a ready Process immediately, so AsyncGet's
// background goroutine resolves without any real process exec involved.
func syncSpawner() (spawn.Spawner, *int32) {
	var nextPid int32
	return spawn.Func(func(_ context.Context, options types.Options) (*process.Process, error) {
		pid := atomic.AddInt32(&nextPid, 1)
		return process.New(int(pid), options.AppGroupName, 1, options.MaxRequests, nil), nil
	}), &nextPid
}

// unboundedSyncSpawner behaves like syncSpawner but leaves each process's
// concurrency unbounded, so a single process can hold more than one
// session at a time — needed to exercise the busy-retirement path.
func unboundedSyncSpawner() spawn.Spawner {
	var nextPid int32
	return spawn.Func(func(_ context.Context, options types.Options) (*process.Process, error) {
		pid := atomic.AddInt32(&nextPid, 1)
		return process.New(int(pid), options.AppGroupName, 0, options.MaxRequests, nil), nil
	})
}

func failingSpawner(err error) spawn.Spawner {
	return spawn.Func(func(_ context.Context, _ types.Options) (*process.Process, error) {
		return nil, err
	})
}

func newTestPool(t *testing.T, max int, spawner spawn.Spawner) (*Pool, *events.Mailbox) {
	t.Helper()
	mailbox := events.NewMailbox(64)
	p := New(Config{Max: max, Spawner: spawner, Tracker: mailbox, SelfChecking: true})
	return p, mailbox
}

func waitForKind(t *testing.T, mailbox *events.Mailbox, kind events.Kind) events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range mailbox.Drain() {
			if e.Kind == kind {
				return e
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for event kind %s", kind)
	return events.Event{}
}

func TestGetSpawnsAndAdmitsWhenGroupIsNew(t *testing.T) {
	spawner, _ := syncSpawner()
	p, mailbox := newTestPool(t, 5, spawner)

	sess, err := p.Get(context.Background(), types.Options{AppGroupName: "app"})
	require.NoError(t, err)
	require.NotNil(t, sess)
	waitForKind(t, mailbox, events.KindSpawnSucceeded)

	require.Equal(t, 1, p.GetProcessCount())
	require.NoError(t, p.VerifySelf())
	sess.Close()
}

func TestGetFailsWhenSpawnerErrors(t *testing.T) {
	boom := fmt.Errorf("boom")
	p, _ := newTestPool(t, 5, failingSpawner(boom))

	_, err := p.Get(context.Background(), types.Options{AppGroupName: "app"})
	var spawnErr *types.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	require.ErrorIs(t, spawnErr, boom)
}

func TestCancelGetWithdrawsPoolLevelWaiter(t *testing.T) {
	// Max is 0, so admitOrRoute can never create a group and the waiter
	// lands on the pool-wide wait-list instead of a group's own FIFO.
	p, _ := newTestPool(t, 0, nil)

	resultCh := make(chan error, 1)
	id := p.AsyncGet(context.Background(), types.Options{AppGroupName: "app"}, func(_ *process.Session, err error) {
		resultCh <- err
	})
	require.NotZero(t, id)

	ok := p.CancelGet(id)
	require.True(t, ok)

	select {
	case err := <-resultCh:
		require.ErrorIs(t, err, types.ErrCanceled)
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestSetMaxUnblocksCapacityBlockedGroup(t *testing.T) {
	spawner, _ := syncSpawner()
	p, mailbox := newTestPool(t, 1, spawner)

	sess1, err := p.Get(context.Background(), types.Options{AppGroupName: "app", MaxProcesses: 2})
	require.NoError(t, err)
	waitForKind(t, mailbox, events.KindSpawnSucceeded)
	mailbox.Drain()

	// Second Get for the same group: no free session on the one process,
	// pool is already at Max, so the spawn is capacity-blocked rather than authorized.
	resultCh := make(chan error, 1)
	p.AsyncGet(context.Background(), types.Options{AppGroupName: "app", MaxProcesses: 2}, func(_ *process.Session, err error) {
		resultCh <- err
	})

	p.SetMax(2)
	waitForKind(t, mailbox, events.KindSpawnSucceeded)

	select {
	case err := <-resultCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was never admitted after SetMax freed capacity")
	}
	require.NoError(t, p.VerifySelf())
	sess1.Close()
}

func TestDetachProcessNotFound(t *testing.T) {
	p, _ := newTestPool(t, 5, nil)
	err := p.DetachProcess("nonexistent")
	require.ErrorIs(t, err, types.ErrProcessNotFound)
}

func TestDetachGroupByNameRemovesGroup(t *testing.T) {
	spawner, _ := syncSpawner()
	p, mailbox := newTestPool(t, 5, spawner)

	sess, err := p.Get(context.Background(), types.Options{AppGroupName: "app"})
	require.NoError(t, err)
	waitForKind(t, mailbox, events.KindSpawnSucceeded)
	sess.Close()

	require.NoError(t, p.DetachGroupByName("app"))
	require.Equal(t, 0, p.GetGroupCount())

	err = p.DetachGroupByName("app")
	require.ErrorIs(t, err, types.ErrGroupNotFound)
}

func TestDisableAndEnableProcessRoundTrip(t *testing.T) {
	spawner, _ := syncSpawner()
	p, mailbox := newTestPool(t, 5, spawner)

	sess, err := p.Get(context.Background(), types.Options{AppGroupName: "app"})
	require.NoError(t, err)
	waitForKind(t, mailbox, events.KindSpawnSucceeded)
	gupid := sess.Process().Gupid
	sess.Close()

	result, err := p.DisableProcess(gupid, nil)
	require.NoError(t, err)
	require.Equal(t, types.DR_SUCCESS, result)

	require.NoError(t, p.EnableProcess(gupid))
	require.ErrorIs(t, p.EnableProcess("nonexistent"), types.ErrProcessNotFound)
}

func TestDisableBusySpawnerProcessDefersThenResolvesOnDrain(t *testing.T) {
	spawner, _ := syncSpawner()
	p, mailbox := newTestPool(t, 5, spawner)

	// syncSpawner passes concurrency 1 to process.New, so a second session
	// would have to queue; open exactly one session and keep it busy while
	// disabling, which is the DR_DEFERRED path.
	sess, err := p.Get(context.Background(), types.Options{AppGroupName: "app"})
	require.NoError(t, err)
	waitForKind(t, mailbox, events.KindSpawnSucceeded)
	gupid := sess.Process().Gupid

	resultCh := make(chan types.DisableResult, 1)
	result, err := p.DisableProcess(gupid, func(r types.DisableResult) {
		resultCh <- r
	})
	require.NoError(t, err)
	require.Equal(t, types.DR_DEFERRED, result)

	// The process was produced by the real Spawner, which hands process.New
	// a nil notifier; if SpawnSucceeded never adopted it, SessionClosed below
	// would never reach ProcessDrained and resultCh would stay empty forever.
	sess.Close()

	select {
	case r := <-resultCh:
		require.Equal(t, types.DR_SUCCESS, r)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred disable callback never resolved after draining")
	}
	require.NoError(t, p.VerifySelf())
}

func TestMaxRequestsRetirementSchedulesOSTeardown(t *testing.T) {
	spawner, _ := syncSpawner()
	p, mailbox := newTestPool(t, 5, spawner)

	sess, err := p.Get(context.Background(), types.Options{AppGroupName: "app", MaxRequests: 1})
	require.NoError(t, err)
	waitForKind(t, mailbox, events.KindSpawnSucceeded)
	gupid := sess.Process().Gupid

	// Closing the only session both hits MaxRequests and drops sessions to
	// zero in the same SessionClosed call, so the process retires and
	// detaches immediately — it must not be left running with no group
	// referencing it.
	sess.Close()

	waitForKind(t, mailbox, events.KindProcessDetached)
	require.Nil(t, p.groups["app"].FindProcess(gupid))
	require.NoError(t, p.VerifySelf())
}

func TestMaxRequestsRetirementWhileBusyDetachesAfterDrain(t *testing.T) {
	p, mailbox := newTestPool(t, 5, unboundedSyncSpawner())

	sess1, err := p.Get(context.Background(), types.Options{AppGroupName: "app", MaxRequests: 1})
	require.NoError(t, err)
	waitForKind(t, mailbox, events.KindSpawnSucceeded)
	gupid := sess1.Process().Gupid

	// Second Get lands on the same (unbounded-concurrency) process, keeping
	// it busy so MaxRequests is crossed by sess1.Close() while a session is
	// still open: retirement must disable and defer the detach rather than
	// run it synchronously.
	sess2, err := p.Get(context.Background(), types.Options{AppGroupName: "app", MaxRequests: 1})
	require.NoError(t, err)
	require.Same(t, sess1.Process(), sess2.Process())

	sess1.Close()
	require.NotNil(t, p.groups["app"].FindProcess(gupid), "busy retiring process must drain before detaching")

	sess2.Close()
	waitForKind(t, mailbox, events.KindProcessDetached)
	require.Nil(t, p.groups["app"].FindProcess(gupid))
}

func TestToXMLOmitsSecretUnlessRequested(t *testing.T) {
	spawner, _ := syncSpawner()
	p, mailbox := newTestPool(t, 5, spawner)

	sess, err := p.Get(context.Background(), types.Options{AppGroupName: "app"})
	require.NoError(t, err)
	waitForKind(t, mailbox, events.KindSpawnSucceeded)
	defer sess.Close()

	plain, err := p.ToXML(false)
	require.NoError(t, err)
	require.NotContains(t, plain, "<secret>")

	withSecrets, err := p.ToXML(true)
	require.NoError(t, err)
	require.Contains(t, withSecrets, "<secret>")
}

func TestVerifySelfDetectsGroupNameMismatch(t *testing.T) {
	p, _ := newTestPool(t, 5, nil)

	p.mu.Lock()
	groupA := group.New(types.Options{AppGroupName: "a"})
	groupB := group.New(types.Options{AppGroupName: "b"})
	p.groups["a"] = groupA
	p.groups["b"] = groupB

	// proc claims group "a" but is spawned into group "b"'s own lists.
	gen, ok := groupB.BeginSpawn(false)
	require.True(t, ok)
	proc := process.New(1, "a", 1, 0, groupB)
	groupB.SpawnSucceeded(proc, gen)
	p.mu.Unlock()

	err := p.VerifySelf()
	var violation *types.InvariantViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "group-name-mismatch", violation.Check)
}

func TestVerifySelfCleanOnEmptyPool(t *testing.T) {
	p, _ := newTestPool(t, 5, nil)
	require.NoError(t, p.VerifySelf())
}
