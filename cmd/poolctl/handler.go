package poolctl

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/appfleet/appfleet/cmd/core"
	"github.com/appfleet/appfleet/config"
	lockflock "github.com/appfleet/appfleet/lock/flock"
	"github.com/appfleet/appfleet/pool"
	"github.com/appfleet/appfleet/spawn"
)

// Handler wires cobra commands to a single Pool instance owned by this CLI
// process. Only one poolctl process may hold the Pool at a time; guardLock
// enforces that with an flock on a file under the config's RunDir.
type Handler struct {
	core.BaseHandler

	once      sync.Once
	p         *pool.Pool
	guardLock *lockflock.Lock
	initErr   error
}

// LazyPool constructs and starts the Pool the first time any command needs
// it, guarded against concurrent use by another poolctl invocation via an
// flock on RunDir/poolctl.lock. Wire it up as PoolProvider from cmd/root.go.
func (h *Handler) LazyPool() (*pool.Pool, error) {
	h.once.Do(func() {
		conf, err := h.Conf()
		if err != nil {
			h.initErr = err
			return
		}

		h.guardLock = lockflock.New(filepath.Join(conf.RunDir, "poolctl.lock"))
		ok, err := h.guardLock.TryLock(context.Background())
		if err != nil {
			h.initErr = fmt.Errorf("acquire poolctl guard lock: %w", err)
			return
		}
		if !ok {
			h.initErr = fmt.Errorf("another poolctl process already holds %s", conf.RunDir)
			return
		}

		p := pool.New(poolConfigFrom(conf))
		p.Start()
		h.p = p
	})
	return h.p, h.initErr
}

func poolConfigFrom(conf *config.Config) pool.Config {
	return pool.Config{
		Max:                    conf.Max,
		MaxIdleTime:            conf.MaxIdleTime,
		MaxWaitQueueSize:       conf.MaxWaitQueueSize,
		SelfChecking:           conf.SelfChecking,
		RecreateShutDownGroups: conf.RecreateShutDownGroups,
		Spawner:                spawn.NewExecSpawner(conf.WorkerCommand, conf.WorkerArgs, conf.RunDir),
	}
}

// Close tears down the Pool, if one was ever started, and releases the
// guard lock so a subsequent poolctl invocation can take over.
func (h *Handler) Close(ctx context.Context) error {
	if h.p == nil {
		return nil
	}
	err := h.p.Destroy(ctx)
	if h.guardLock != nil {
		_ = h.guardLock.Unlock(ctx)
	}
	return err
}
