package spawn

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/projecteru2/core/log"

	"github.com/appfleet/appfleet/process"
	"github.com/appfleet/appfleet/types"
	"github.com/appfleet/appfleet/utils"
)

const socketReadyTimeout = 5 * time.Second

// ExecSpawner launches a worker binary as a detached OS process and waits
// for it to dial back its readiness socket: fork the binary with its own
// process group so it survives this process exiting, write a PID file, and
// block until the worker's side of the handshake is observable.
type ExecSpawner struct {
	// Command is the worker binary path.
	Command string
	// Args are extra arguments appended after the socket flag.
	Args []string
	// RunDir holds per-process PID files and readiness sockets.
	RunDir string
}

// NewExecSpawner constructs an ExecSpawner that launches command with the
// given extra args, keeping its runtime files under runDir.
func NewExecSpawner(command string, args []string, runDir string) *ExecSpawner {
	return &ExecSpawner{Command: command, Args: args, RunDir: runDir}
}

// Spawn implements Spawner.
func (s *ExecSpawner) Spawn(ctx context.Context, options types.Options) (*process.Process, error) {
	logger := log.WithFunc("spawn.ExecSpawner.Spawn")

	if err := os.MkdirAll(s.RunDir, 0o750); err != nil {
		return nil, errors.Wrap(err, "ensure run dir")
	}

	sockPath := filepath.Join(s.RunDir, options.AppGroupName+".sock")
	_ = os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, errors.Wrap(err, "listen on readiness socket")
	}
	defer listener.Close() //nolint:errcheck

	args := append([]string{"--socket", sockPath}, s.Args...)
	cmd := exec.CommandContext(ctx, s.Command, args...) //nolint:gosec
	// Detach from this process's group so the worker outlives a restart of
	// the pool's own process.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(),
		"APPFLEET_APP_ROOT="+options.AppRoot,
		"APPFLEET_USER="+options.User,
		"APPFLEET_ENV="+options.Environment,
	)

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start worker process")
	}
	pid := cmd.Process.Pid

	if err := utils.WritePIDFile(filepath.Join(s.RunDir, options.AppGroupName+".pid"), pid); err != nil {
		logger.Warnf(ctx, "write pid file for %s: %v", options.AppGroupName, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, socketReadyTimeout)
	defer cancel()
	conn, err := acceptOne(waitCtx, listener)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, errors.Wrapf(err, "wait for %s readiness handshake", options.AppGroupName)
	}

	p := process.New(pid, options.AppGroupName, processConcurrency(options), options.MaxRequests, nil)
	p.SpawnerCreationTime = time.Now()
	logger.Infof(ctx, "spawned %s pid=%d gupid=%s", options.AppGroupName, pid, p.Gupid)
	_ = conn // the handshake connection itself carries no payload we need yet
	return p, nil
}

// processConcurrency derives the process-level concurrency ceiling. Smart
// spawning assumes a multi-threaded worker capable of handling several
// sessions at once; direct spawning assumes one request at a time.
func processConcurrency(options types.Options) int {
	if options.SpawnMethod == types.SpawnMethodDirect {
		return 1
	}
	return 0
}

func acceptOne(ctx context.Context, l net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
