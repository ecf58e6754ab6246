// Package config loads the settings cmd/poolctl needs to boot a Pool:
// where its runtime files live, how big it is allowed to grow, and how it
// logs. The pool engine itself takes a fully-built Config value and never
// reads a file — loading stays an external collaborator's job.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	coretypes "github.com/projecteru2/core/types"
)

// Config holds everything cmd/poolctl needs to construct a pool.Config
// and its Spawner.
type Config struct {
	// RunDir holds per-process PID files and readiness sockets, and the
	// flock file backing the CLI's single-instance guard.
	RunDir string `json:"run_dir" mapstructure:"run_dir"`
	// WorkerCommand is the binary ExecSpawner launches for every process.
	WorkerCommand string `json:"worker_command" mapstructure:"worker_command"`
	// WorkerArgs are extra arguments passed to WorkerCommand.
	WorkerArgs []string `json:"worker_args" mapstructure:"worker_args"`

	// Max is the pool-wide process ceiling.
	Max int `json:"max" mapstructure:"max"`
	// MaxIdleTime is how long an idle process may sit before GC considers evicting it.
	MaxIdleTime time.Duration `json:"max_idle_time" mapstructure:"max_idle_time"`
	// MaxWaitQueueSize bounds the pool-level wait-list; 0 means unlimited.
	MaxWaitQueueSize int `json:"max_wait_queue_size" mapstructure:"max_wait_queue_size"`
	// SelfChecking enables the invariant checker. It runs after process and
	// group detaches, restarts, spawn results, session closes and GC passes;
	// AsyncGet, CancelGet, DisableProcess, EnableProcess, SetMax and the
	// metrics pass do not run it.
	SelfChecking bool `json:"self_checking" mapstructure:"self_checking"`
	// RecreateShutDownGroups controls what happens when a request targets a
	// group that is currently SHUT_DOWN: true re-creates it silently; false
	// fails the request instead. Default false — see DESIGN.md.
	RecreateShutDownGroups bool `json:"recreate_shut_down_groups" mapstructure:"recreate_shut_down_groups"`

	// PoolSize defaults to runtime.NumCPU() if zero. It is not passed on to
	// pool.Config; the metrics collector bounds its concurrent /proc reads by
	// runtime.NumCPU() itself.
	PoolSize int `json:"pool_size" mapstructure:"pool_size"`

	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config with sensible defaults for local use.
func DefaultConfig() *Config {
	return &Config{
		RunDir:      "/var/lib/appfleet",
		Max:         32,
		MaxIdleTime: 5 * time.Minute,
		PoolSize:    runtime.NumCPU(),
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from path, falling back to defaults when
// path is empty or does not exist.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if conf.PoolSize <= 0 {
		conf.PoolSize = runtime.NumCPU()
	}
	return conf, nil
}
