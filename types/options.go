package types

import (
	"time"

	units "github.com/docker/go-units"
)

// SpawnMethod selects how a Group replaces or grows its process set.
type SpawnMethod string

const (
	SpawnMethodSmart SpawnMethod = "smart"
	SpawnMethodDirect SpawnMethod = "direct"
)

// RestartMethod selects how Group.Restart swaps out running processes.
type RestartMethod string

const (
	// RestartBlocking detaches every process immediately and spawns fresh ones.
	RestartBlocking RestartMethod = "blocking"
	// RestartRolling spawns replacements first and only then detaches the old processes.
	RestartRolling RestartMethod = "rolling"
)

// Options is the admission key a caller presents to Pool.Get / Pool.AsyncGet.
// Two Options with equal AppGroupName address the same Group; every other
// field is frozen onto the Group the first time it is created and reused
// for every subsequent spawn for the Group's whole lifetime; a restart
// keeps them.
type Options struct {
	// AppGroupName identifies the application. This is the Group identity.
	AppGroupName string
	AppRoot      string
	User         string
	Environment  string

	// MinProcesses is the floor the garbage collector will not evict below.
	MinProcesses int
	// MaxProcesses is the per-group ceiling; 0 means "bounded only by Pool.Max".
	MaxProcesses int
	// MaxRequests retires a process after it has served this many sessions; 0 = unbounded.
	MaxRequests int

	StartTimeout  time.Duration
	SpawnMethod   SpawnMethod
	RestartMethod RestartMethod

	// MemoryLimit is an operational hint parsed from a human string ("512M",
	// "1g") via ParseMemoryLimit. It is not enforced, and neither Inspect nor
	// ToXML renders it.
	MemoryLimit int64
	// Label is free-form operator metadata, not interpreted by Pool or Group.
	Label string
}

// ParseMemoryLimit parses a human-readable byte size ("512M", "1g", "2GiB")
// into bytes, using the same vocabulary Docker/Moby tooling accepts.
func ParseMemoryLimit(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return units.RAMInBytes(s)
}

// WithDefaults fills unset fields with the process-pool's baseline policy.
// Called once when a Group is created from the first Options that named it.
func (o Options) WithDefaults() Options {
	if o.MaxRequests < 0 {
		o.MaxRequests = 0
	}
	if o.SpawnMethod == "" {
		o.SpawnMethod = SpawnMethodSmart
	}
	if o.RestartMethod == "" {
		o.RestartMethod = RestartRolling
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 90 * time.Second
	}
	return o
}
