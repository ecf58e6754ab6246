package types

// ProcessEnabled is the enable/disable state of a Process within its Group.
type ProcessEnabled int

const (
	// ENABLED processes accept new sessions and live in Group.enabledProcesses.
	ENABLED ProcessEnabled = iota
	// DISABLING processes are draining: no new sessions, existing ones finish.
	DISABLING
	// DISABLED processes are idle-drained and eligible for eviction/detach.
	DISABLED
)

func (e ProcessEnabled) String() string {
	switch e {
	case ENABLED:
		return "ENABLED"
	case DISABLING:
		return "DISABLING"
	case DISABLED:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// ProcessLifeStatus tracks a Process's OS-level lifecycle independent of ProcessEnabled.
type ProcessLifeStatus int

const (
	// ALIVE processes have a live OS process backing them.
	ALIVE ProcessLifeStatus = iota
	// SHUTDOWN_TRIGGERED processes have been asked to exit but have not been confirmed dead.
	SHUTDOWN_TRIGGERED
	// DEAD processes have exited; only reachable transiently before removal from the Group.
	DEAD
)

func (s ProcessLifeStatus) String() string {
	switch s {
	case ALIVE:
		return "ALIVE"
	case SHUTDOWN_TRIGGERED:
		return "SHUTDOWN_TRIGGERED"
	case DEAD:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// GroupLifeStatus tracks a Group's participation in Pool.groups.
type GroupLifeStatus int

const (
	GroupAlive GroupLifeStatus = iota
	GroupShuttingDown
	GroupShutDown
)

func (s GroupLifeStatus) String() string {
	switch s {
	case GroupAlive:
		return "ALIVE"
	case GroupShuttingDown:
		return "SHUTTING_DOWN"
	case GroupShutDown:
		return "SHUT_DOWN"
	default:
		return "UNKNOWN"
	}
}

// PoolLifeStatus tracks the Pool's own shutdown sequence.
type PoolLifeStatus int

const (
	PoolAlive PoolLifeStatus = iota
	PoolPreparedForShutdown
	PoolShuttingDown
	PoolShutDown
)

func (s PoolLifeStatus) String() string {
	switch s {
	case PoolAlive:
		return "ALIVE"
	case PoolPreparedForShutdown:
		return "PREPARED_FOR_SHUTDOWN"
	case PoolShuttingDown:
		return "SHUTTING_DOWN"
	case PoolShutDown:
		return "SHUT_DOWN"
	default:
		return "UNKNOWN"
	}
}

// DisableResult is the outcome of Group.Disable / Pool.DisableProcess.
type DisableResult int

const (
	// DR_SUCCESS means the process was disabled synchronously.
	DR_SUCCESS DisableResult = iota
	// DR_CANCELED means the process was detached before it finished draining.
	DR_CANCELED
	// DR_DEFERRED means the process is DISABLING; the caller is notified asynchronously.
	DR_DEFERRED
	// DR_ERROR means the disable could not be attempted (e.g. process unknown).
	DR_ERROR
	// DR_NOOP means the process was already disabled/detached; nothing changed.
	DR_NOOP
)

func (r DisableResult) String() string {
	switch r {
	case DR_SUCCESS:
		return "DR_SUCCESS"
	case DR_CANCELED:
		return "DR_CANCELED"
	case DR_DEFERRED:
		return "DR_DEFERRED"
	case DR_ERROR:
		return "DR_ERROR"
	case DR_NOOP:
		return "DR_NOOP"
	default:
		return "UNKNOWN"
	}
}
