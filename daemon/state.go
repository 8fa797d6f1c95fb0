package daemon

// State is one point in the daemon lifecycle state machine (spec.md §4.5).
type State int32

const (
	StateInit State = iota
	StateRunning
	StateUpgrading
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateUpgrading:
		return "upgrading"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// wakeReason tags why the run loop's poller returned, resolving the open
// question spec.md §9 flags: the teacher's equivalent run loop treats "a
// wake with active=true" as a return condition, which conflates an
// administrative stop (the operator explicitly asked this process to exit)
// with a no-op wake (the poller fired for some other registered reason,
// e.g. a child status change, and the loop should just re-block). Those are
// distinguished here as two different wakeReason values so the loop can
// tell them apart instead of guessing from the active flag alone.
type wakeReason int

const (
	// wakeNoop means the poller returned but nothing requires the loop to
	// exit; it should re-block immediately.
	wakeNoop wakeReason = iota
	// wakeAdministrativeStop means shutdown() was invoked (signal handler
	// or explicit call): the loop must exit and drain.
	wakeAdministrativeStop
	// wakeUpgradeHandoffComplete means a live-upgrade handoff finished and
	// this process's copy of the service should exit.
	wakeUpgradeHandoffComplete
)
