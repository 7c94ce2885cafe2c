// Package lifecycle runs a long-lived process component, such as the
// gateway's listeners, through a validated start/stop state machine.
//
// The flow for a healthy service is:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may move to Failed, and both terminal states may
// move back to Starting for a restart. [Service] guards its state with a
// mutex and is safe for concurrent use.
package lifecycle

// State is the lifecycle position of a [Service]. The zero value is not a
// valid state; services start in [StateUnknown].
type State string

const (
	// StateUnknown is the state of a service that has never been started.
	StateUnknown State = "unknown"

	// StateStarting is set while the OnStart hook runs.
	StateStarting State = "starting"

	// StateRunning is the only state in which [Service.Health] reports
	// healthy.
	StateRunning State = "running"

	// StateStopping is set while the OnStop hook drains in-flight work.
	StateStopping State = "stopping"

	// StateStopped is the terminal state after a clean shutdown.
	StateStopped State = "stopped"

	// StateFailed is the terminal state after a hook error.
	StateFailed State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning, StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions is the transition matrix:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//	Stopped  → Starting
//	Failed   → Starting
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateFailed:   {StateStarting},
}

// ValidTransition reports whether from may move to to. Same-state
// transitions are rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
