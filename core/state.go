package core

// State is the server lifecycle phase. Transitions only move forward:
// Starting -> Running -> Stopping -> Stopped.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
