package proxy

import "fmt"

// State is the lifecycle state of the proxy server.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a snapshot of the server lifecycle. Port is set while Running;
// Message is set while Error. Only the Server writes it.
type Status struct {
	State   State
	Port    int
	Message string
}
