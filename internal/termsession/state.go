package termsession

import "time"

// ConnectionState is the lifecycle state of one session's transport.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	return string(s)
}

// IsValid returns true if the state is one of the defined constants.
func (s ConnectionState) IsValid() bool {
	switch s {
	case StateConnecting, StateConnected, StateDisconnected, StateError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s.
func (s ConnectionState) IsTerminal() bool {
	return s == StateDisconnected || s == StateError
}

// transitions lists every permitted edge.
var transitions = map[ConnectionState][]ConnectionState{
	StateConnecting: {StateConnected, StateError},
	StateConnected:  {StateDisconnected, StateError},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to ConnectionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateTransition records a state change for debugging.
type StateTransition struct {
	From      ConnectionState `json:"from"`
	To        ConnectionState `json:"to"`
	Timestamp time.Time       `json:"timestamp"`
}
