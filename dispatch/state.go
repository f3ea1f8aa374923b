package dispatch

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle state of a Worker.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports if s is one of the outcome states.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Outcome is the result of a single run.
type Outcome struct {
	// State is StateCompleted, StateCancelled, or StateFailed.
	State State

	// Sent is the number of commands the link accepted.
	Sent int

	// Err is a *TransportError when State is StateFailed. When cancelled,
	// it holds any error from the rollback or interrupt, or nil.
	Err error
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	var v struct {
		State State  `json:"state"`
		Sent  int    `json:"sent"`
		Error string `json:"error,omitempty"`
	}
	v.State = o.State
	v.Sent = o.Sent
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return json.Marshal(v)
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s after %d commands: %v", o.State, o.Sent, o.Err)
	}
	return fmt.Sprintf("%s after %d commands", o.State, o.Sent)
}
