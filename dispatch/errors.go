package dispatch

import (
	"errors"
	"fmt"

	"github.com/mastercactapus/gsend/machine"
)

// ErrInvalidState is returned when a Worker method is called in a state
// that doesn't allow it, e.g. Start while already running.
var ErrInvalidState = errors.New("invalid worker state")

func stateError(op string, s State) error {
	return fmt.Errorf("%s while %s: %w", op, s, ErrInvalidState)
}

// TransportError reports a command the link failed to deliver.
type TransportError struct {
	// Index is the position of the command in the batch.
	Index   int
	Command machine.Command
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send command %d (%s): %v", e.Index+1, e.Command, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }
