package machine

import "github.com/mastercactapus/gsend/gcode"

// A Link represents the minimal controller interface needed to stream a batch.
//
// Callers never invoke a Link concurrently; a single run owns it from
// start to finish.
type Link interface {
	// Send blocks until the controller has accepted the whole command.
	// It returns any text the controller produced for it. A non-nil error
	// means delivery failed and the controller state is unknown.
	Send(Command) (string, error)

	// SetInterpreterContext rolls the interpreter state back to c.
	SetInterpreterContext(c gcode.Context) error

	// InterruptProgram makes the controller abandon anything it is still
	// executing or has buffered.
	InterruptProgram() error
}
