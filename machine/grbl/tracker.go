package grbl

import (
	"log"
	"sync"

	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
)

// tracker mirrors the controller's interpreter state on the host.
//
// After a rollback or reset the controller's modal state can no longer be
// trusted, so the next command is preceded by a restore block.
type tracker struct {
	mx      sync.Mutex
	interp  *gcode.Interpreter
	restore bool
}

func newTracker() *tracker {
	return &tracker{interp: gcode.NewInterpreter()}
}

func (t *tracker) context() gcode.Context {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.interp.Context()
}

func (t *tracker) set(c gcode.Context) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.interp.SetContext(c)
	t.restore = true
}

func (t *tracker) invalidate() {
	t.mx.Lock()
	t.restore = true
	t.mx.Unlock()
}

// pendingRestore returns the block to send before the next command, if any.
func (t *tracker) pendingRestore() (gcode.Block, bool) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if !t.restore {
		return nil, false
	}
	return t.interp.Context().RestoreBlock(), true
}

func (t *tracker) restored() {
	t.mx.Lock()
	t.restore = false
	t.mx.Unlock()
}

// sent records a command the controller accepted.
func (t *tracker) sent(cmd machine.Command) {
	t.mx.Lock()
	defer t.mx.Unlock()
	err := t.interp.Run(cmd.Block)
	if err != nil {
		// the controller accepted it; only the host copy is behind
		log.Printf("WARN: track %s: %v", cmd, err)
		t.interp.SetContext(cmd.Context)
	}
}
