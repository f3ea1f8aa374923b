// Package sim provides a Link that interprets commands in-process instead of
// driving hardware.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
)

// ErrInjected is returned by Send at FailAt.
var ErrInjected = errors.New("sim: injected transport fault")

// Config controls a simulated controller.
type Config struct {
	// Delay is slept before each command is acknowledged.
	Delay time.Duration

	// FailAt makes the n-th Send (zero-based) fail. Negative disables it.
	FailAt int

	// Surface is the work surface height at a machine X/Y, for probe moves.
	// Nil means probes never make contact.
	Surface func(x, y float64) float64
}

// Link runs every command through an interpreter.
type Link struct {
	cfg Config

	mx         sync.Mutex
	interp     *gcode.Interpreter
	sent       []machine.Command
	rollbacks  []gcode.Context
	interrupts int
}

var _ machine.Link = &Link{}

func NewLink(cfg Config) *Link {
	return &Link{cfg: cfg, interp: gcode.NewInterpreter()}
}

func (l *Link) Send(cmd machine.Command) (string, error) {
	if l.cfg.Delay > 0 {
		time.Sleep(l.cfg.Delay)
	}

	l.mx.Lock()
	defer l.mx.Unlock()
	if len(l.sent) == l.cfg.FailAt {
		return "", ErrInjected
	}
	before := l.interp.Context()
	err := l.interp.Run(cmd.Block)
	if err != nil {
		return "", err
	}
	l.sent = append(l.sent, cmd)

	if isProbe(cmd.Block) {
		return l.probe(before), nil
	}
	return fmt.Sprintf("[POS:%s]", l.interp.Context().WPos()), nil
}

func isProbe(b gcode.Block) bool {
	for _, w := range b {
		if w.W == 'G' && w.Arg >= 38.2 && w.Arg <= 38.5 {
			return true
		}
	}
	return false
}

// probe stops the move at the surface and reports it the way grbl does.
func (l *Link) probe(before gcode.Context) string {
	ctx := l.interp.Context()
	end := ctx.MPos()
	if l.cfg.Surface == nil {
		return fmt.Sprintf("[PRB:%s:0]", end)
	}
	z := l.cfg.Surface(end.X, end.Y)
	if z < end.Z || z > before.MPos().Z {
		return fmt.Sprintf("[PRB:%s:0]", end)
	}
	end.Z = z
	l.interp.SetContext(ctx.WithPosition(end, ctx.WCO()))
	return fmt.Sprintf("[PRB:%s:1]", end)
}

func (l *Link) SetInterpreterContext(c gcode.Context) error {
	l.mx.Lock()
	l.interp.SetContext(c)
	l.rollbacks = append(l.rollbacks, c)
	l.mx.Unlock()
	return nil
}

func (l *Link) InterruptProgram() error {
	l.mx.Lock()
	l.interrupts++
	l.mx.Unlock()
	return nil
}

// Context returns the simulated interpreter state.
func (l *Link) Context() gcode.Context {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.interp.Context()
}

// Sent returns the accepted commands in order.
func (l *Link) Sent() []machine.Command {
	l.mx.Lock()
	defer l.mx.Unlock()
	return append([]machine.Command(nil), l.sent...)
}

// Rollbacks returns every context passed to SetInterpreterContext.
func (l *Link) Rollbacks() []gcode.Context {
	l.mx.Lock()
	defer l.mx.Unlock()
	return append([]gcode.Context(nil), l.rollbacks...)
}

// Interrupts returns how many times InterruptProgram was called.
func (l *Link) Interrupts() int {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.interrupts
}
