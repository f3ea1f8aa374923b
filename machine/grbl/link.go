package grbl

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
	"github.com/tarm/serial"
)

const defaultResetTimeout = 3 * time.Second

// SerialConfig configures a serial connection to grbl.
type SerialConfig struct {
	Port string
	Baud int

	// Timeout bounds how long a single line may wait for its `ok`.
	// Zero waits forever.
	Timeout time.Duration
}

// Link streams commands to grbl over a direct connection.
type Link struct {
	conn *Conn
	t    *tracker

	timeout      time.Duration
	resetTimeout time.Duration
}

var _ machine.Link = &Link{}

// NewLink creates a Link over an already-open connection.
func NewLink(rw io.ReadWriter, timeout time.Duration) *Link {
	return &Link{
		conn:         NewConn(rw),
		t:            newTracker(),
		timeout:      timeout,
		resetTimeout: defaultResetTimeout,
	}
}

// Open opens the serial port and returns a Link to the controller on it.
func Open(cfg SerialConfig) (*Link, error) {
	if cfg.Port == "" {
		return nil, errors.New("grbl: serial port required")
	}
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	port, err := serial.OpenPort(&serial.Config{
		Name: cfg.Port,
		Baud: cfg.Baud,
	})
	if err != nil {
		return nil, err
	}
	return NewLink(port, cfg.Timeout), nil
}

// Context returns the interpreter context as tracked on the host.
func (l *Link) Context() gcode.Context { return l.t.context() }

func (l *Link) writeRestore() error {
	b, ok := l.t.pendingRestore()
	if !ok {
		return nil
	}
	_, err := l.conn.WriteLine(b.String(), l.timeout)
	if err != nil {
		return err
	}
	l.t.restored()
	return nil
}

func (l *Link) Send(cmd machine.Command) (string, error) {
	err := l.writeRestore()
	if err != nil {
		return "", err
	}

	lines, err := l.conn.WriteLine(cmd.Block.String(), l.timeout)
	if errors.Is(err, ErrGrblReset) {
		l.t.invalidate()
	}
	if err != nil {
		return strings.Join(lines, "\n"), err
	}
	l.t.sent(cmd)
	return strings.Join(lines, "\n"), nil
}

func (l *Link) SetInterpreterContext(c gcode.Context) error {
	l.t.set(c)
	return nil
}

// InterruptProgram holds the feed, then soft-resets grbl to discard its
// planner buffer.
func (l *Link) InterruptProgram() error {
	err := l.conn.WriteByte(cmdFeedHold)
	if err != nil {
		return err
	}
	l.t.invalidate()
	return l.conn.Reset(l.resetTimeout)
}

func (l *Link) Close() error { return l.conn.Close() }
