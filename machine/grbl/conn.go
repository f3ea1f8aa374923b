package grbl

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// rxBufferSize is the size of the grbl serial receive buffer; a line
// longer than this can never be accepted.
const rxBufferSize = 128

const (
	cmdFeedHold  = '!'
	cmdSoftReset = 0x18
)

var (
	// ErrGrblReset will be returned from write methods if a reset is encountered
	// before the line was acknowledged.
	ErrGrblReset = errors.New("grbl reset")

	// ErrTimeout is returned when a line is not acknowledged in time.
	ErrTimeout = errors.New("grbl: timed out waiting for response")

	// ErrLineTooLong is returned for lines that don't fit the rx buffer.
	ErrLineTooLong = errors.New("grbl: line exceeds receive buffer")
)

type ack struct {
	lines []string
	err   error
}

// Conn represents a direct, line-at-a-time connection to a Grbl controller.
type Conn struct {
	rw io.ReadWriter

	ackCh   chan ack
	alarmCh chan error
	resetCh chan struct{}

	closeCh   chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}
	readErr   error

	mx  sync.Mutex // serializes writes to rw
	wMx sync.Mutex // one line in flight

	msgMx sync.Mutex
	msgs  []string
}

// NewConn creates a new Conn using the provided ReadWriter for data and starts
// reading responses from it.
func NewConn(rw io.ReadWriter) *Conn {
	c := &Conn{
		rw:       rw,
		ackCh:    make(chan ack, 1),
		alarmCh:  make(chan error, 1),
		resetCh:  make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Close will abort any in-progress writes and close the
// underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if closer, ok := c.rw.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

func (c *Conn) takeMessages() []string {
	c.msgMx.Lock()
	defer c.msgMx.Unlock()
	m := c.msgs
	c.msgs = nil
	return m
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	scan := bufio.NewScanner(c.rw)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		switch {
		case line == "":
		case line == "ok":
			c.deliver(ack{lines: c.takeMessages()})
		case strings.HasPrefix(line, "error:"):
			c.deliver(ack{lines: c.takeMessages(), err: parseError(line)})
		case strings.HasPrefix(line, "ALARM:"):
			select {
			case c.alarmCh <- parseAlarm(line):
			default:
			}
		case strings.HasPrefix(line, "Grbl "):
			c.takeMessages()
			select {
			case c.resetCh <- struct{}{}:
			default:
			}
		case line[0] == '<':
			// status reports are not requested by this connection
		default:
			c.msgMx.Lock()
			c.msgs = append(c.msgs, line)
			c.msgMx.Unlock()
		}
	}
	c.readErr = scan.Err()
	if c.readErr == nil {
		c.readErr = io.ErrUnexpectedEOF
	}
}

func (c *Conn) deliver(a ack) {
	select {
	case c.ackCh <- a:
	case <-c.closeCh:
	}
}

// drain discards signals left over from earlier lines or resets.
func (c *Conn) drain() {
	for {
		select {
		case <-c.ackCh:
		case <-c.alarmCh:
		case <-c.resetCh:
		default:
			return
		}
	}
}

func (c *Conn) write(p []byte) error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-c.readDone:
		return c.readErr
	default:
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	_, err := c.rw.Write(p)
	return err
}

// WriteLine sends a single line and blocks until grbl acknowledges it.
//
// It returns any other lines grbl printed for it, like `[MSG:...]`
// feedback. A timeout of zero waits forever.
func (c *Conn) WriteLine(line string, timeout time.Duration) ([]string, error) {
	line = strings.TrimSpace(line) + "\n"
	if len(line) > rxBufferSize {
		return nil, ErrLineTooLong
	}

	c.wMx.Lock()
	defer c.wMx.Unlock()

	c.drain()
	err := c.write([]byte(line))
	if err != nil {
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case a := <-c.ackCh:
		return a.lines, a.err
	case err := <-c.alarmCh:
		return c.takeMessages(), err
	case <-c.resetCh:
		return nil, ErrGrblReset
	case <-c.readDone:
		return nil, c.readErr
	case <-c.closeCh:
		return nil, io.ErrClosedPipe
	case <-timeoutCh:
		return nil, ErrTimeout
	}
}

// WriteByte will write directly to the serial device, bypassing the
// line protocol.
//
// Use for realtime commands like `?` or `!`.
func (c *Conn) WriteByte(p byte) error {
	return c.write([]byte{p})
}

// Reset sends a soft-reset and waits for grbl to print its banner.
func (c *Conn) Reset(timeout time.Duration) error {
	c.wMx.Lock()
	defer c.wMx.Unlock()

	c.drain()
	err := c.WriteByte(cmdSoftReset)
	if err != nil {
		return err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case <-c.resetCh:
		c.drain()
		return nil
	case <-c.readDone:
		return c.readErr
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-timeoutCh:
		return ErrTimeout
	}
}
