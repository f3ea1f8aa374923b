package grbl

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
	"github.com/mastercactapus/gsend/spjs"
)

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// ErrWipedQueue is returned for a line that was dropped from the server queue.
var ErrWipedQueue = errors.New("spjs: wiped queue")

// SPJSClient is the part of *spjs.SPJS used by SPJSLink.
type SPJSClient interface {
	Messages() <-chan interface{}
	SendJSON(spjs.JSON) error
	WriteString(string) error
}

var _ SPJSClient = &spjs.SPJS{}

type pendingLine struct {
	id    string
	lines []string
	ch    chan ack
}

// SPJSLink streams commands to grbl through serial-port-json-server.
type SPJSLink struct {
	sp   SPJSClient
	port string
	baud int
	t    *tracker

	timeout      time.Duration
	resetTimeout time.Duration

	mx      sync.Mutex
	pending *pendingLine
	resetCh chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

var _ machine.Link = &SPJSLink{}

// NewSPJSLink creates a Link to grbl on the named server port. The port is
// opened with the grbl buffer algorithm if the server reports it closed.
func NewSPJSLink(sp SPJSClient, port string, baud int, timeout time.Duration) *SPJSLink {
	if baud == 0 {
		baud = 115200
	}
	l := &SPJSLink{
		sp:           sp,
		port:         port,
		baud:         baud,
		t:            newTracker(),
		timeout:      timeout,
		resetTimeout: defaultResetTimeout,
		resetCh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *SPJSLink) loop() {
	for {
		select {
		case <-l.done:
			return
		case msg := <-l.sp.Messages():
			l.handle(msg)
		}
	}
}

func (l *SPJSLink) handle(msg interface{}) {
	switch msg := msg.(type) {
	case *spjs.DataFrame:
		if msg.Port != "" && msg.Port != l.port {
			return
		}
		for _, line := range strings.Split(msg.Data, "\n") {
			l.handleLine(strings.TrimSpace(line))
		}
	case *spjs.CmdStatus:
		switch msg.Cmd {
		case "WipedQueue":
			l.finish("", ack{err: ErrWipedQueue})
		case "Complete":
			l.finish(msg.ID, ack{})
		}
	case *spjs.SerialPortList:
		for _, port := range msg.SerialPorts {
			if port.Name != l.port || port.IsOpen {
				continue
			}
			go l.sp.WriteString("open " + l.port + " " + strconv.Itoa(l.baud) + " grbl")
		}
	case *spjs.ErrorMessage:
		log.Println("ERROR: spjs:", msg.Error)
	}
}

func (l *SPJSLink) handleLine(line string) {
	switch {
	case line == "", line == "ok", line[0] == '<':
		// acks are reported by the server's Complete status
	case strings.HasPrefix(line, "error:"):
		l.finish("", ack{err: parseError(line)})
	case strings.HasPrefix(line, "ALARM:"):
		l.finish("", ack{err: parseAlarm(line)})
	case strings.HasPrefix(line, "Grbl "):
		l.finish("", ack{err: ErrGrblReset})
		select {
		case l.resetCh <- struct{}{}:
		default:
		}
	default:
		l.mx.Lock()
		if l.pending != nil {
			l.pending.lines = append(l.pending.lines, line)
		}
		l.mx.Unlock()
	}
}

// finish completes the pending line. An empty id matches any line.
func (l *SPJSLink) finish(id string, a ack) {
	l.mx.Lock()
	defer l.mx.Unlock()
	p := l.pending
	if p == nil || (id != "" && id != p.id) {
		return
	}
	l.pending = nil
	a.lines = p.lines
	p.ch <- a
}

func (l *SPJSLink) sendLine(line string) ([]string, error) {
	line = strings.TrimSpace(line) + "\n"
	if len(line) > rxBufferSize {
		return nil, ErrLineTooLong
	}

	p := &pendingLine{id: nextID(), ch: make(chan ack, 1)}
	l.mx.Lock()
	l.pending = p
	l.mx.Unlock()
	defer func() {
		l.mx.Lock()
		if l.pending == p {
			l.pending = nil
		}
		l.mx.Unlock()
	}()

	err := l.sp.SendJSON(spjs.JSON{Port: l.port, Data: []spjs.Data{{Data: line, ID: p.id}}})
	if err != nil {
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if l.timeout > 0 {
		t := time.NewTimer(l.timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case a := <-p.ch:
		return a.lines, a.err
	case <-l.done:
		return nil, spjs.ErrClosed
	case <-timeoutCh:
		return nil, ErrTimeout
	}
}

func (l *SPJSLink) Send(cmd machine.Command) (string, error) {
	if b, ok := l.t.pendingRestore(); ok {
		_, err := l.sendLine(b.String())
		if err != nil {
			return "", err
		}
		l.t.restored()
	}

	lines, err := l.sendLine(cmd.Block.String())
	if errors.Is(err, ErrGrblReset) {
		l.t.invalidate()
	}
	if err != nil {
		return strings.Join(lines, "\n"), err
	}
	l.t.sent(cmd)
	return strings.Join(lines, "\n"), nil
}

// Context returns the interpreter context as tracked on the host.
func (l *SPJSLink) Context() gcode.Context { return l.t.context() }

func (l *SPJSLink) SetInterpreterContext(c gcode.Context) error {
	l.t.set(c)
	return nil
}

// InterruptProgram holds the feed, wipes the server queue and soft-resets
// grbl, waiting for its banner.
func (l *SPJSLink) InterruptProgram() error {
	select {
	case <-l.resetCh:
	default:
	}

	err := l.sp.WriteString("sendnobuf " + l.port + " " + string(rune(cmdFeedHold)))
	if err != nil {
		return err
	}
	l.t.invalidate()
	err = l.sp.WriteString("wipe " + l.port)
	if err != nil {
		return err
	}
	err = l.sp.WriteString("sendnobuf " + l.port + " " + string(rune(cmdSoftReset)))
	if err != nil {
		return err
	}

	t := time.NewTimer(l.resetTimeout)
	defer t.Stop()
	select {
	case <-l.resetCh:
		return nil
	case <-l.done:
		return spjs.ErrClosed
	case <-t.C:
		return ErrTimeout
	}
}

// Close stops reading from the client; it does not close the client.
func (l *SPJSLink) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
