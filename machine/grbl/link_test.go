package grbl

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGrbl answers on the device side of a pipe.
type fakeGrbl struct {
	conn net.Conn

	mx       sync.Mutex
	lines    []string
	realtime []byte

	// reply returns the lines to print for a received line.
	// A nil result means no reply at all.
	reply func(line string) []string
}

func newFakeGrbl(t *testing.T, reply func(string) []string) (*fakeGrbl, net.Conn) {
	host, dev := net.Pipe()
	if reply == nil {
		reply = func(string) []string { return []string{"ok"} }
	}
	d := &fakeGrbl{conn: dev, reply: reply}
	go d.serve()
	t.Cleanup(func() { dev.Close() })
	return d, host
}

func (d *fakeGrbl) print(lines ...string) {
	for _, l := range lines {
		io.WriteString(d.conn, l+"\r\n")
	}
}

func (d *fakeGrbl) serve() {
	r := bufio.NewReader(d.conn)
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		switch b {
		case cmdFeedHold, '?':
			d.mx.Lock()
			d.realtime = append(d.realtime, b)
			d.mx.Unlock()
		case cmdSoftReset:
			d.mx.Lock()
			d.realtime = append(d.realtime, b)
			d.mx.Unlock()
			d.print("Grbl 1.1f ['$' for help]")
		case '\n':
			s := string(line)
			line = line[:0]
			d.mx.Lock()
			d.lines = append(d.lines, s)
			reply := d.reply
			d.mx.Unlock()
			d.print(reply(s)...)
		default:
			line = append(line, b)
		}
	}
}

func (d *fakeGrbl) received() ([]string, []byte) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]string(nil), d.lines...), append([]byte(nil), d.realtime...)
}

func cmd(src string) machine.Command {
	return machine.Command{Block: gcode.MustParse(src)[0], Context: gcode.DefaultContext()}
}

func TestLink_Send(t *testing.T) {
	dev, host := newFakeGrbl(t, func(line string) []string {
		if line == "M2" {
			return []string{"[MSG:Pgm End]", "ok"}
		}
		return []string{"ok"}
	})
	l := NewLink(host, time.Second)
	defer l.Close()

	resp, err := l.Send(cmd("G0 X1"))
	require.NoError(t, err)
	assert.Empty(t, resp)

	resp, err = l.Send(cmd("M2"))
	require.NoError(t, err)
	assert.Equal(t, "[MSG:Pgm End]", resp)

	lines, _ := dev.received()
	assert.Equal(t, []string{"G0X1", "M2"}, lines)
	assert.Equal(t, 1.0, l.Context().MPos().X)
}

func TestLink_DeviceError(t *testing.T) {
	_, host := newFakeGrbl(t, func(string) []string { return []string{"error:20"} })
	l := NewLink(host, time.Second)
	defer l.Close()

	_, err := l.Send(cmd("G0 X1"))
	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 20, de.Code)
	assert.False(t, de.Alarm)
	assert.Equal(t, "grbl error:20 (unsupported command)", err.Error())
}

func TestLink_Alarm(t *testing.T) {
	_, host := newFakeGrbl(t, func(string) []string { return []string{"ALARM:1"} })
	l := NewLink(host, time.Second)
	defer l.Close()

	_, err := l.Send(cmd("G0 X1"))
	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.True(t, de.Alarm)
	assert.Equal(t, "hard limit", de.Text)
}

func TestLink_Timeout(t *testing.T) {
	_, host := newFakeGrbl(t, func(string) []string { return nil })
	l := NewLink(host, 20*time.Millisecond)
	defer l.Close()

	_, err := l.Send(cmd("G4 P10"))
	assert.Equal(t, ErrTimeout, err)
}

func TestLink_LineTooLong(t *testing.T) {
	_, host := newFakeGrbl(t, nil)
	l := NewLink(host, time.Second)
	defer l.Close()

	b := make(gcode.Block, 0, 40)
	b = append(b, gcode.Word{W: 'G', Arg: 1})
	for _, w := range "XYZFSPIJKR" {
		b = append(b, gcode.Word{W: byte(w), Arg: -12345.6789})
	}
	_, err := l.Send(machine.Command{Block: b})
	assert.NoError(t, err, "fits")

	long := machine.Command{Block: gcode.Block{{W: 'G', Arg: 1}}}
	for i := 0; i < 30; i++ {
		long.Block = append(long.Block, gcode.Word{W: 'X', Arg: 1.2345})
	}
	_, err = l.Send(long)
	assert.Equal(t, ErrLineTooLong, err)
}

func TestLink_InterruptAndRestore(t *testing.T) {
	dev, host := newFakeGrbl(t, nil)
	l := NewLink(host, time.Second)
	defer l.Close()

	_, err := l.Send(cmd("G20 G91 G0 X1"))
	require.NoError(t, err)

	rollback := gcode.NewInterpreter()
	require.NoError(t, rollback.Run(gcode.MustParse("G20 G90 G1 X2 F30")[0]))

	require.NoError(t, l.SetInterpreterContext(rollback.Context()))
	require.NoError(t, l.InterruptProgram())

	_, rt := dev.received()
	assert.Equal(t, []byte{cmdFeedHold, cmdSoftReset}, rt)

	_, err = l.Send(cmd("G0 X0"))
	require.NoError(t, err)

	lines, _ := dev.received()
	assert.Equal(t, []string{"G20G91G0X1", "G20G90G17G54G94F30", "G0X0"}, lines)

	_, err = l.Send(cmd("G0 X1"))
	require.NoError(t, err)
	lines, _ = dev.received()
	assert.Len(t, lines, 4, "restore is sent once")
}

func TestLink_ResetDuringSend(t *testing.T) {
	_, host := newFakeGrbl(t, func(line string) []string {
		return []string{"ALARM:3", "Grbl 1.1f ['$' for help]"}
	})
	l := NewLink(host, time.Second)
	defer l.Close()

	_, err := l.Send(cmd("G0 X1"))
	assert.Error(t, err)
}

func TestLink_Closed(t *testing.T) {
	dev, host := newFakeGrbl(t, nil)
	l := NewLink(host, time.Second)

	dev.conn.Close()
	_, err := l.Send(cmd("G0 X1"))
	assert.Error(t, err)

	assert.NoError(t, l.Close())
	_, err = l.Send(cmd("G0 X1"))
	assert.Error(t, err)
}

func TestParseError(t *testing.T) {
	assert.Equal(t, "grbl error:9 (G-code lock)", parseError("error:9").Error())
	assert.Equal(t, "grbl error:0 (Bad number format)", parseError("error: Bad number format").Error())
	assert.True(t, strings.HasPrefix(parseAlarm("ALARM:2").Error(), "grbl alarm:2"))
}

func TestFindProbe(t *testing.T) {
	res, ok := FindProbe("[MSG:x]\n[PRB:1.000,-2.500,-10.125:1]")
	require.True(t, ok)
	assert.True(t, res.Valid)
	assert.Equal(t, -10.125, res.Z)
	assert.Equal(t, -2.5, res.Y)

	res, ok = FindProbe("[PRB:0.000,0.000,0.000:0]")
	require.True(t, ok)
	assert.False(t, res.Valid)

	_, ok = FindProbe("[PRB:1,2:1]")
	assert.False(t, ok)
	_, ok = FindProbe("")
	assert.False(t, ok)
}
