package grbl

import (
	"strconv"
	"strings"
)

// grbl 1.1 error codes
var errorText = map[int]string{
	1:  "expected command letter",
	2:  "bad number format",
	3:  "invalid statement",
	4:  "value < 0",
	5:  "setting disabled",
	6:  "value < 3 usec",
	7:  "EEPROM read fail",
	8:  "not idle",
	9:  "G-code lock",
	10: "homing not enabled",
	11: "line overflow",
	12: "step rate > 30kHz",
	13: "check door",
	14: "line length exceeded",
	15: "travel exceeded",
	16: "invalid jog command",
	17: "setting disabled",
	20: "unsupported command",
	21: "modal group violation",
	22: "undefined feed rate",
	23: "invalid gcode ID:23",
	24: "invalid gcode ID:24",
	25: "invalid gcode ID:25",
	26: "invalid gcode ID:26",
	27: "invalid gcode ID:27",
	28: "invalid gcode ID:28",
	29: "invalid gcode ID:29",
	30: "invalid gcode ID:30",
	31: "invalid gcode ID:31",
	32: "invalid gcode ID:32",
	33: "invalid gcode ID:33",
	34: "invalid gcode ID:34",
	35: "invalid gcode ID:35",
	36: "invalid gcode ID:36",
	37: "invalid gcode ID:37",
	38: "invalid gcode ID:38",
}

var alarmText = map[int]string{
	1: "hard limit",
	2: "soft limit",
	3: "abort during cycle",
	4: "probe fail: initial state",
	5: "probe fail: no contact",
	6: "homing fail: reset",
	7: "homing fail: door",
	8: "homing fail: pull off",
	9: "homing fail: approach",
}

// DeviceError is an `error:N` or `ALARM:N` report from the controller.
type DeviceError struct {
	Alarm bool
	Code  int
	Text  string
}

func (e *DeviceError) Error() string {
	kind := "error"
	if e.Alarm {
		kind = "alarm"
	}
	if e.Text == "" {
		return "grbl " + kind + ":" + strconv.Itoa(e.Code)
	}
	return "grbl " + kind + ":" + strconv.Itoa(e.Code) + " (" + e.Text + ")"
}

func parseCode(line, prefix string, table map[int]string) (int, string) {
	s := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	code, err := strconv.Atoi(s)
	if err != nil {
		// grbl 0.9 prints the message instead of a code
		return 0, s
	}
	return code, table[code]
}

func parseError(line string) error {
	code, text := parseCode(line, "error:", errorText)
	return &DeviceError{Code: code, Text: text}
}

func parseAlarm(line string) error {
	code, text := parseCode(line, "ALARM:", alarmText)
	return &DeviceError{Alarm: true, Code: code, Text: text}
}
