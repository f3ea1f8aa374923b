package spjs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, s string) interface{} {
	t.Helper()
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(s), &msg))
	v, err := parseSPJSMessage([]byte(s), msg)
	require.NoError(t, err)
	return v
}

func TestParseSPJSMessage(t *testing.T) {
	assert.Equal(t, &DataFrame{Port: "COM5", Data: "ok\n"}, parse(t, `{"P":"COM5","D":"ok\n"}`))
	assert.Equal(t, &CmdStatus{Cmd: "Complete", ID: "cmd_1"}, parse(t, `{"Cmd":"Complete","Id":"cmd_1","P":"COM5"}`))
	assert.Equal(t, &ErrorMessage{Error: "port busy"}, parse(t, `{"Error":"port busy"}`))

	list, ok := parse(t, `{"SerialPorts":[{"Name":"/dev/ttyACM0","IsOpen":true,"Baud":115200}]}`).(*SerialPortList)
	require.True(t, ok)
	require.Len(t, list.SerialPorts, 1)
	assert.Equal(t, "/dev/ttyACM0", list.SerialPorts[0].Name)
	assert.True(t, list.SerialPorts[0].IsOpen)

	_, err := parseSPJSMessage([]byte(`{"Foo":1}`), map[string]json.RawMessage{"Foo": json.RawMessage("1")})
	assert.Error(t, err)
}

func next(t *testing.T, ch <-chan interface{}) interface{} {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestSPJS(t *testing.T) {
	var upgrader websocket.Upgrader
	recv := make(chan string, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for _, m := range []string{
			`{"SerialPorts":[{"Name":"/dev/ttyACM0"}]}`,
			`list`,
			`{"P":"/dev/ttyACM0","D":"ok\n"}`,
		} {
			ws.WriteMessage(websocket.TextMessage, []byte(m))
		}
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			recv <- string(data)
		}
	}))
	defer srv.Close()

	sp := NewSPJS("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer sp.Close()

	assert.IsType(t, &SerialPortList{}, next(t, sp.Messages()))
	assert.Equal(t, &DataFrame{Port: "/dev/ttyACM0", Data: "ok\n"}, next(t, sp.Messages()), "echo is skipped")

	got := make(map[string]bool)
	require.NoError(t, sp.SendJSON(JSON{Port: "/dev/ttyACM0", Data: []Data{{Data: "G0X1\n", ID: "a"}}}))
	for len(got) < 2 {
		select {
		case s := <-recv:
			got[s] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for writes")
		}
	}
	assert.True(t, got["list"])
	assert.True(t, got[`sendjson {"P":"/dev/ttyACM0","Data":[{"D":"G0X1\n","Id":"a"}]}`])

	require.NoError(t, sp.Close())
	assert.Equal(t, ErrClosed, sp.WriteString("list"))
}
