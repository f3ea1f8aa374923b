// Package spjs is a client for serial-port-json-server, which exposes serial
// ports over a websocket.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("spjs: closed")

const reconnectDelay = 3 * time.Second

type SPJS struct {
	url    string
	dialer *websocket.Dialer

	outgoing  chan message
	incomming chan interface{}

	done      chan struct{}
	closeOnce sync.Once
}

type message struct {
	done    chan struct{}
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name                      string
	Friendly                  string
	SerialNumber              string
	DeviceClass               string
	IsOpen                    bool
	IsPrimary                 bool
	RelatedNames              []string
	Baud                      int
	BufferAlgorithm           string
	AvailableBufferAlgorithms []string
	Ver                       float64
	USBVID                    string
	USBPID                    string
	FeedRateOverride          float64
}

// NewSPJS connects to the server at url (e.g. `ws://localhost:8989/ws`) and
// keeps reconnecting until Close is called.
func NewSPJS(url string) *SPJS {
	sp := &SPJS{
		url:       url,
		dialer:    websocket.DefaultDialer,
		outgoing:  make(chan message, 1000),
		incomming: make(chan interface{}, 1000),
		done:      make(chan struct{}),
	}

	go sp.loop()

	return sp
}

// Messages returns decoded server messages: *DataFrame, *CmdStatus,
// *SerialPortList or *ErrorMessage.
func (sp *SPJS) Messages() <-chan interface{} {
	return sp.incomming
}

// Close disconnects and stops reconnecting.
func (sp *SPJS) Close() error {
	sp.closeOnce.Do(func() { close(sp.done) })
	return nil
}

func parseSPJSMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Cmd", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (sp *SPJS) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-sp.done:
			default:
				log.Println("ERROR: read:", err)
			}
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			log.Println("ERROR: read:", err)
			continue
		}
		val, err := parseSPJSMessage(data, msg)
		if err != nil {
			log.Println("ERROR: parse:", err)
			continue
		}
		select {
		case sp.incomming <- val:
		case <-sp.done:
			return
		}
	}
}

func (sp *SPJS) loop() {
	var nextUp message

reconnect:
	for {
		select {
		case <-sp.done:
			return
		default:
		}

		log.Println("Connecting to", sp.url)
		ws, _, err := sp.dialer.Dial(sp.url, nil)
		if err != nil {
			log.Println("ERROR: connect:", err)
			select {
			case <-time.After(reconnectDelay):
			case <-sp.done:
				return
			}
			continue
		}
		log.Println("Connected.")
		ch := make(chan struct{})
		go sp.readLoop(ws, ch)
		go sp.WriteString("list") // refresh list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					log.Println("ERROR: send:", err)
					ws.Close()
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-ch:
				ws.Close()
				continue reconnect
			case <-sp.done:
				ws.Close()
				<-ch
				return
			case nextUp = <-sp.outgoing:
			}
		}
	}
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

func (sp *SPJS) send(payload []byte) error {
	select {
	case <-sp.done:
		return ErrClosed
	default:
	}

	ch := make(chan struct{})
	select {
	case sp.outgoing <- message{done: ch, payload: payload}:
	case <-sp.done:
		return ErrClosed
	}
	select {
	case <-ch:
		return nil
	case <-sp.done:
		return ErrClosed
	}
}

// SendJSON queues lines through the port's buffer algorithm. It returns once
// the request was written to the server.
func (sp *SPJS) SendJSON(v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		// shouldn't happen since we control everything that's sent out
		log.Panicln("ERROR: sendjson (marshal):", err)
	}

	return sp.send(append([]byte("sendjson "), data...))
}

// WriteString sends a raw server command like `list` or `open ...`.
func (sp *SPJS) WriteString(data string) error {
	return sp.send([]byte(data))
}
