package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Relay is the small collaborator contract the presentation layer talks to:
// join a room, send an envelope, consume received envelopes. keeping it this
// narrow lets a different backing transport or a managed database be swapped
// in without touching the UI.
type Relay interface {
	Join(roomID string) error
	Send(envelope Envelope) error
	Identify(identity Identity) error
	Receive() <-chan Envelope
	Close() error
}

// wsRelay is the websocket-backed relay client. received envelopes are
// delivered on a buffered channel that closes when the transport does.
type wsRelay struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex
	received   chan Envelope
	closeOnce  sync.Once
}

// DialRelay connects to the relay's websocket endpoint and starts reading.
// wsURL is the full ws:// or wss:// url of the endpoint.
func DialRelay(wsURL string) (Relay, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	relay := &wsRelay{
		conn:     conn,
		received: make(chan Envelope, 64),
	}
	go relay.readLoop()
	return relay, nil
}

func (relay *wsRelay) readLoop() {
	defer close(relay.received)
	for {
		_, payload, err := relay.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		if frame.Event != EventReceiveMessage {
			continue
		}
		var envelope Envelope
		if err := json.Unmarshal(frame.Data, &envelope); err != nil {
			continue
		}
		select {
		case relay.received <- envelope:
		default:
			// the UI stopped draining; best-effort semantics apply on the
			// client side too.
		}
	}
}

func (relay *wsRelay) writeFrame(event string, payload interface{}) error {
	data, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	relay.writeMutex.Lock()
	defer relay.writeMutex.Unlock()
	return relay.conn.WriteMessage(websocket.TextMessage, data)
}

func (relay *wsRelay) Join(roomID string) error {
	if roomID == "" {
		return errors.New("room id is required")
	}
	return relay.writeFrame(EventJoinRoom, roomID)
}

func (relay *wsRelay) Send(envelope Envelope) error {
	if err := envelope.Validate(); err != nil {
		return err
	}
	return relay.writeFrame(EventSendMessage, envelope)
}

func (relay *wsRelay) Identify(identity Identity) error {
	return relay.writeFrame(EventIdentify, identity)
}

func (relay *wsRelay) Receive() <-chan Envelope {
	return relay.received
}

func (relay *wsRelay) Close() error {
	var err error
	relay.closeOnce.Do(func() {
		relay.writeMutex.Lock()
		_ = relay.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		relay.writeMutex.Unlock()
		err = relay.conn.Close()
	})
	return err
}
