package internal

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 8192
)

// a session wraps a single live websocket connection. it carries an opaque
// identifier assigned at accept time, a buffered send queue drained by the
// write pump, and the set of rooms it has joined. a session that disconnects
// and dials again is an entirely new session with a new identifier and empty
// membership.
type Session struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	joined   map[string]*Room
	identity *Identity
	server   *Server
}

func newSession(id string, conn *websocket.Conn, server *Server) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, 256),
		joined: make(map[string]*Room),
		server: server,
	}
}

// ID returns the opaque session identifier.
func (session *Session) ID() string {
	return session.id
}

func (session *Session) noteDropped() {
	session.server.metrics.IncDropped()
}

// readPump decodes inbound frames and routes them to the relay operations
// until the transport closes. disconnect is a normal terminal event, not an
// error: the deferred cleanup removes the session from every room it joined
// so membership never leaks across connect/disconnect cycles.
func (session *Session) readPump() {
	defer func() {
		for key := range session.joined {
			session.server.hub.leave(key, session)
		}
		// every membership is gone by now and fan-out holds the room lock
		// while delivering, so nothing can write to the send queue anymore
		// and the write pump may finish.
		close(session.send)
		_ = session.conn.Close()
		if session.identity != nil {
			session.server.presence.Decrement(session.identity.UserID)
		}
		session.server.metrics.DecConn()
		session.server.log.Debug("session.disconnected", "session", session.id)
	}()

	session.conn.SetReadLimit(maxMsgSize)
	_ = session.conn.SetReadDeadline(time.Now().Add(pongWait))
	session.conn.SetPongHandler(func(string) error {
		return session.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := session.conn.ReadMessage()
		if err != nil {
			// normal close or read failure; break and let cleanup run.
			break
		}
		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			session.server.log.Debug("session.bad_frame", "session", session.id, "err", err)
			continue
		}
		session.dispatch(frame)
	}
}

// dispatch routes one decoded frame to its handler. events are processed to
// completion in arrival order on this goroutine, which is what gives a single
// sender FIFO delivery into its room.
func (session *Session) dispatch(frame Frame) {
	switch frame.Event {
	case EventJoinRoom:
		var roomKey string
		if err := json.Unmarshal(frame.Data, &roomKey); err != nil {
			session.server.log.Debug("session.bad_join", "session", session.id, "err", err)
			return
		}
		if err := session.server.handleJoin(session, roomKey); err != nil {
			session.sendError(err)
		}
	case EventSendMessage:
		var envelope Envelope
		if err := json.Unmarshal(frame.Data, &envelope); err != nil {
			session.server.log.Debug("session.bad_envelope", "session", session.id, "err", err)
			return
		}
		if err := session.server.handleSend(session, envelope); err != nil {
			session.sendError(err)
		}
	case EventIdentify:
		var identity Identity
		if err := json.Unmarshal(frame.Data, &identity); err != nil || identity.UserID == "" {
			return
		}
		session.server.handleIdentify(session, identity)
	default:
		session.server.log.Debug("session.unknown_event", "session", session.id, "event", frame.Event)
	}
}

// sendError pushes an error frame to this session only. the relay path for
// well-formed traffic never produces one; these exist for the hardened
// validation and identity checks.
func (session *Session) sendError(err error) {
	payload, encodeErr := EncodeFrame(EventError, errorPayload{Error: err.Error()})
	if encodeErr != nil {
		return
	}
	select {
	case session.send <- payload:
	default:
	}
}

// writePump drains the send queue to the websocket and keeps the connection
// alive with periodic pings. it exits when the queue is closed by readPump's
// cleanup or when a write fails.
func (session *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = session.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-session.send:
			_ = session.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = session.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := session.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = session.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := session.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
