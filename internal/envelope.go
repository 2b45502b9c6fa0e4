package internal

import (
	"encoding/json"
	"errors"
	"strings"
)

// the names of the events exchanged over a websocket connection. clients emit
// join_room and send_message; the server emits receive_message to everyone in
// the room except the sender.
const (
	EventJoinRoom       = "join_room"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventIdentify       = "identify"
	EventError          = "error"
)

// ErrValidation is returned when an envelope is missing the fields the relay
// needs to route it (room id and content).
var ErrValidation = errors.New("invalid message envelope")

// ErrUnauthorized is returned in identity-required mode when a session tries
// to join a room or impersonate a sender it has no claim to.
var ErrUnauthorized = errors.New("unauthorized")

// an envelope is the unit carried by send_message and receive_message. there
// is no message id, sequence number, or delivery receipt; the relay forwards
// it as a single opaque chat message.
type Envelope struct {
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	Avatar     string `json:"avatar"`
}

// Validate rejects envelopes the relay cannot route. only roomId and content
// are checked so well-formed traffic stays wire compatible; sender identity
// is deliberately not verified here.
func (envelope Envelope) Validate() error {
	if strings.TrimSpace(envelope.RoomID) == "" || strings.TrimSpace(envelope.Content) == "" {
		return ErrValidation
	}
	return nil
}

// a frame wraps every websocket payload in both directions with an event name
// so a single connection can carry joins, messages, and errors.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Identity is the optional self-declaration a client can send after
// connecting. it drives presence and, in identity-required mode, gates which
// rooms the session may join.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// EncodeFrame marshals an event and its payload into a wire frame.
func EncodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// DeriveRoomID builds the shared room identifier for a two-person chat by
// joining the participant ids with an underscore, lexicographically smaller
// id first. both sides compute the same value with no negotiation step. the
// scheme assumes exactly two participants; group chat would need a different
// naming and membership model.
func DeriveRoomID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + "_" + userB
}

// RoomMembers splits a derived room id back into its two participant ids.
// the second return is false for identifiers that were not produced by
// DeriveRoomID.
func RoomMembers(roomID string) (string, string, bool) {
	parts := strings.SplitN(roomID, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
