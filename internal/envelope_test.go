package internal

import (
	"encoding/json"
	"testing"
)

func TestDeriveRoomIDIsOrderIndependent(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{"u1", "u2", "u1_u2"},
		{"u2", "u1", "u1_u2"},
		{"alexa", "jennifer", "alexa_jennifer"},
		{"jennifer", "alexa", "alexa_jennifer"},
		{"10", "2", "10_2"},
	}
	for _, tc := range cases {
		if got := DeriveRoomID(tc.a, tc.b); got != tc.want {
			t.Errorf("DeriveRoomID(%q, %q) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
		if DeriveRoomID(tc.a, tc.b) != DeriveRoomID(tc.b, tc.a) {
			t.Errorf("DeriveRoomID is not symmetric for %q, %q", tc.a, tc.b)
		}
	}
}

func TestRoomMembers(t *testing.T) {
	a, b, ok := RoomMembers("u1_u2")
	if !ok || a != "u1" || b != "u2" {
		t.Fatalf("RoomMembers(u1_u2) = %q, %q, %v", a, b, ok)
	}
	if _, _, ok := RoomMembers("loner"); ok {
		t.Fatalf("expected failure for id without separator")
	}
	if _, _, ok := RoomMembers("_u2"); ok {
		t.Fatalf("expected failure for empty first participant")
	}
	// user ids containing underscores keep everything after the first
	// separator in the second slot.
	a, b, ok = RoomMembers("u1_u2_extra")
	if !ok || a != "u1" || b != "u2_extra" {
		t.Fatalf("RoomMembers(u1_u2_extra) = %q, %q, %v", a, b, ok)
	}
}

func TestEnvelopeValidate(t *testing.T) {
	valid := Envelope{RoomID: "u1_u2", SenderID: "u1", Content: "hi"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}
	for name, envelope := range map[string]Envelope{
		"missing room":       {SenderID: "u1", Content: "hi"},
		"missing content":    {RoomID: "u1_u2", SenderID: "u1"},
		"whitespace content": {RoomID: "u1_u2", Content: "   "},
	} {
		if err := envelope.Validate(); err != ErrValidation {
			t.Errorf("%s: got %v, want ErrValidation", name, err)
		}
	}
	// sender identity is not validated on the relay path
	anonymous := Envelope{RoomID: "u1_u2", Content: "hi"}
	if err := anonymous.Validate(); err != nil {
		t.Errorf("envelope without sender rejected: %v", err)
	}
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	payload, err := EncodeFrame(EventSendMessage, Envelope{RoomID: "u1_u2", Content: "hi"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Event != EventSendMessage {
		t.Fatalf("event = %q", frame.Event)
	}
	var envelope Envelope
	if err := json.Unmarshal(frame.Data, &envelope); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if envelope.RoomID != "u1_u2" || envelope.Content != "hi" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}
