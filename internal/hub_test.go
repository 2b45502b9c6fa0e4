package internal

import (
	"sync"
	"testing"
)

func newBareSession(id string) *Session {
	return &Session{
		id:     id,
		send:   make(chan []byte, 256),
		joined: make(map[string]*Room),
	}
}

// a join that races the last member's departure must either land on the
// existing room or create a fresh one; it must never be handed a room whose
// run loop has already been stopped, and the registry must never lose a room
// that still has a member.
func TestJoinRacesWithLastMemberLeaving(t *testing.T) {
	const roomKey = "u1_u2"
	hub := NewHub()

	for i := 0; i < 500; i++ {
		leaver := newBareSession("leaver")
		joiner := newBareSession("joiner")
		hub.join(roomKey, leaver)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.leave(roomKey, leaver)
		}()
		go func() {
			defer wg.Done()
			hub.join(roomKey, joiner)
		}()
		wg.Wait()

		room := hub.getRoom(roomKey)
		if room == nil {
			t.Fatalf("iteration %d: room missing while a member remains", i)
		}
		if room.size() != 1 {
			t.Fatalf("iteration %d: room has %d members, want 1", i, room.size())
		}
		select {
		case <-room.quit:
			t.Fatalf("iteration %d: live room has a stopped run loop", i)
		default:
		}

		hub.leave(roomKey, joiner)
		if hub.Exists(roomKey) {
			t.Fatalf("iteration %d: empty room was not deleted", i)
		}
	}
}

func TestLeaveUnknownRoomIsANoOp(t *testing.T) {
	hub := NewHub()
	hub.leave("never_joined", newBareSession("s"))
	if hub.RoomCount() != 0 {
		t.Fatalf("room count = %d, want 0", hub.RoomCount())
	}
}

func TestJoinIsIdempotentPerSession(t *testing.T) {
	hub := NewHub()
	session := newBareSession("s")
	first := hub.join("u1_u2", session)
	second := hub.join("u1_u2", session)
	if first != second {
		t.Fatalf("re-join returned a different room")
	}
	if first.size() != 1 {
		t.Fatalf("room has %d members, want 1", first.size())
	}
	hub.leave("u1_u2", session)
	if hub.Exists("u1_u2") {
		t.Fatalf("room should be gone after the only member left")
	}
}
