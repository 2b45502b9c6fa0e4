package internal

import "sync"

// a broadcast pairs an outbound payload with the session that produced it so
// the fan-out loop can exclude the sender from delivery. self-echo suppression
// is enforced here on the server rather than left to client-side filtering by
// sender id, which breaks down when several devices share one identity.
type broadcast struct {
	from    *Session
	payload []byte
}

// a room is one named broadcast group. membership is exactly the set of
// currently subscribed sessions; nothing about it is persisted, so a session
// that joins after a message was relayed never sees that message through the
// relay. membership is mutated only by the hub, under the hub lock, so a join
// can never land on a room that has already been torn down.
type Room struct {
	key        string
	sessions   map[*Session]bool
	broadcasts chan broadcast
	quit       chan struct{}
	mutex      sync.RWMutex
}

func newRoom(key string) *Room {
	return &Room{
		key:        key,
		sessions:   make(map[*Session]bool),
		broadcasts: make(chan broadcast, 256),
		quit:       make(chan struct{}),
	}
}

func (room *Room) size() int {
	room.mutex.RLock()
	defer room.mutex.RUnlock()
	return len(room.sessions)
}

// add subscribes a session. adding an already present session is a no-op,
// which keeps repeated joins from ever duplicating delivery.
func (room *Room) add(session *Session) {
	room.mutex.Lock()
	room.sessions[session] = true
	room.mutex.Unlock()
}

func (room *Room) remove(session *Session) {
	room.mutex.Lock()
	delete(room.sessions, session)
	room.mutex.Unlock()
}

func (room *Room) stop() {
	close(room.quit)
}

// the run loop owns fan-out for this room. it holds the membership lock while
// delivering, so a session removed by the hub can never be handed a payload
// after its removal has returned.
func (room *Room) run() {
	for {
		select {
		case outbound := <-room.broadcasts:
			room.mutex.Lock()
			for session := range room.sessions {
				if session == outbound.from {
					continue
				}
				select {
				case session.send <- outbound.payload:
				default:
					// this session is too slow to drain its buffer; delivery
					// is best effort with no backpressure, so we drop the
					// payload for it and move on.
					session.noteDropped()
				}
			}
			room.mutex.Unlock()
		case <-room.quit:
			return
		}
	}
}
