package internal

import "sync"

// the hub is the room registry: it maps room identifiers to live rooms and
// creates or removes them as sessions come and go. membership lives only in
// this process; there is no cross-process sharing of rooms, so running more
// than one relay instance splits the registry. that is a known scalability
// gap in the design, not something this type papers over.
type Hub struct {
	mutex sync.RWMutex
	rooms map[string]*Room
}

// NewHub builds an empty registry ready to serve websocket sessions.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*Room)}
}

// Exists reports whether a room is currently live, without creating it.
func (hub *Hub) Exists(key string) bool {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	_, ok := hub.rooms[key]
	return ok
}

// RoomCount returns the number of live rooms.
func (hub *Hub) RoomCount() int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.rooms)
}

// join subscribes a session to the named room, creating the room on first
// join. lookup, creation, and the membership insert happen under one lock, so
// a concurrent teardown of the same key cannot interleave: the room returned
// is always live and already contains the session.
func (hub *Hub) join(key string, session *Session) *Room {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	room, exists := hub.rooms[key]
	if !exists {
		room = newRoom(key)
		hub.rooms[key] = room
		go room.run()
	}
	room.add(session)
	return room
}

// leave removes a session from the named room and tears the room down once
// the last member is gone. this is the only way a room ceases to exist, and
// it runs under the same lock as join, so a joining session can never be
// handed a stopped room and a leaving pair can never strand a live one.
func (hub *Hub) leave(key string, session *Session) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	room, exists := hub.rooms[key]
	if !exists {
		return
	}
	room.remove(session)
	if room.size() == 0 {
		room.stop()
		delete(hub.rooms, key)
	}
}

func (hub *Hub) getRoom(key string) *Room {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return hub.rooms[key]
}
