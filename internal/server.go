package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pairchat/internal/storage"
)

// Options carries the relay behavior knobs the server needs from the
// configuration layer.
type Options struct {
	// AllowedOrigins restricts which origins may open websocket connections
	// and is mirrored by the CORS layer on the HTTP side. An entry of "*"
	// allows everything.
	AllowedOrigins []string
	// TimestampSource selects whose clock stamps an envelope: "server"
	// overwrites the timestamp at relay time, "client" trusts the value the
	// sender supplied. The two are not equivalent under clock skew, so the
	// choice is explicit configuration rather than silently picked.
	TimestampSource string
	// PersistMessages enables the database-backed profile: relayed envelopes
	// are also appended to the message log and the per-room conversation
	// record is upserted. The pure relay profile leaves this off.
	PersistMessages bool
	// RequireIdentity gates joins and sends on a declared identity. Off by
	// default: the open relay is wire compatible with clients that never
	// identify, and the missing access control is a documented gap.
	RequireIdentity bool
}

// TimestampSource values.
const (
	TimestampServer = "server"
	TimestampClient = "client"
)

// Server owns the relay core and the HTTP API: the room registry, the
// session lifecycle, the directory, and the optional persistence profile.
type Server struct {
	log         *slog.Logger
	hub         *Hub
	store       *storage.Store
	presence    *PresenceTracker
	metrics     *Metrics
	authLimiter *RateLimiter
	opts        Options
	upgrader    websocket.Upgrader
	tokenTTL    time.Duration
}

// NewServer wires the relay, presence tracker, metrics, and store together.
// store may be nil when the server runs as a pure relay without persistence
// or accounts.
func NewServer(log *slog.Logger, store *storage.Store, metrics *Metrics, opts Options) *Server {
	if opts.TimestampSource == "" {
		opts.TimestampSource = TimestampServer
	}
	server := &Server{
		log:         log,
		hub:         NewHub(),
		store:       store,
		presence:    NewPresenceTracker(),
		metrics:     metrics,
		authLimiter: NewRateLimiter(10, time.Minute),
		opts:        opts,
		tokenTTL:    24 * time.Hour,
	}
	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), opts.AllowedOrigins)
		},
	}
	return server
}

// Hub exposes the room registry for the existence probe and tests.
func (s *Server) Hub() *Hub {
	return s.hub
}

// originAllowed applies the configured allowlist to a websocket upgrade.
// requests without an Origin header (non-browser clients) are accepted.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, candidate := range allowed {
		if candidate == "*" || strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}

// ServeWS upgrades the request to a websocket, assigns the connection a fresh
// session identifier, and starts its pumps. everything after the upgrade is
// event driven: join_room and send_message arrive as frames on this
// connection.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("ws.upgrade", "err", err)
		return
	}
	session := newSession(uuid.NewString(), conn, s)
	s.metrics.IncConn()
	s.log.Debug("session.connected", "session", session.id)

	go session.writePump()
	go session.readPump()
}

// handleJoin subscribes the session to the named room. joining is idempotent:
// a session already in the room receives each later broadcast exactly once no
// matter how many times it re-joined. there is no response event; membership
// is observable only through subsequent delivery.
func (s *Server) handleJoin(session *Session, roomKey string) error {
	if strings.TrimSpace(roomKey) == "" {
		return ErrValidation
	}
	if s.opts.RequireIdentity {
		if err := s.authorizeJoin(session, roomKey); err != nil {
			return err
		}
	}
	if _, already := session.joined[roomKey]; already {
		return nil
	}
	room := s.hub.join(roomKey, session)
	session.joined[roomKey] = room
	s.metrics.IncJoin()
	s.log.Debug("session.joined", "session", session.id, "room", roomKey)
	return nil
}

// authorizeJoin only runs in identity-required mode: the session must have
// declared an identity and the room id must name that identity as one of its
// two participants.
func (s *Server) authorizeJoin(session *Session, roomKey string) error {
	if session.identity == nil {
		return ErrUnauthorized
	}
	a, b, ok := RoomMembers(roomKey)
	if !ok || (a != session.identity.UserID && b != session.identity.UserID) {
		return ErrUnauthorized
	}
	return nil
}

// handleSend rebroadcasts the envelope to every session currently in its room
// except the sender. there is no acknowledgment and no relay-side ordering
// guarantee across senders; per-sender order holds because each connection's
// events are processed sequentially. sending to a room with no other members
// is not an error; the envelope simply reaches nobody.
func (s *Server) handleSend(session *Session, envelope Envelope) error {
	if err := envelope.Validate(); err != nil {
		s.metrics.IncRejected()
		s.log.Debug("relay.rejected", "session", session.id, "err", err)
		return err
	}
	if s.opts.RequireIdentity {
		if session.identity == nil || envelope.SenderID != session.identity.UserID {
			return ErrUnauthorized
		}
	}
	switch s.opts.TimestampSource {
	case TimestampClient:
		if envelope.Timestamp == "" {
			envelope.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}
	default:
		envelope.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if s.opts.PersistMessages && s.store != nil {
		s.persistEnvelope(envelope)
	}

	payload, err := EncodeFrame(EventReceiveMessage, envelope)
	if err != nil {
		return err
	}
	room := s.hub.getRoom(envelope.RoomID)
	if room == nil {
		// nobody ever joined this room in this process; nothing to deliver.
		return nil
	}
	select {
	case room.broadcasts <- broadcast{from: session, payload: payload}:
		s.metrics.IncRelayed()
	case <-room.quit:
		// the room emptied out and was torn down between lookup and send;
		// nothing to deliver, and not an error.
	}
	return nil
}

// persistEnvelope mirrors the managed-database profile: append to the room's
// message log and update the conversation's most recent message. failures are
// logged, never surfaced to the sender, so the relay path stays fire and
// forget.
func (s *Server) persistEnvelope(envelope Envelope) {
	sentAt := parseEnvelopeTime(envelope.Timestamp)
	record := storage.Message{
		RoomID:     envelope.RoomID,
		SenderID:   envelope.SenderID,
		SenderName: envelope.SenderName,
		Content:    envelope.Content,
		Avatar:     envelope.Avatar,
		SentAt:     sentAt,
	}
	ctx, cancel := storageContext()
	defer cancel()
	if err := s.store.AppendMessage(ctx, record); err != nil {
		s.log.Error("store.append_message", "room", envelope.RoomID, "err", err)
		return
	}
	conversation := storage.Conversation{
		RoomID:       envelope.RoomID,
		LastSenderID: envelope.SenderID,
		LastContent:  envelope.Content,
		LastSentAt:   sentAt,
	}
	if err := s.store.UpsertConversation(ctx, conversation); err != nil {
		s.log.Error("store.upsert_conversation", "room", envelope.RoomID, "err", err)
	}
}

// storageContext bounds store work triggered from the relay path so a stuck
// database cannot stall a session's read pump indefinitely.
func storageContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func parseEnvelopeTime(value string) time.Time {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return time.Now().UTC()
}

// handleIdentify records the session's declared identity and marks the user
// online for the directory's status field. the relay does not verify the
// claim; identity is advisory outside identity-required mode.
func (s *Server) handleIdentify(session *Session, identity Identity) {
	if session.identity != nil {
		if session.identity.UserID == identity.UserID {
			session.identity = &identity
			return
		}
		s.presence.Decrement(session.identity.UserID)
	}
	session.identity = &identity
	s.presence.Increment(identity.UserID)
	s.log.Debug("session.identified", "session", session.id, "user", identity.UserID)
}

func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
