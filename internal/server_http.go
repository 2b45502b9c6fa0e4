package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"pairchat/internal/storage"
)

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type messageDTO struct {
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	Avatar     string `json:"avatar"`
}

type conversationDTO struct {
	RoomID       string `json:"roomId"`
	LastSenderID string `json:"lastSenderId"`
	LastMessage  string `json:"lastMessage"`
	Timestamp    string `json:"timestamp"`
}

type favoritesResponse struct {
	Favorites []string `json:"favorites"`
}

type authContext struct {
	Token    string
	UserID   string
	Username string
}

// SeedDirectory is the fixed contact list a fresh deployment serves from
// GET /api/users before anyone edits the directory.
func SeedDirectory() []storage.DirectoryEntry {
	return []storage.DirectoryEntry{
		{ID: "1", Name: "Jennifer Lisity", Status: "Active Now", Avatar: "https://i.pravatar.cc/150?img=1", LastMessage: "Said one, let. Morning them, said. So were..."},
		{ID: "2", Name: "Nancy J. Martinez", Status: "Online", Avatar: "https://i.pravatar.cc/150?img=2", LastMessage: "Hey Jennifer, I just saw your message right now..."},
		{ID: "3", Name: "Helen Pool", Status: "1h ago", Avatar: "https://i.pravatar.cc/150?img=3", LastMessage: "abundantly be fruitful morning moveth hath..."},
		{ID: "4", Name: "Marcel Rubio", Status: "Active Now", Avatar: "https://i.pravatar.cc/150?img=4", LastMessage: "Brings living great. Lesser, brought the..."},
		{ID: "5", Name: "Frances J. Royter", Status: "Online", Avatar: "https://i.pravatar.cc/150?img=5", LastMessage: "his after the cattle an he form... "},
		{ID: "6", Name: "David Lee", Status: "Offline", Avatar: "https://i.pravatar.cc/150?img=6", LastMessage: "See you at the meeting."},
		{ID: "7", Name: "Maria Garcia", Status: "Active Now", Avatar: "https://i.pravatar.cc/150?img=7", LastMessage: "Got the files, thanks!"},
		{ID: "8", Name: "Chris Evans", Status: "2h ago", Avatar: "https://i.pravatar.cc/150?img=8", LastMessage: "On my way."},
		{ID: "9", Name: "Sophie Turner", Status: "Online", Avatar: "https://i.pravatar.cc/150?img=9", LastMessage: "That sounds great!"},
		{ID: "10", Name: "Ken Watanabe", Status: "Offline", Avatar: "https://i.pravatar.cc/150?img=11", LastMessage: "Please review the document."},
		{ID: "11", Name: "Aisha Khan", Status: "Active Now", Avatar: "https://i.pravatar.cc/150?img=12", LastMessage: "I'll call you back."},
	}
}

// HandleUsers serves the contact directory as a plain JSON array. The stored
// status is overridden with a live one for users with an identified session.
func (s *Server) HandleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	entries := SeedDirectory()
	if s.store != nil {
		stored, err := s.store.ListDirectory(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if len(stored) > 0 {
			entries = stored
		}
	}
	for i := range entries {
		if s.presence.Online(entries[i].ID) {
			entries[i].Status = "Active Now"
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.authLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	password := strings.TrimSpace(req.Password)
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, errors.New("username and password are required"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	userID, err := s.store.CreateUser(r.Context(), username, hash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			writeError(w, http.StatusConflict, errors.New("username already taken"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// a fresh account becomes a contact everyone can pick from the directory.
	entry := storage.DirectoryEntry{
		ID:     userID,
		Name:   username,
		Status: "Offline",
		Avatar: "https://i.pravatar.cc/150?u=" + userID,
	}
	if err := s.store.AddDirectoryEntry(r.Context(), entry); err != nil {
		s.log.Error("store.add_directory_entry", "user", userID, "err", err)
	}
	s.metrics.IncSignup()
	writeJSON(w, http.StatusCreated, map[string]string{"userId": userID, "username": username})
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.authLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	password := strings.TrimSpace(req.Password)
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, errors.New("username and password are required"))
		return
	}
	user, err := s.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}
	token := uuid.NewString()
	expiresAt := time.Now().Add(s.tokenTTL)
	if err := s.store.CreateSession(r.Context(), user.ID, token, expiresAt); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.IncLogin()
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		ExpiresAt: expiresAt,
	})
}

func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	if err := s.store.DeleteSession(r.Context(), authCtx.Token); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRoomExists probes for a live room without creating it.
func (s *Server) HandleRoomExists(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	if s.hub.Exists(room) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}

// HandleRoomMessages returns the persisted history of a room, oldest first.
// The relay itself never replays history; this surface exists only in the
// database-backed profile and is how a client backfills a chat window.
func (s *Server) HandleRoomMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	roomID := r.PathValue("room")
	if roomID == "" {
		writeError(w, http.StatusBadRequest, errors.New("room id required"))
		return
	}
	// in identity-required mode history is as private as the relay itself:
	// only an authenticated participant of the pair room may read it.
	if s.opts.RequireIdentity {
		authCtx, err := s.authenticateRequest(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		a, b, ok := RoomMembers(roomID)
		if !ok || (a != authCtx.UserID && b != authCtx.UserID) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
	}
	messages, err := s.store.ListRoomMessages(r.Context(), roomID, 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]messageDTO, 0, len(messages))
	for _, message := range messages {
		out = append(out, messageDTO{
			RoomID:     message.RoomID,
			SenderID:   message.SenderID,
			SenderName: message.SenderName,
			Content:    message.Content,
			Timestamp:  message.SentAt.UTC().Format(time.RFC3339),
			Avatar:     message.Avatar,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleConversations lists the authenticated user's rooms with their most
// recent message, newest first.
func (s *Server) HandleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	conversations, err := s.store.ListConversationsForUser(r.Context(), authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]conversationDTO, 0, len(conversations))
	for _, conversation := range conversations {
		out = append(out, conversationDTO{
			RoomID:       conversation.RoomID,
			LastSenderID: conversation.LastSenderID,
			LastMessage:  conversation.LastContent,
			Timestamp:    conversation.LastSentAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleFavorites lists the authenticated user's favorite contacts.
func (s *Server) HandleFavorites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	favorites, err := s.store.ListFavorites(r.Context(), authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if favorites == nil {
		favorites = []string{}
	}
	writeJSON(w, http.StatusOK, favoritesResponse{Favorites: favorites})
}

// HandleFavorite adds or removes one favorite contact for the authenticated
// user. Both operations are idempotent, matching an atomic array add/remove.
func (s *Server) HandleFavorite(w http.ResponseWriter, r *http.Request) {
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	contactID := strings.TrimSpace(r.PathValue("contact"))
	if contactID == "" {
		writeError(w, http.StatusBadRequest, errors.New("contact id required"))
		return
	}
	switch r.Method {
	case http.MethodPut:
		err = s.store.AddFavorite(r.Context(), authCtx.UserID, contactID)
	case http.MethodDelete:
		err = s.store.RemoveFavorite(r.Context(), authCtx.UserID, contactID)
	default:
		methodNotAllowed(w, http.MethodPut)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authenticateRequest resolves the bearer token to a live login session.
func (s *Server) authenticateRequest(r *http.Request) (*authContext, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, ErrUnauthorized
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || s.store == nil {
		return nil, ErrUnauthorized
	}
	session, err := s.store.GetSession(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if session == nil || time.Now().After(session.ExpiresAt) {
		return nil, ErrUnauthorized
	}
	user, err := s.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthorized
	}
	return &authContext{Token: token, UserID: user.ID, Username: user.Username}, nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrUnauthorized) {
		status = http.StatusUnauthorized
	}
	http.Error(w, http.StatusText(status), status)
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
