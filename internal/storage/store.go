package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// Store wraps the SQLite handle and exposes the persistence surface the
// server uses: accounts, login sessions, the contact directory, the per-room
// message log, conversation summaries, and favorites.
type Store struct {
	db *sql.DB
}

// User represents a row in the users table. IDs are opaque strings so they
// can flow straight into room identifiers and envelopes.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// LoginSession captures a persisted bearer token.
type LoginSession struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// DirectoryEntry is one contact record served by GET /api/users.
type DirectoryEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Avatar      string `json:"avatar"`
	LastMessage string `json:"lastMessage"`
}

// Message is one append-only row in a room's message log.
type Message struct {
	ID         int64
	RoomID     string
	SenderID   string
	SenderName string
	Content    string
	Avatar     string
	SentAt     time.Time
}

// Conversation is the last-write-wins "most recent message per room" record.
type Conversation struct {
	RoomID       string
	LastSenderID string
	LastContent  string
	LastSentAt   time.Time
}

// ErrUserExists is returned when attempting to insert a duplicate username.
var ErrUserExists = errors.New("user already exists")

// NewStore initializes the SQLite database at the provided path. Call Close
// when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "pairchat.db"
	}
	dsn := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS directory (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			avatar TEXT NOT NULL DEFAULT '',
			last_message TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			sent_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, id);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			room_id TEXT PRIMARY KEY,
			last_sender_id TEXT NOT NULL,
			last_content TEXT NOT NULL,
			last_sent_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS favorites (
			user_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, contact_id)
		);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateUser inserts a new user with a fresh id. ErrUserExists is returned on
// username conflicts.
func (s *Store) CreateUser(ctx context.Context, username string, passwordHash []byte) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, username, password_hash) VALUES(?, ?, ?)`,
		id, username, passwordHash)
	if err != nil {
		if isConstraintError(err) {
			return "", ErrUserExists
		}
		return "", err
	}
	return id, nil
}

// GetUserByUsername fetches a user by username. A missing user is (nil, nil).
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// GetUserByID fetches a user by id. A missing user is (nil, nil).
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CreateSession persists a login token for the user.
func (s *Store) CreateSession(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(token, user_id, expires_at) VALUES(?, ?, ?)`,
		token, userID, expiresAt.UTC())
	return err
}

// GetSession fetches a login session by token. A missing session is (nil, nil).
func (s *Store) GetSession(ctx context.Context, token string) (*LoginSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`, token)
	var session LoginSession
	if err := row.Scan(&session.Token, &session.UserID, &session.ExpiresAt, &session.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a login token.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// SeedDirectory inserts the provided entries only when the directory is
// empty, so a fresh deployment serves the fixed contact list and later edits
// survive restarts.
func (s *Store) SeedDirectory(ctx context.Context, entries []DirectoryEntry) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM directory`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, entry := range entries {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO directory(id, name, status, avatar, last_message) VALUES(?, ?, ?, ?, ?)`,
			entry.ID, entry.Name, entry.Status, entry.Avatar, entry.LastMessage); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddDirectoryEntry inserts one contact record; an entry with the same id is
// left untouched.
func (s *Store) AddDirectoryEntry(ctx context.Context, entry DirectoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO directory(id, name, status, avatar, last_message)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		entry.ID, entry.Name, entry.Status, entry.Avatar, entry.LastMessage)
	return err
}

// ListDirectory returns all contact records ordered by name.
func (s *Store) ListDirectory(ctx context.Context) ([]DirectoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, avatar, last_message FROM directory ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []DirectoryEntry
	for rows.Next() {
		var entry DirectoryEntry
		if err := rows.Scan(&entry.ID, &entry.Name, &entry.Status, &entry.Avatar, &entry.LastMessage); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AppendMessage adds one message to the room's log.
func (s *Store) AppendMessage(ctx context.Context, message Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(room_id, sender_id, sender_name, content, avatar, sent_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		message.RoomID, message.SenderID, message.SenderName, message.Content, message.Avatar, message.SentAt.UTC())
	return err
}

// ListRoomMessages returns up to limit messages for a room, oldest first.
func (s *Store) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, sender_name, content, avatar, sent_at
		 FROM messages WHERE room_id = ? ORDER BY id LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []Message
	for rows.Next() {
		var message Message
		if err := rows.Scan(&message.ID, &message.RoomID, &message.SenderID, &message.SenderName,
			&message.Content, &message.Avatar, &message.SentAt); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

// UpsertConversation records the most recent message for a room,
// last write wins.
func (s *Store) UpsertConversation(ctx context.Context, conversation Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations(room_id, last_sender_id, last_content, last_sent_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET
			last_sender_id = excluded.last_sender_id,
			last_content = excluded.last_content,
			last_sent_at = excluded.last_sent_at`,
		conversation.RoomID, conversation.LastSenderID, conversation.LastContent, conversation.LastSentAt.UTC())
	return err
}

// ListConversationsForUser returns the conversation summaries for every room
// the user participates in, most recent first. Pair room ids embed both
// participant ids, so the user's rooms are the ones with their id on either
// side of the separator.
func (s *Store) ListConversationsForUser(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, last_sender_id, last_content, last_sent_at
		 FROM conversations
		 WHERE room_id LIKE ? ESCAPE '\' OR room_id LIKE ? ESCAPE '\'
		 ORDER BY last_sent_at DESC`,
		userID+`\_%`, `%\_`+userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var conversations []Conversation
	for rows.Next() {
		var conversation Conversation
		if err := rows.Scan(&conversation.RoomID, &conversation.LastSenderID,
			&conversation.LastContent, &conversation.LastSentAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}
	return conversations, rows.Err()
}

// AddFavorite marks a contact as a favorite for the user. Adding twice is a
// no-op.
func (s *Store) AddFavorite(ctx context.Context, userID, contactID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO favorites(user_id, contact_id) VALUES(?, ?)`,
		userID, contactID)
	return err
}

// RemoveFavorite clears a favorite mark; removing a non-favorite is a no-op.
func (s *Store) RemoveFavorite(ctx context.Context, userID, contactID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND contact_id = ?`,
		userID, contactID)
	return err
}

// ListFavorites returns the contact ids the user marked, oldest first.
func (s *Store) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT contact_id FROM favorites WHERE user_id = ? ORDER BY created_at, contact_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var contacts []string
	for rows.Next() {
		var contact string
		if err := rows.Scan(&contact); err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqliteConstraintCode
	}
	return false
}
