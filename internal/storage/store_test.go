package storage

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestCreateUserAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateUser(ctx, "alexa", []byte("hash"))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a generated user id")
	}

	user, err := store.GetUserByUsername(ctx, "alexa")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if user == nil || user.ID != id || string(user.PasswordHash) != "hash" {
		t.Fatalf("unexpected user: %+v", user)
	}

	byID, err := store.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID == nil || byID.Username != "alexa" {
		t.Fatalf("unexpected user: %+v", byID)
	}

	missing, err := store.GetUserByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("lookup missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing user, got %+v", missing)
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, "alexa", []byte("h1")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := store.CreateUser(ctx, "alexa", []byte("h2")); err != ErrUserExists {
		t.Fatalf("duplicate create: got %v, want ErrUserExists", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	userID, err := store.CreateUser(ctx, "alexa", []byte("hash"))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	expires := time.Now().Add(time.Hour)
	if err := store.CreateSession(ctx, userID, "tok-1", expires); err != nil {
		t.Fatalf("create session: %v", err)
	}

	session, err := store.GetSession(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session == nil || session.UserID != userID {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Fatalf("session should not be expired yet")
	}

	if err := store.DeleteSession(ctx, "tok-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	gone, err := store.GetSession(ctx, "tok-1")
	if err != nil {
		t.Fatalf("get deleted session: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected nil after delete, got %+v", gone)
	}
}

func TestSeedDirectoryOnlyWhenEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed := []DirectoryEntry{
		{ID: "1", Name: "Jennifer Lisity", Status: "Online"},
		{ID: "2", Name: "Nancy J. Martinez", Status: "Offline"},
	}
	if err := store.SeedDirectory(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// a second seed with different data must not overwrite
	if err := store.SeedDirectory(ctx, []DirectoryEntry{{ID: "9", Name: "Intruder"}}); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	entries, err := store.ListDirectory(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("directory has %d entries, want 2", len(entries))
	}
	if entries[0].Name != "Jennifer Lisity" {
		t.Fatalf("expected name ordering, got %q first", entries[0].Name)
	}
}

func TestAddDirectoryEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := DirectoryEntry{ID: "u9", Name: "Alexa", Status: "Offline", Avatar: "https://i.pravatar.cc/150?u=u9"}
	if err := store.AddDirectoryEntry(ctx, entry); err != nil {
		t.Fatalf("add: %v", err)
	}
	// inserting the same id again keeps the original record
	if err := store.AddDirectoryEntry(ctx, DirectoryEntry{ID: "u9", Name: "Impostor"}); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	entries, err := store.ListDirectory(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Alexa" {
		t.Fatalf("unexpected directory: %+v", entries)
	}
}

func TestMessageLogOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	room := "u1_u2"

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := store.AppendMessage(ctx, Message{
			RoomID:   room,
			SenderID: "u1",
			Content:  string(rune('a' + i)),
			SentAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	// a message in a different room must not leak in
	if err := store.AppendMessage(ctx, Message{RoomID: "u3_u4", SenderID: "u3", Content: "x", SentAt: base}); err != nil {
		t.Fatalf("append other room: %v", err)
	}

	messages, err := store.ListRoomMessages(ctx, room, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("got %d messages, want 5", len(messages))
	}
	if messages[0].Content != "a" || messages[4].Content != "e" {
		t.Fatalf("messages are not oldest first: %q ... %q", messages[0].Content, messages[4].Content)
	}

	limited, err := store.ListRoomMessages(ctx, room, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d messages, want 2", len(limited))
	}
}

func TestConversationUpsertAndListByParticipant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	if err := store.UpsertConversation(ctx, Conversation{RoomID: "u1_u2", LastSenderID: "u1", LastContent: "first", LastSentAt: older}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertConversation(ctx, Conversation{RoomID: "u1_u2", LastSenderID: "u2", LastContent: "second", LastSentAt: newer}); err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	if err := store.UpsertConversation(ctx, Conversation{RoomID: "u2_u9", LastSenderID: "u9", LastContent: "other", LastSentAt: older}); err != nil {
		t.Fatalf("upsert second room: %v", err)
	}
	if err := store.UpsertConversation(ctx, Conversation{RoomID: "u3_u4", LastSenderID: "u3", LastContent: "foreign", LastSentAt: newer}); err != nil {
		t.Fatalf("upsert foreign room: %v", err)
	}

	conversations, err := store.ListConversationsForUser(ctx, "u2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("u2 has %d conversations, want 2", len(conversations))
	}
	// newest first, and the upsert replaced the first write
	if conversations[0].RoomID != "u1_u2" || conversations[0].LastContent != "second" {
		t.Fatalf("unexpected first conversation: %+v", conversations[0])
	}
	if conversations[1].RoomID != "u2_u9" {
		t.Fatalf("unexpected second conversation: %+v", conversations[1])
	}

	// "u" is a prefix of both participants but a member of neither room
	none, err := store.ListConversationsForUser(ctx, "u")
	if err != nil {
		t.Fatalf("list prefix user: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("prefix user matched %d conversations, want 0", len(none))
	}
}

func TestFavoritesAreIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddFavorite(ctx, "u1", "7"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.AddFavorite(ctx, "u1", "7"); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if err := store.AddFavorite(ctx, "u1", "3"); err != nil {
		t.Fatalf("add second: %v", err)
	}

	favorites, err := store.ListFavorites(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(favorites) != 2 {
		t.Fatalf("got %d favorites, want 2", len(favorites))
	}

	if err := store.RemoveFavorite(ctx, "u1", "7"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.RemoveFavorite(ctx, "u1", "7"); err != nil {
		t.Fatalf("re-remove: %v", err)
	}
	favorites, err = store.ListFavorites(ctx, "u1")
	if err != nil {
		t.Fatalf("list after remove: %v", err)
	}
	if len(favorites) != 1 || favorites[0] != "3" {
		t.Fatalf("unexpected favorites: %v", favorites)
	}

	// favorites are per user
	other, err := store.ListFavorites(ctx, "u2")
	if err != nil {
		t.Fatalf("list other user: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("u2 should have no favorites, got %v", other)
	}
}
