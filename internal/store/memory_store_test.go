package store

import (
	"testing"
	"time"

	"taxchat/pkg/domain"
)

func seedUser(t *testing.T, s Store, id, phone string, createdAt time.Time) domain.User {
	t.Helper()
	user := domain.User{ID: id, Name: "User " + id, Phone: phone, CreatedAt: createdAt}
	if err := s.SaveUser(user); err != nil {
		t.Fatalf("save user %s: %v", id, err)
	}
	return user
}

func TestMemoryStoreUserLookups(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	seedUser(t, s, "u-1", "+41791234567", now)

	if _, found, _ := s.GetUserByID("u-1"); !found {
		t.Fatalf("expected user by id")
	}
	if _, found, _ := s.GetUserByPhone("+41791234567"); !found {
		t.Fatalf("expected user by phone")
	}
	if _, found, _ := s.GetUserByPhone("+41799999999"); found {
		t.Fatalf("did not expect user for unknown phone")
	}
}

func TestMemoryStoreSaveUserUpsert(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	user := seedUser(t, s, "u-1", "+41791234567", now)

	user.Name = "Renamed"
	if err := s.SaveUser(user); err != nil {
		t.Fatalf("resave user: %v", err)
	}
	got, _, _ := s.GetUserByID("u-1")
	if got.Name != "Renamed" {
		t.Fatalf("expected updated name, got %q", got.Name)
	}
	users, _ := s.ListUsers()
	if len(users) != 1 {
		t.Fatalf("upsert should not duplicate, got %d users", len(users))
	}
}

func TestMemoryStoreListOrdering(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	seedUser(t, s, "u-1", "+41791234567", base)

	for i, id := range []string{"c-1", "c-2", "c-3"} {
		conv := domain.Conversation{
			ID:            id,
			UserID:        "u-1",
			Title:         "Chat Conversation",
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
			LastMessageAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateConversation(conv); err != nil {
			t.Fatalf("create conversation: %v", err)
		}
	}

	conversations, err := s.ListConversations()
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if conversations[0].ID != "c-3" || conversations[2].ID != "c-1" {
		t.Fatalf("expected newest-first conversations, got %s..%s", conversations[0].ID, conversations[2].ID)
	}

	first, found, err := s.FirstConversationByUser("u-1")
	if err != nil || !found {
		t.Fatalf("expected first conversation, found=%v err=%v", found, err)
	}
	if first.ID != "c-1" {
		t.Fatalf("first conversation must be the oldest, got %s", first.ID)
	}

	for i, id := range []string{"m-1", "m-2", "m-3"} {
		msg := domain.Message{
			ID:             id,
			ConversationID: "c-1",
			UserID:         "u-1",
			Role:           domain.RoleUser,
			Content:        "hello",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.CreateMessage(msg); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}
	byConv, err := s.ListMessagesByConversation("c-1")
	if err != nil {
		t.Fatalf("list messages by conversation: %v", err)
	}
	if byConv[0].ID != "m-1" || byConv[2].ID != "m-3" {
		t.Fatalf("per-conversation messages must be oldest-first, got %s..%s", byConv[0].ID, byConv[2].ID)
	}
	all, err := s.ListMessages()
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if all[0].ID != "m-3" {
		t.Fatalf("global message listing must be newest-first, got %s", all[0].ID)
	}
}

func TestMemoryStoreTouchConversation(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	seedUser(t, s, "u-1", "+41791234567", base)
	conv := domain.Conversation{ID: "c-1", UserID: "u-1", Title: "Chat Conversation", CreatedAt: base, LastMessageAt: base}
	if err := s.CreateConversation(conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	later := base.Add(time.Hour)
	if err := s.TouchConversation("c-1", later); err != nil {
		t.Fatalf("touch conversation: %v", err)
	}
	got, _, _ := s.GetConversationByID("c-1")
	if !got.LastMessageAt.Equal(later) {
		t.Fatalf("expected lastMessageAt %v, got %v", later, got.LastMessageAt)
	}
}

func TestMemoryStoreDeleteUserCascade(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	seedUser(t, s, "u-1", "+41791234567", base)
	seedUser(t, s, "u-2", "+38344123456", base)

	conv := domain.Conversation{ID: "c-1", UserID: "u-1", Title: "Chat Conversation", CreatedAt: base, LastMessageAt: base}
	if err := s.CreateConversation(conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for _, id := range []string{"m-1", "m-2"} {
		if err := s.CreateMessage(domain.Message{ID: id, ConversationID: "c-1", UserID: "u-1", Role: domain.RoleUser, Content: "x", CreatedAt: base}); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}
	if err := s.CreateFile(domain.File{ID: "f-1", UserID: "u-1", ConversationID: "c-1", FileName: "a.pdf", StorageID: "blob-1", UploadedAt: base}); err != nil {
		t.Fatalf("create file: %v", err)
	}
	// File owned by the user but outside any of their conversations.
	if err := s.CreateFile(domain.File{ID: "f-2", UserID: "u-1", ConversationID: "c-other", FileName: "b.pdf", StorageID: "blob-2", UploadedAt: base}); err != nil {
		t.Fatalf("create file: %v", err)
	}

	counts, storageIDs, err := s.DeleteUserCascade("u-1")
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	if counts.Conversations != 1 || counts.Messages != 2 || counts.Files != 2 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if len(storageIDs) != 2 {
		t.Fatalf("expected 2 storage ids, got %d", len(storageIDs))
	}
	if _, found, _ := s.GetUserByID("u-1"); found {
		t.Fatalf("user should be gone")
	}
	if _, found, _ := s.GetUserByID("u-2"); !found {
		t.Fatalf("unrelated user must survive")
	}
	if msgs, _ := s.ListMessages(); len(msgs) != 0 {
		t.Fatalf("messages should be gone, got %d", len(msgs))
	}
}

func TestMemoryStoreCountsSince(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	old := now.Add(-30 * 24 * time.Hour)
	seedUser(t, s, "u-old", "+41791234567", old)
	seedUser(t, s, "u-new", "+38344123456", now)

	totals, err := s.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if totals.Users != 2 {
		t.Fatalf("expected 2 users total, got %d", totals.Users)
	}
	recent, err := s.CountsSince(now.Add(-7 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("counts since: %v", err)
	}
	if recent.Users != 1 {
		t.Fatalf("expected 1 recent user, got %d", recent.Users)
	}
}
