package app

import (
	"context"
	"testing"
	"time"

	"taxchat/internal/store"
	"taxchat/pkg/domain"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(Config{Store: store.NewMemoryStore()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func register(t *testing.T, a *App, name, phone string) domain.User {
	t.Helper()
	user, err := a.RegisterUser(RegisterInput{Name: name, Phone: phone})
	if err != nil {
		t.Fatalf("register %s: %v", phone, err)
	}
	return user
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	domainErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected tagged error, got %v", err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, domainErr.Code, domainErr.Message)
	}
}

func TestRegisterUserValidation(t *testing.T) {
	a := newTestApp(t)

	_, err := a.RegisterUser(RegisterInput{Name: "Alma"})
	wantCode(t, err, CodeMissingPhone)

	_, err = a.RegisterUser(RegisterInput{Name: "Alma", Phone: "0791234567"})
	wantCode(t, err, CodeInvalidPhoneFormat)

	_, err = a.RegisterUser(RegisterInput{Name: "Alma", Phone: "+41791234567", Email: "not-an-email"})
	wantCode(t, err, CodeInvalidEmailFormat)

	_, err = a.RegisterUser(RegisterInput{Name: "  ", Phone: "+41791234567"})
	wantCode(t, err, CodeInvalidName)

	_, err = a.RegisterUser(RegisterInput{Name: "Alma", Phone: "+41791234567", AvatarURL: "not a url"})
	wantCode(t, err, CodeValidation)
}

func TestRegisterUserDuplicates(t *testing.T) {
	a := newTestApp(t)
	_, err := a.RegisterUser(RegisterInput{Name: "Alma", Phone: "+41791234567", Email: "alma@example.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err = a.RegisterUser(RegisterInput{Name: "Besa", Phone: "+41791234567"})
	wantCode(t, err, CodePhoneExists)

	_, err = a.RegisterUser(RegisterInput{Name: "Besa", Phone: "+38344123456", Email: "alma@example.com"})
	wantCode(t, err, CodeEmailExists)

	// Same name with a fresh phone and no email is fine.
	if _, err := a.RegisterUser(RegisterInput{Name: "Alma", Phone: "+38344123456"}); err != nil {
		t.Fatalf("register without email: %v", err)
	}
}

func TestRegisterUserOmittedEmailNotUnique(t *testing.T) {
	a := newTestApp(t)
	register(t, a, "Alma", "+41791234567")
	// Two users without email must not collide on the empty string.
	if _, err := a.RegisterUser(RegisterInput{Name: "Besa", Phone: "+38344123456"}); err != nil {
		t.Fatalf("second user without email: %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	a := newTestApp(t)
	user := register(t, a, "Alma", "+41791234567")

	name := "Renamed"
	updated, err := a.UpdateUser(user.ID, UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("update name: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Fatalf("expected renamed user, got %q", updated.Name)
	}

	email := "alma@example.com"
	if _, err := a.UpdateUser(user.ID, UpdateInput{Email: &email}); err != nil {
		t.Fatalf("set email: %v", err)
	}
	// Re-submitting the user's own email is not a conflict.
	if _, err := a.UpdateUser(user.ID, UpdateInput{Email: &email}); err != nil {
		t.Fatalf("resubmit own email: %v", err)
	}

	other := register(t, a, "Besa", "+38344123456")
	_, err = a.UpdateUser(other.ID, UpdateInput{Email: &email})
	wantCode(t, err, CodeEmailExists)

	empty := ""
	cleared, err := a.UpdateUser(user.ID, UpdateInput{Email: &empty})
	if err != nil {
		t.Fatalf("clear email: %v", err)
	}
	if cleared.Email != "" {
		t.Fatalf("expected cleared email, got %q", cleared.Email)
	}

	_, err = a.UpdateUser("missing", UpdateInput{Name: &name})
	wantCode(t, err, CodeUserNotFound)

	blank := "   "
	_, err = a.UpdateUser(user.ID, UpdateInput{Name: &blank})
	wantCode(t, err, CodeInvalidName)
}

func TestAppendMessageReusesOldestConversation(t *testing.T) {
	a := newTestApp(t)
	register(t, a, "Alma", "+41791234567")

	first, err := a.AppendMessage("+41791234567", domain.RoleUser, "hello")
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if first.Conversation.Title != "Chat Conversation" {
		t.Fatalf("expected default title, got %q", first.Conversation.Title)
	}
	second, err := a.AppendMessage("+41791234567", domain.RoleAssistant, "hi there")
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if second.Conversation.ID != first.Conversation.ID {
		t.Fatalf("appends must reuse the same conversation")
	}
	if second.Message.UserID != first.Message.UserID {
		t.Fatalf("assistant messages keep the human participant as user")
	}

	messages, err := a.ConversationMessages(first.Conversation.ID)
	if err != nil {
		t.Fatalf("conversation messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "hello" {
		t.Fatalf("per-conversation order must be oldest first, got %q", messages[0].Content)
	}
}

func TestAppendMessageValidation(t *testing.T) {
	a := newTestApp(t)
	register(t, a, "Alma", "+41791234567")

	_, err := a.AppendMessage("bad", domain.RoleUser, "hello")
	wantCode(t, err, CodeInvalidPhoneFormat)

	_, err = a.AppendMessage("+41791234567", "moderator", "hello")
	wantCode(t, err, CodeInvalidMessageRole)

	_, err = a.AppendMessage("+41791234567", domain.RoleUser, "")
	wantCode(t, err, CodeInvalidMessageContent)

	_, err = a.AppendMessage("+41799999999", domain.RoleUser, "hello")
	wantCode(t, err, CodeUserNotFound)
}

func TestDeleteUserCascade(t *testing.T) {
	a := newTestApp(t)
	user := register(t, a, "Alma", "+41791234567")
	keep := register(t, a, "Besa", "+38344123456")

	if _, err := a.AppendMessage(user.Phone, domain.RoleUser, "one"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := a.AppendMessage(user.Phone, domain.RoleAssistant, "two"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := a.AppendMessage(keep.Phone, domain.RoleUser, "other"); err != nil {
		t.Fatalf("append: %v", err)
	}

	summary, err := a.DeleteUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !summary.Success {
		t.Fatalf("expected success summary")
	}
	if summary.DeletedUser.Phone != user.Phone {
		t.Fatalf("expected deleted user snapshot, got %+v", summary.DeletedUser)
	}
	if summary.DeletedCounts.Conversations != 1 || summary.DeletedCounts.Messages != 2 {
		t.Fatalf("unexpected counts: %+v", summary.DeletedCounts)
	}

	_, err = a.UserByID(user.ID)
	wantCode(t, err, CodeUserNotFound)

	_, err = a.DeleteUser(context.Background(), user.ID)
	wantCode(t, err, CodeUserNotFound)

	if _, err := a.UserByID(keep.ID); err != nil {
		t.Fatalf("unrelated user must survive: %v", err)
	}
	messages, err := a.Messages()
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected only the surviving user's message, got %d", len(messages))
	}
}

func TestCheckUser(t *testing.T) {
	a := newTestApp(t)
	register(t, a, "Alma", "+41791234567")

	result, err := a.CheckUser("+41791234567")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Exists || result.Name == nil || *result.Name != "Alma" {
		t.Fatalf("expected existing user, got %+v", result)
	}

	result, err = a.CheckUser("+41799999999")
	if err != nil {
		t.Fatalf("check unknown: %v", err)
	}
	if result.Exists || result.Name != nil || result.User != nil {
		t.Fatalf("expected no user, got %+v", result)
	}
}

func TestVerifyOTP(t *testing.T) {
	a := newTestApp(t)
	register(t, a, "Alma", "+41791234567")
	ts := time.Now().UnixMilli()

	result, err := a.VerifyOTP("+41791234567", "1234", ts)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Valid || !result.UserExists {
		t.Fatalf("expected valid verification for known user, got %+v", result)
	}

	result, err = a.VerifyOTP("+41791234567", "4444", ts)
	if err != nil {
		t.Fatalf("verify rejected code: %v", err)
	}
	if result.Valid {
		t.Fatalf("code 4444 must always be rejected")
	}

	result, err = a.VerifyOTP("+41799999999", "1234", ts)
	if err != nil {
		t.Fatalf("verify unknown user: %v", err)
	}
	if !result.Valid || result.UserExists {
		t.Fatalf("verification is independent of registration, got %+v", result)
	}
}

func TestMessagesByPhone(t *testing.T) {
	a := newTestApp(t)
	register(t, a, "Alma", "+41791234567")
	if _, err := a.AppendMessage("+41791234567", domain.RoleUser, "first"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := a.AppendMessage("+41791234567", domain.RoleAssistant, "second"); err != nil {
		t.Fatalf("append: %v", err)
	}

	messages, err := a.MessagesByPhone("+41791234567")
	if err != nil {
		t.Fatalf("messages by phone: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "first" {
		t.Fatalf("expected 2 messages oldest first, got %+v", messages)
	}

	// Unknown phone yields an empty listing, not an error.
	messages, err = a.MessagesByPhone("+41799999999")
	if err != nil {
		t.Fatalf("messages for unknown phone: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(messages))
	}
}

func TestStatsPartitionsByAge(t *testing.T) {
	memStore := store.NewMemoryStore()
	a, err := New(Config{Store: memStore})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if err := memStore.SaveUser(domain.User{ID: "u-old", Name: "Old", Phone: "+41791234567", CreatedAt: old}); err != nil {
		t.Fatalf("seed old user: %v", err)
	}
	if err := memStore.SaveUser(domain.User{ID: "u-new", Name: "New", Phone: "+38344123456", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("seed new user: %v", err)
	}

	stats, err := a.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 2 {
		t.Fatalf("expected 2 users total, got %d", stats.TotalUsers)
	}
	if stats.RecentUsers != 1 {
		t.Fatalf("expected 1 recent user, got %d", stats.RecentUsers)
	}
}

func TestConversationQueries(t *testing.T) {
	a := newTestApp(t)
	user := register(t, a, "Alma", "+41791234567")
	receipt, err := a.AppendMessage(user.Phone, domain.RoleUser, "hello")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	conv, err := a.ConversationByID(receipt.Conversation.ID)
	if err != nil {
		t.Fatalf("conversation by id: %v", err)
	}
	if conv.User == nil || conv.User.ID != user.ID {
		t.Fatalf("expected owner attached, got %+v", conv.User)
	}

	_, err = a.ConversationByID("missing")
	wantCode(t, err, CodeConversationNotFound)

	list, err := a.Conversations()
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(list))
	}
}
