package app

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"taxchat/internal/store"
	"taxchat/pkg/domain"
)

// Read operations. All of them return snapshots; joins are resolved with one
// batched multi-get per related collection rather than a lookup per row.

// Users returns all users, newest first.
func (a *App) Users() ([]domain.User, error) {
	return a.store.ListUsers()
}

// UserByID resolves a single user.
func (a *App) UserByID(id string) (domain.User, error) {
	user, found, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		return domain.User{}, NewError(CodeUserNotFound, "User not found")
	}
	return user, nil
}

// UserByPhone resolves a single user by phone number.
func (a *App) UserByPhone(phone string) (domain.User, error) {
	user, found, err := a.store.GetUserByPhone(phone)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		return domain.User{}, NewError(CodeUserNotFound, "User not found")
	}
	return user, nil
}

// Conversations returns all conversations, newest first, each with its
// owner attached.
func (a *App) Conversations() ([]domain.ConversationWithUser, error) {
	conversations, err := a.store.ListConversations()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	userIDs := make([]string, 0, len(conversations))
	for _, c := range conversations {
		userIDs = append(userIDs, c.UserID)
	}
	users, err := a.store.GetUsersByIDs(distinct(userIDs))
	if err != nil {
		return nil, fmt.Errorf("fetch owners: %w", err)
	}
	out := make([]domain.ConversationWithUser, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, domain.ConversationWithUser{
			Conversation: c,
			User:         userPtr(users, c.UserID),
		})
	}
	return out, nil
}

// ConversationByID resolves one conversation with its owner attached.
func (a *App) ConversationByID(id string) (domain.ConversationWithUser, error) {
	conversation, found, err := a.store.GetConversationByID(id)
	if err != nil {
		return domain.ConversationWithUser{}, fmt.Errorf("fetch conversation: %w", err)
	}
	if !found {
		return domain.ConversationWithUser{}, NewError(CodeConversationNotFound, "Conversation not found")
	}
	users, err := a.store.GetUsersByIDs([]string{conversation.UserID})
	if err != nil {
		return domain.ConversationWithUser{}, fmt.Errorf("fetch owner: %w", err)
	}
	return domain.ConversationWithUser{
		Conversation: conversation,
		User:         userPtr(users, conversation.UserID),
	}, nil
}

// ConversationsByUser returns a user's conversations, newest first.
func (a *App) ConversationsByUser(userID string) ([]domain.Conversation, error) {
	return a.store.ListConversationsByUser(userID)
}

// ConversationMessages returns a conversation's messages oldest first, each
// with its author and referenced files attached. An unknown conversation
// yields an empty list, not an error.
func (a *App) ConversationMessages(conversationID string) ([]domain.MessageWithUser, error) {
	messages, err := a.store.ListMessagesByConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	users, files, err := a.messageRefs(messages)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MessageWithUser, 0, len(messages))
	for _, m := range messages {
		out = append(out, domain.MessageWithUser{
			Message: m,
			User:    userPtr(users, m.UserID),
			Files:   attachFiles(files, m.FileIDs),
		})
	}
	return out, nil
}

// Messages returns every message, newest first, with author, conversation,
// and referenced files attached.
func (a *App) Messages() ([]domain.MessageDetail, error) {
	messages, err := a.store.ListMessages()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	users, files, err := a.messageRefs(messages)
	if err != nil {
		return nil, err
	}
	convIDs := make([]string, 0, len(messages))
	for _, m := range messages {
		convIDs = append(convIDs, m.ConversationID)
	}
	conversations, err := a.store.GetConversationsByIDs(distinct(convIDs))
	if err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	out := make([]domain.MessageDetail, 0, len(messages))
	for _, m := range messages {
		out = append(out, domain.MessageDetail{
			Message:      m,
			User:         userPtr(users, m.UserID),
			Conversation: conversationPtr(conversations, m.ConversationID),
			Files:        attachFiles(files, m.FileIDs),
		})
	}
	return out, nil
}

// MessagesByPhone returns the messages from every conversation of the user
// registered under the phone number, in ascending creation order. An
// unknown phone yields an empty list.
func (a *App) MessagesByPhone(phone string) ([]domain.Message, error) {
	user, found, err := a.store.GetUserByPhone(phone)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		return []domain.Message{}, nil
	}
	conversations, err := a.store.ListConversationsByUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	all := make([]domain.Message, 0)
	for _, c := range conversations {
		messages, err := a.store.ListMessagesByConversation(c.ID)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		all = append(all, messages...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

// Files returns every file record, newest first, with owner and
// conversation attached.
func (a *App) Files() ([]domain.FileWithRefs, error) {
	files, err := a.store.ListFiles()
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	userIDs := make([]string, 0, len(files))
	convIDs := make([]string, 0, len(files))
	for _, f := range files {
		userIDs = append(userIDs, f.UserID)
		convIDs = append(convIDs, f.ConversationID)
	}
	users, err := a.store.GetUsersByIDs(distinct(userIDs))
	if err != nil {
		return nil, fmt.Errorf("fetch owners: %w", err)
	}
	conversations, err := a.store.GetConversationsByIDs(distinct(convIDs))
	if err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	out := make([]domain.FileWithRefs, 0, len(files))
	for _, f := range files {
		out = append(out, domain.FileWithRefs{
			File:         f,
			User:         userPtr(users, f.UserID),
			Conversation: conversationPtr(conversations, f.ConversationID),
		})
	}
	return out, nil
}

// FileByID returns a single file record.
func (a *App) FileByID(id string) (domain.File, error) {
	file, ok, err := a.store.GetFileByID(id)
	if err != nil {
		return domain.File{}, fmt.Errorf("fetch file: %w", err)
	}
	if !ok {
		return domain.File{}, NewError(CodeFileNotFound, "File not found")
	}
	return file, nil
}

// FilesByUser returns a user's files, newest first, with the conversation
// attached.
func (a *App) FilesByUser(userID string) ([]domain.FileWithConversation, error) {
	files, err := a.store.ListFilesByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	convIDs := make([]string, 0, len(files))
	for _, f := range files {
		convIDs = append(convIDs, f.ConversationID)
	}
	conversations, err := a.store.GetConversationsByIDs(distinct(convIDs))
	if err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	out := make([]domain.FileWithConversation, 0, len(files))
	for _, f := range files {
		out = append(out, domain.FileWithConversation{
			File:         f,
			Conversation: conversationPtr(conversations, f.ConversationID),
		})
	}
	return out, nil
}

// Stats returns collection totals and how many records were created within
// the last seven days. The two count passes run concurrently.
func (a *App) Stats() (domain.DashboardStats, error) {
	var totals, recent store.StatCounts
	weekAgo := time.Now().UTC().Add(-7 * 24 * time.Hour)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		totals, err = a.store.Counts()
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = a.store.CountsSince(weekAgo)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DashboardStats{}, fmt.Errorf("collect stats: %w", err)
	}
	return domain.DashboardStats{
		TotalUsers:          totals.Users,
		TotalConversations:  totals.Conversations,
		TotalMessages:       totals.Messages,
		TotalFiles:          totals.Files,
		RecentUsers:         recent.Users,
		RecentConversations: recent.Conversations,
		RecentMessages:      recent.Messages,
	}, nil
}

func (a *App) messageRefs(messages []domain.Message) (map[string]domain.User, map[string]domain.File, error) {
	userIDs := make([]string, 0, len(messages))
	fileIDs := make([]string, 0)
	for _, m := range messages {
		userIDs = append(userIDs, m.UserID)
		fileIDs = append(fileIDs, m.FileIDs...)
	}
	users, err := a.store.GetUsersByIDs(distinct(userIDs))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch authors: %w", err)
	}
	files, err := a.store.GetFilesByIDs(distinct(fileIDs))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch files: %w", err)
	}
	return users, files, nil
}

// attachFiles resolves file references in order, dropping dangling IDs.
func attachFiles(files map[string]domain.File, ids []string) []domain.File {
	out := make([]domain.File, 0, len(ids))
	for _, id := range ids {
		if f, ok := files[id]; ok {
			out = append(out, f)
		}
	}
	return out
}

func userPtr(users map[string]domain.User, id string) *domain.User {
	if u, ok := users[id]; ok {
		return &u
	}
	return nil
}

func conversationPtr(conversations map[string]domain.Conversation, id string) *domain.Conversation {
	if c, ok := conversations[id]; ok {
		return &c
	}
	return nil
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
