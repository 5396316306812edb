package store

import (
	"time"

	"taxchat/pkg/domain"
)

// StatCounts are per-collection record counts used by the dashboard.
type StatCounts struct {
	Users         int
	Conversations int
	Messages      int
	Files         int
}

// Store defines persistence for users, conversations, messages, and files.
// List orderings are part of the contract: per-conversation messages are
// oldest first, every other listing is newest first.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByPhone(phone string) (domain.User, bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUsersByIDs(ids []string) (map[string]domain.User, error)
	ListUsers() ([]domain.User, error)

	// conversations
	CreateConversation(domain.Conversation) error
	GetConversationByID(id string) (domain.Conversation, bool, error)
	GetConversationsByIDs(ids []string) (map[string]domain.Conversation, error)
	// FirstConversationByUser returns the user's oldest conversation.
	// The message-append path reuses this one indefinitely.
	FirstConversationByUser(userID string) (domain.Conversation, bool, error)
	ListConversationsByUser(userID string) ([]domain.Conversation, error)
	ListConversations() ([]domain.Conversation, error)
	TouchConversation(id string, at time.Time) error

	// messages
	CreateMessage(domain.Message) error
	ListMessagesByConversation(conversationID string) ([]domain.Message, error)
	ListMessages() ([]domain.Message, error)

	// files
	CreateFile(domain.File) error
	GetFileByID(id string) (domain.File, bool, error)
	GetFilesByIDs(ids []string) (map[string]domain.File, error)
	ListFilesByUser(userID string) ([]domain.File, error)
	ListFiles() ([]domain.File, error)

	// DeleteUserCascade removes the user's conversations with their
	// messages and files, then any files still owned by the user, then
	// the user record. It returns per-kind counts and the storage keys
	// of every removed file so the caller can clean up blobs.
	DeleteUserCascade(userID string) (domain.DeletionCounts, []string, error)

	// stats
	Counts() (StatCounts, error)
	CountsSince(cutoff time.Time) (StatCounts, error)
}
