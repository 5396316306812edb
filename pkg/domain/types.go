package domain

import "time"

// MessageRole identifies who authored a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// User is a registered chat participant. Phone is globally unique;
// Email is optional and unique when present.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation groups the messages of one user. LastMessageAt is refreshed
// on every append; all other fields are immutable after creation.
type Conversation struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// Message is immutable once appended. UserID always references the human
// participant, also for assistant-authored messages.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	UserID         string      `json:"userId"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	FileIDs        []string    `json:"fileIds,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// File is an uploaded document. StorageID is the key of the binary blob in
// the object store.
type File struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId"`
	FileName       string    `json:"fileName"`
	FileType       string    `json:"fileType"`
	FileSize       int64     `json:"fileSize"`
	StorageID      string    `json:"storageId"`
	UploadedAt     time.Time `json:"uploadedAt"`
}

// ConversationWithUser is a conversation with its owner attached.
// User is null when the owner record no longer exists.
type ConversationWithUser struct {
	Conversation
	User *User `json:"user"`
}

// MessageWithUser is a message with its author and referenced files attached.
type MessageWithUser struct {
	Message
	User  *User  `json:"user"`
	Files []File `json:"files"`
}

// MessageDetail additionally carries the owning conversation. Used by the
// unscoped message listing.
type MessageDetail struct {
	Message
	User         *User         `json:"user"`
	Conversation *Conversation `json:"conversation"`
	Files        []File        `json:"files"`
}

// FileWithRefs is a file with owner and conversation attached.
type FileWithRefs struct {
	File
	User         *User         `json:"user"`
	Conversation *Conversation `json:"conversation"`
}

// FileWithConversation is a file with only the conversation attached, for
// per-user file listings.
type FileWithConversation struct {
	File
	Conversation *Conversation `json:"conversation"`
}

// UserRef is the trimmed user view returned by the message append operation.
// Email and avatar are deliberately excluded from this response shape.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// MessageReceipt is the result of appending a message.
type MessageReceipt struct {
	Message      Message      `json:"message"`
	Conversation Conversation `json:"conversation"`
	User         UserRef      `json:"user"`
}

// DeletedUser is the identity snapshot of a removed user.
type DeletedUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// DeletionCounts tallies records removed by a cascading user deletion.
type DeletionCounts struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
	Files         int `json:"files"`
}

// DeletionSummary is returned after a user and all dependent records were
// removed.
type DeletionSummary struct {
	Success       bool           `json:"success"`
	DeletedUser   DeletedUser    `json:"deletedUser"`
	DeletedCounts DeletionCounts `json:"deletedCounts"`
}

// DashboardStats are collection totals plus the share created within the
// last seven days.
type DashboardStats struct {
	TotalUsers          int `json:"totalUsers"`
	TotalConversations  int `json:"totalConversations"`
	TotalMessages       int `json:"totalMessages"`
	TotalFiles          int `json:"totalFiles"`
	RecentUsers         int `json:"recentUsers"`
	RecentConversations int `json:"recentConversations"`
	RecentMessages      int `json:"recentMessages"`
}

// CheckResult answers whether a phone number belongs to a registered user.
type CheckResult struct {
	Exists bool    `json:"exists"`
	Name   *string `json:"name"`
	User   *User   `json:"user"`
}

// OTPResult echoes the verification input together with the outcome and the
// user (if any) registered under the phone number.
type OTPResult struct {
	Phone      string  `json:"phone"`
	OTP        string  `json:"otp"`
	Timestamp  int64   `json:"timestamp"`
	Valid      bool    `json:"valid"`
	Name       *string `json:"name"`
	UserExists bool    `json:"userExists"`
	User       *User   `json:"user"`
}
