package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Email is a pointer so the unique index
// stays sparse: any number of users may have no email.
type UserModel struct {
	ID        string  `gorm:"primaryKey"`
	Name      string  `gorm:"not null"`
	Phone     string  `gorm:"uniqueIndex;not null"`
	Email     *string `gorm:"uniqueIndex"`
	AvatarURL *string
	CreatedAt time.Time `gorm:"not null;index"`
}

type ConversationModel struct {
	ID            string    `gorm:"primaryKey"`
	UserID        string    `gorm:"not null;index"`
	Title         string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	LastMessageAt time.Time `gorm:"not null;index"`
}

type MessageModel struct {
	ID             string         `gorm:"primaryKey"`
	ConversationID string         `gorm:"not null;index"`
	UserID         string         `gorm:"not null"`
	Role           string         `gorm:"not null"`
	Content        string         `gorm:"type:text;not null"`
	FileIDs        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index"`
}

type FileModel struct {
	ID             string    `gorm:"primaryKey"`
	UserID         string    `gorm:"not null;index"`
	ConversationID string    `gorm:"not null;index"`
	FileName       string    `gorm:"not null"`
	FileType       string    `gorm:"not null"`
	FileSize       int64     `gorm:"not null"`
	StorageID      string    `gorm:"not null"`
	UploadedAt     time.Time `gorm:"not null;index"`
}
