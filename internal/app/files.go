package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"taxchat/internal/store"
	"taxchat/pkg/domain"
)

const fileURLExpiry = 15 * time.Minute

// UploadInput describes an incoming file upload.
type UploadInput struct {
	UserID         string
	ConversationID string
	FileName       string
	FileType       string
	Size           int64
	Content        io.Reader
}

// UploadFile stores the blob and inserts the file record. Owner and
// conversation must exist.
func (a *App) UploadFile(ctx context.Context, in UploadInput) (domain.File, error) {
	if _, found, err := a.store.GetUserByID(in.UserID); err != nil {
		return domain.File{}, fmt.Errorf("fetch user: %w", err)
	} else if !found {
		return domain.File{}, NewError(CodeUserNotFound, "User not found")
	}
	if _, found, err := a.store.GetConversationByID(in.ConversationID); err != nil {
		return domain.File{}, fmt.Errorf("fetch conversation: %w", err)
	} else if !found {
		return domain.File{}, NewError(CodeConversationNotFound, "Conversation not found")
	}

	storageID := store.NewID()
	if a.blobs != nil {
		if err := a.blobs.Put(ctx, storageID, in.Content, in.Size, in.FileType); err != nil {
			return domain.File{}, fmt.Errorf("store blob: %w", err)
		}
	}
	file := domain.File{
		ID:             store.NewID(),
		UserID:         in.UserID,
		ConversationID: in.ConversationID,
		FileName:       in.FileName,
		FileType:       in.FileType,
		FileSize:       in.Size,
		StorageID:      storageID,
		UploadedAt:     time.Now().UTC(),
	}
	if err := a.store.CreateFile(file); err != nil {
		return domain.File{}, fmt.Errorf("save file: %w", err)
	}
	return file, nil
}

// FileURL returns a short-lived pre-signed download URL for a file's blob.
func (a *App) FileURL(ctx context.Context, id string) (string, error) {
	file, found, err := a.store.GetFileByID(id)
	if err != nil {
		return "", fmt.Errorf("fetch file: %w", err)
	}
	if !found {
		return "", NewError(CodeFileNotFound, "File not found")
	}
	if a.blobs == nil {
		return "", fmt.Errorf("file storage not configured")
	}
	url, err := a.blobs.PresignGet(ctx, file.StorageID, fileURLExpiry)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}
