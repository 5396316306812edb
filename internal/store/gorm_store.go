package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"taxchat/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &ConversationModel{}, &MessageModel{}, &FileModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser inserts or updates a user. Phone and creation time are never
// touched on update.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "avatar_url"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByPhone looks up a user by exact phone number.
func (s *GormStore) GetUserByPhone(phone string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("phone = ?", phone).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUsersByIDs fetches users in one query, keyed by ID.
func (s *GormStore) GetUsersByIDs(ids []string) (map[string]domain.User, error) {
	result := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var models []UserModel
	if err := s.db.Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		result[m.ID] = userFromModel(m)
	}
	return result, nil
}

// ListUsers returns all users, newest first.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// CreateConversation inserts a conversation.
func (s *GormStore) CreateConversation(c domain.Conversation) error {
	model := conversationToModel(c)
	return s.db.Create(&model).Error
}

// GetConversationByID retrieves a conversation.
func (s *GormStore) GetConversationByID(id string) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	return conversationFromModel(model), true, nil
}

// GetConversationsByIDs fetches conversations in one query, keyed by ID.
func (s *GormStore) GetConversationsByIDs(ids []string) (map[string]domain.Conversation, error) {
	result := make(map[string]domain.Conversation, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var models []ConversationModel
	if err := s.db.Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		result[m.ID] = conversationFromModel(m)
	}
	return result, nil
}

// FirstConversationByUser returns the user's oldest conversation.
func (s *GormStore) FirstConversationByUser(userID string) (domain.Conversation, bool, error) {
	var model ConversationModel
	err := s.db.Where("user_id = ?", userID).Order("created_at ASC").First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	return conversationFromModel(model), true, nil
}

// ListConversationsByUser returns a user's conversations, newest first.
func (s *GormStore) ListConversationsByUser(userID string) ([]domain.Conversation, error) {
	return s.listConversations("created_at DESC", "user_id = ?", userID)
}

// ListConversations returns all conversations, newest first.
func (s *GormStore) ListConversations() ([]domain.Conversation, error) {
	return s.listConversations("created_at DESC")
}

func (s *GormStore) listConversations(order string, conds ...any) ([]domain.Conversation, error) {
	var models []ConversationModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Conversation, 0, len(models))
	for _, m := range models {
		res = append(res, conversationFromModel(m))
	}
	return res, nil
}

// TouchConversation refreshes the last-activity timestamp.
func (s *GormStore) TouchConversation(id string, at time.Time) error {
	return s.db.Model(&ConversationModel{}).
		Where("id = ?", id).
		Update("last_message_at", at).Error
}

// CreateMessage inserts a message.
func (s *GormStore) CreateMessage(m domain.Message) error {
	model, err := messageToModel(m)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// ListMessagesByConversation returns a conversation's messages, oldest first.
func (s *GormStore) ListMessagesByConversation(conversationID string) ([]domain.Message, error) {
	var models []MessageModel
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Find(&models).Error
	if err != nil {
		return nil, err
	}
	return messagesFromModels(models)
}

// ListMessages returns all messages, newest first.
func (s *GormStore) ListMessages() ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return messagesFromModels(models)
}

// CreateFile inserts a file record.
func (s *GormStore) CreateFile(f domain.File) error {
	model := fileToModel(f)
	return s.db.Create(&model).Error
}

// GetFileByID retrieves a file record.
func (s *GormStore) GetFileByID(id string) (domain.File, bool, error) {
	var model FileModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.File{}, false, nil
		}
		return domain.File{}, false, err
	}
	return fileFromModel(model), true, nil
}

// GetFilesByIDs fetches file records in one query, keyed by ID.
func (s *GormStore) GetFilesByIDs(ids []string) (map[string]domain.File, error) {
	result := make(map[string]domain.File, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var models []FileModel
	if err := s.db.Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		result[m.ID] = fileFromModel(m)
	}
	return result, nil
}

// ListFilesByUser returns a user's files, newest first.
func (s *GormStore) ListFilesByUser(userID string) ([]domain.File, error) {
	return s.listFiles("uploaded_at DESC", "user_id = ?", userID)
}

// ListFiles returns all files, newest first.
func (s *GormStore) ListFiles() ([]domain.File, error) {
	return s.listFiles("uploaded_at DESC")
}

func (s *GormStore) listFiles(order string, conds ...any) ([]domain.File, error) {
	var models []FileModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.File, 0, len(models))
	for _, m := range models {
		res = append(res, fileFromModel(m))
	}
	return res, nil
}

// DeleteUserCascade removes everything owned by the user inside a single
// transaction: per conversation its messages and files, the conversation
// itself, then files still attached to the user directly, then the user.
// The separate user-file sweep covers files whose conversation reference
// does not line up with one of the user's own conversations.
func (s *GormStore) DeleteUserCascade(userID string) (domain.DeletionCounts, []string, error) {
	var counts domain.DeletionCounts
	var storageIDs []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var convs []ConversationModel
		if err := tx.Where("user_id = ?", userID).Order("created_at ASC").Find(&convs).Error; err != nil {
			return err
		}
		for _, conv := range convs {
			res := tx.Delete(&MessageModel{}, "conversation_id = ?", conv.ID)
			if res.Error != nil {
				return res.Error
			}
			counts.Messages += int(res.RowsAffected)

			var files []FileModel
			if err := tx.Where("conversation_id = ?", conv.ID).Find(&files).Error; err != nil {
				return err
			}
			for _, f := range files {
				storageIDs = append(storageIDs, f.StorageID)
			}
			if len(files) > 0 {
				if err := tx.Delete(&FileModel{}, "conversation_id = ?", conv.ID).Error; err != nil {
					return err
				}
			}
			counts.Files += len(files)

			if err := tx.Delete(&ConversationModel{}, "id = ?", conv.ID).Error; err != nil {
				return err
			}
			counts.Conversations++
		}

		var remaining []FileModel
		if err := tx.Where("user_id = ?", userID).Find(&remaining).Error; err != nil {
			return err
		}
		for _, f := range remaining {
			storageIDs = append(storageIDs, f.StorageID)
		}
		if len(remaining) > 0 {
			if err := tx.Delete(&FileModel{}, "user_id = ?", userID).Error; err != nil {
				return err
			}
		}
		counts.Files += len(remaining)

		return tx.Delete(&UserModel{}, "id = ?", userID).Error
	})
	if err != nil {
		return domain.DeletionCounts{}, nil, err
	}
	return counts, storageIDs, nil
}

// Counts returns total record counts per collection.
func (s *GormStore) Counts() (StatCounts, error) {
	return s.counts(nil)
}

// CountsSince counts records created after the cutoff.
func (s *GormStore) CountsSince(cutoff time.Time) (StatCounts, error) {
	return s.counts(&cutoff)
}

func (s *GormStore) counts(cutoff *time.Time) (StatCounts, error) {
	var out StatCounts
	count := func(model any, column string, dst *int) error {
		tx := s.db.Model(model)
		if cutoff != nil {
			tx = tx.Where(column+" > ?", *cutoff)
		}
		var n int64
		if err := tx.Count(&n).Error; err != nil {
			return err
		}
		*dst = int(n)
		return nil
	}
	if err := count(&UserModel{}, "created_at", &out.Users); err != nil {
		return StatCounts{}, err
	}
	if err := count(&ConversationModel{}, "created_at", &out.Conversations); err != nil {
		return StatCounts{}, err
	}
	if err := count(&MessageModel{}, "created_at", &out.Messages); err != nil {
		return StatCounts{}, err
	}
	if err := count(&FileModel{}, "uploaded_at", &out.Files); err != nil {
		return StatCounts{}, err
	}
	return out, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:        u.ID,
		Name:      u.Name,
		Phone:     u.Phone,
		Email:     optional(u.Email),
		AvatarURL: optional(u.AvatarURL),
		CreatedAt: u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Name:      m.Name,
		Phone:     m.Phone,
		Email:     deref(m.Email),
		AvatarURL: deref(m.AvatarURL),
		CreatedAt: m.CreatedAt,
	}
}

func conversationToModel(c domain.Conversation) ConversationModel {
	return ConversationModel{
		ID:            c.ID,
		UserID:        c.UserID,
		Title:         c.Title,
		CreatedAt:     c.CreatedAt,
		LastMessageAt: c.LastMessageAt,
	}
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	return domain.Conversation{
		ID:            m.ID,
		UserID:        m.UserID,
		Title:         m.Title,
		CreatedAt:     m.CreatedAt,
		LastMessageAt: m.LastMessageAt,
	}
}

func messageToModel(msg domain.Message) (MessageModel, error) {
	model := MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		UserID:         msg.UserID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
	if len(msg.FileIDs) > 0 {
		raw, err := json.Marshal(msg.FileIDs)
		if err != nil {
			return MessageModel{}, fmt.Errorf("marshal file ids: %w", err)
		}
		model.FileIDs = raw
	}
	return model, nil
}

func messageFromModel(m MessageModel) (domain.Message, error) {
	msg := domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           domain.MessageRole(m.Role),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
	if len(m.FileIDs) > 0 {
		if err := json.Unmarshal(m.FileIDs, &msg.FileIDs); err != nil {
			return domain.Message{}, fmt.Errorf("unmarshal file ids: %w", err)
		}
	}
	return msg, nil
}

func messagesFromModels(models []MessageModel) ([]domain.Message, error) {
	res := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msg, err := messageFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, msg)
	}
	return res, nil
}

func fileToModel(f domain.File) FileModel {
	return FileModel{
		ID:             f.ID,
		UserID:         f.UserID,
		ConversationID: f.ConversationID,
		FileName:       f.FileName,
		FileType:       f.FileType,
		FileSize:       f.FileSize,
		StorageID:      f.StorageID,
		UploadedAt:     f.UploadedAt,
	}
}

func fileFromModel(m FileModel) domain.File {
	return domain.File{
		ID:             m.ID,
		UserID:         m.UserID,
		ConversationID: m.ConversationID,
		FileName:       m.FileName,
		FileType:       m.FileType,
		FileSize:       m.FileSize,
		StorageID:      m.StorageID,
		UploadedAt:     m.UploadedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
