package store

import (
	"sort"
	"sync"
	"time"

	"taxchat/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs the service when no
// database is configured and is what the tests run against. An insertion
// sequence number breaks ordering ties between records created within the
// same clock tick.
type MemoryStore struct {
	mu            sync.RWMutex
	seq           uint64
	users         map[string]memRecord[domain.User]
	conversations map[string]memRecord[domain.Conversation]
	messages      map[string]memRecord[domain.Message]
	files         map[string]memRecord[domain.File]
}

type memRecord[T any] struct {
	value T
	seq   uint64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]memRecord[domain.User]),
		conversations: make(map[string]memRecord[domain.Conversation]),
		messages:      make(map[string]memRecord[domain.Message]),
		files:         make(map[string]memRecord[domain.File]),
	}
}

func (m *MemoryStore) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// SaveUser inserts or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		existing.value = u
		m.users[u.ID] = existing
		return nil
	}
	m.users[u.ID] = memRecord[domain.User]{value: u, seq: m.nextSeq()}
	return nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.users[id]
	return rec.value, ok, nil
}

// GetUserByPhone scans for a user with the exact phone number.
func (m *MemoryStore) GetUserByPhone(phone string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.users {
		if rec.value.Phone == phone {
			return rec.value, true, nil
		}
	}
	return domain.User{}, false, nil
}

// GetUserByEmail scans for a user with the given email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.users {
		if rec.value.Email != "" && rec.value.Email == email {
			return rec.value, true, nil
		}
	}
	return domain.User{}, false, nil
}

// GetUsersByIDs returns the users found, keyed by ID.
func (m *MemoryStore) GetUsersByIDs(ids []string) (map[string]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if rec, ok := m.users[id]; ok {
			result[id] = rec.value
		}
	}
	return result, nil
}

// ListUsers returns all users, newest first.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := collect(m.users, nil)
	sortRecords(recs, func(u domain.User) time.Time { return u.CreatedAt }, false)
	return values(recs), nil
}

// CreateConversation inserts a conversation.
func (m *MemoryStore) CreateConversation(c domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.ID] = memRecord[domain.Conversation]{value: c, seq: m.nextSeq()}
	return nil
}

// GetConversationByID retrieves a conversation.
func (m *MemoryStore) GetConversationByID(id string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.conversations[id]
	return rec.value, ok, nil
}

// GetConversationsByIDs returns the conversations found, keyed by ID.
func (m *MemoryStore) GetConversationsByIDs(ids []string) (map[string]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]domain.Conversation, len(ids))
	for _, id := range ids {
		if rec, ok := m.conversations[id]; ok {
			result[id] = rec.value
		}
	}
	return result, nil
}

// FirstConversationByUser returns the user's oldest conversation.
func (m *MemoryStore) FirstConversationByUser(userID string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := collect(m.conversations, func(c domain.Conversation) bool { return c.UserID == userID })
	if len(recs) == 0 {
		return domain.Conversation{}, false, nil
	}
	sortRecords(recs, func(c domain.Conversation) time.Time { return c.CreatedAt }, true)
	return recs[0].value, true, nil
}

// ListConversationsByUser returns a user's conversations, newest first.
func (m *MemoryStore) ListConversationsByUser(userID string) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := collect(m.conversations, func(c domain.Conversation) bool { return c.UserID == userID })
	sortRecords(recs, func(c domain.Conversation) time.Time { return c.CreatedAt }, false)
	return values(recs), nil
}

// ListConversations returns all conversations, newest first.
func (m *MemoryStore) ListConversations() ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := collect(m.conversations, nil)
	sortRecords(recs, func(c domain.Conversation) time.Time { return c.CreatedAt }, false)
	return values(recs), nil
}

// TouchConversation refreshes the last-activity timestamp.
func (m *MemoryStore) TouchConversation(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.conversations[id]
	if !ok {
		return nil
	}
	rec.value.LastMessageAt = at
	m.conversations[id] = rec
	return nil
}

// CreateMessage inserts a message.
func (m *MemoryStore) CreateMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ID] = memRecord[domain.Message]{value: msg, seq: m.nextSeq()}
	return nil
}

// ListMessagesByConversation returns a conversation's messages, oldest first.
func (m *MemoryStore) ListMessagesByConversation(conversationID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := collect(m.messages, func(msg domain.Message) bool { return msg.ConversationID == conversationID })
	sortRecords(recs, func(msg domain.Message) time.Time { return msg.CreatedAt }, true)
	return values(recs), nil
}

// ListMessages returns all messages, newest first.
func (m *MemoryStore) ListMessages() ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := collect(m.messages, nil)
	sortRecords(recs, func(msg domain.Message) time.Time { return msg.CreatedAt }, false)
	return values(recs), nil
}

// CreateFile inserts a file record.
func (m *MemoryStore) CreateFile(f domain.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[f.ID] = memRecord[domain.File]{value: f, seq: m.nextSeq()}
	return nil
}

// GetFileByID retrieves a file record.
func (m *MemoryStore) GetFileByID(id string) (domain.File, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[id]
	return rec.value, ok, nil
}

// GetFilesByIDs returns the file records found, keyed by ID.
func (m *MemoryStore) GetFilesByIDs(ids []string) (map[string]domain.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]domain.File, len(ids))
	for _, id := range ids {
		if rec, ok := m.files[id]; ok {
			result[id] = rec.value
		}
	}
	return result, nil
}

// ListFilesByUser returns a user's files, newest first.
func (m *MemoryStore) ListFilesByUser(userID string) ([]domain.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := collect(m.files, func(f domain.File) bool { return f.UserID == userID })
	sortRecords(recs, func(f domain.File) time.Time { return f.UploadedAt }, false)
	return values(recs), nil
}

// ListFiles returns all files, newest first.
func (m *MemoryStore) ListFiles() ([]domain.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := collect(m.files, nil)
	sortRecords(recs, func(f domain.File) time.Time { return f.UploadedAt }, false)
	return values(recs), nil
}

// DeleteUserCascade removes the user's conversations with their messages and
// files, sweeps files still owned by the user, then removes the user.
func (m *MemoryStore) DeleteUserCascade(userID string) (domain.DeletionCounts, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var counts domain.DeletionCounts
	var storageIDs []string

	for convID, conv := range m.conversations {
		if conv.value.UserID != userID {
			continue
		}
		for msgID, msg := range m.messages {
			if msg.value.ConversationID == convID {
				delete(m.messages, msgID)
				counts.Messages++
			}
		}
		for fileID, f := range m.files {
			if f.value.ConversationID == convID {
				storageIDs = append(storageIDs, f.value.StorageID)
				delete(m.files, fileID)
				counts.Files++
			}
		}
		delete(m.conversations, convID)
		counts.Conversations++
	}

	for fileID, f := range m.files {
		if f.value.UserID == userID {
			storageIDs = append(storageIDs, f.value.StorageID)
			delete(m.files, fileID)
			counts.Files++
		}
	}

	delete(m.users, userID)
	return counts, storageIDs, nil
}

// Counts returns total record counts per collection.
func (m *MemoryStore) Counts() (StatCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return StatCounts{
		Users:         len(m.users),
		Conversations: len(m.conversations),
		Messages:      len(m.messages),
		Files:         len(m.files),
	}, nil
}

// CountsSince counts records created after the cutoff.
func (m *MemoryStore) CountsSince(cutoff time.Time) (StatCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out StatCounts
	for _, rec := range m.users {
		if rec.value.CreatedAt.After(cutoff) {
			out.Users++
		}
	}
	for _, rec := range m.conversations {
		if rec.value.CreatedAt.After(cutoff) {
			out.Conversations++
		}
	}
	for _, rec := range m.messages {
		if rec.value.CreatedAt.After(cutoff) {
			out.Messages++
		}
	}
	for _, rec := range m.files {
		if rec.value.UploadedAt.After(cutoff) {
			out.Files++
		}
	}
	return out, nil
}

func collect[T any](records map[string]memRecord[T], keep func(T) bool) []memRecord[T] {
	out := make([]memRecord[T], 0, len(records))
	for _, rec := range records {
		if keep == nil || keep(rec.value) {
			out = append(out, rec)
		}
	}
	return out
}

func sortRecords[T any](recs []memRecord[T], at func(T) time.Time, asc bool) {
	sort.Slice(recs, func(i, j int) bool {
		ti, tj := at(recs[i].value), at(recs[j].value)
		if !ti.Equal(tj) {
			if asc {
				return ti.Before(tj)
			}
			return ti.After(tj)
		}
		if asc {
			return recs[i].seq < recs[j].seq
		}
		return recs[i].seq > recs[j].seq
	})
}

func values[T any](recs []memRecord[T]) []T {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.value)
	}
	return out
}
