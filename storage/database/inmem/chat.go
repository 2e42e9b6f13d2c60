package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/chantio/chantio/core/chat"
)

type chatRepository struct {
	db *Database
}

var _ chat.Repository = (*chatRepository)(nil)

func NewChatRepository(db *Database) chat.Repository {
	return &chatRepository{db: db}
}

func (repo *chatRepository) CreateConversation(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	conv.ID = newID()
	repo.db.conversations[conv.ID] = conv
	return conv, nil
}

func (repo *chatRepository) GetConversationByID(ctx context.Context, id string) (chat.Conversation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if conv, ok := repo.db.conversations[id]; ok {
		return conv, nil
	}
	return chat.Conversation{}, chat.ErrNotFound
}

func (repo *chatRepository) GetDirectConversation(ctx context.Context, userA, userB string) (chat.Conversation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, conv := range repo.db.conversations {
		if conv.IsGroup || len(conv.MemberIDs) != 2 {
			continue
		}
		if conv.HasMember(userA) && conv.HasMember(userB) {
			return conv, nil
		}
	}
	return chat.Conversation{}, chat.ErrNotFound
}

func (repo *chatRepository) QueryConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	repo.db.mu.RLock()
	convs := make([]chat.Conversation, 0)
	for _, conv := range repo.db.conversations {
		if conv.HasMember(userID) {
			convs = append(convs, conv)
		}
	}
	repo.db.mu.RUnlock()

	sort.Slice(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		at, bt := a.LastMessageAt, b.LastMessageAt
		if at.IsZero() {
			at = a.CreatedAt
		}
		if bt.IsZero() {
			bt = b.CreatedAt
		}
		return at.After(bt)
	})
	return convs, nil
}

func (repo *chatRepository) SetLastMessageAt(ctx context.Context, convID string, at time.Time) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	conv, ok := repo.db.conversations[convID]
	if !ok {
		return chat.ErrNotFound
	}
	conv.LastMessageAt = at
	conv.UpdatedAt = at
	repo.db.conversations[convID] = conv
	return nil
}

func (repo *chatRepository) CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	msg.ID = newID()
	repo.db.messages[msg.ID] = msg
	return msg, nil
}

func (repo *chatRepository) QueryMessages(ctx context.Context, convID string, filter chat.MessageFilter) ([]chat.Message, error) {
	repo.db.mu.RLock()
	msgs := make([]chat.Message, 0)
	for _, msg := range repo.db.messages {
		if msg.ConversationID != convID {
			continue
		}
		if !filter.Before.IsZero() && !msg.CreatedAt.Before(filter.Before) {
			continue
		}
		msgs = append(msgs, msg)
	}
	repo.db.mu.RUnlock()

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) }) // newest first
	if filter.Limit > 0 && len(msgs) > filter.Limit {
		msgs = msgs[:filter.Limit]
	}
	return msgs, nil
}

func (repo *chatRepository) MarkMessagesRead(ctx context.Context, convID, userID string) (int64, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int64
	for id, msg := range repo.db.messages {
		if msg.ConversationID != convID || msg.IsReadBy(userID) {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, userID)
		repo.db.messages[id] = msg
		n++
	}
	return n, nil
}

func (repo *chatRepository) CountUnread(ctx context.Context, convID, userID string) (int64, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int64
	for _, msg := range repo.db.messages {
		if msg.ConversationID == convID && !msg.IsReadBy(userID) {
			n++
		}
	}
	return n, nil
}
