package chat

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/upload"
)

var (
	// errors
	ErrNotFound  = errors.New("conversation not found")
	ErrNotMember = errors.New("not a member of this conversation")

	errEmptyMessage = errors.New("a message needs text or attachments")
	errSelfOnly     = errors.New("a conversation needs at least one other member")
)

type (
	Repository interface {
		CreateConversation(ctx context.Context, conv Conversation) (Conversation, error)
		GetConversationByID(ctx context.Context, id string) (Conversation, error)
		// GetDirectConversation finds the direct conversation between two users.
		GetDirectConversation(ctx context.Context, userA, userB string) (Conversation, error)
		// QueryConversations lists the user's conversations, most recent activity first.
		QueryConversations(ctx context.Context, userID string) ([]Conversation, error)
		SetLastMessageAt(ctx context.Context, convID string, at time.Time) error

		CreateMessage(ctx context.Context, msg Message) (Message, error)
		// QueryMessages returns up to filter.Limit messages older than
		// filter.Before (all if zero), newest first.
		QueryMessages(ctx context.Context, convID string, filter MessageFilter) ([]Message, error)
		// MarkMessagesRead adds the user to ReadBy on all messages of the
		// conversation they have not read yet, and returns how many changed.
		MarkMessagesRead(ctx context.Context, convID, userID string) (int64, error)
		CountUnread(ctx context.Context, convID, userID string) (int64, error)
	}

	Service struct {
		repo     Repository
		notifier core.Notifier
	}
)

func NewService(repo Repository, notifier core.Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// Create opens a conversation. Direct conversations are deduplicated: the
// existing one between the pair is returned instead of a second copy.
func (svc *Service) Create(ctx context.Context, creatorID string, nc NewConversation) (Conversation, error) {
	members := dedupeMembers(creatorID, nc.MemberIDs)
	if len(members) < 2 {
		return Conversation{}, core.NewValidationError(errSelfOnly, core.FieldError{Field: "member_ids", Error: errSelfOnly.Error()})
	}

	if !nc.IsGroup {
		if len(members) != 2 {
			nc.IsGroup = true // three or more members is a group regardless
		} else if conv, err := svc.repo.GetDirectConversation(ctx, members[0], members[1]); err == nil {
			return conv, nil
		} else if err != ErrNotFound {
			return Conversation{}, err
		}
	}

	now := time.Now().UTC()
	conv := Conversation{
		Name:      nc.Name,
		IsGroup:   nc.IsGroup,
		MemberIDs: members,
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateConversation(ctx, conv)
}

func (svc *Service) List(ctx context.Context, userID string) ([]Conversation, error) {
	return svc.repo.QueryConversations(ctx, userID)
}

// Get returns the conversation if the user is a member.
func (svc *Service) Get(ctx context.Context, id, userID string) (Conversation, error) {
	conv, err := svc.repo.GetConversationByID(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	if !conv.HasMember(userID) {
		return Conversation{}, ErrNotMember
	}
	return conv, nil
}

// Send delivers a message to a conversation the sender belongs to and pushes
// a message.created event to every member.
func (svc *Service) Send(ctx context.Context, convID, senderID string, nm NewMessage, attachments []upload.Attachment) (Message, error) {
	conv, err := svc.Get(ctx, convID, senderID)
	if err != nil {
		return Message{}, err
	}
	if nm.Body == "" && len(attachments) == 0 {
		return Message{}, core.NewValidationError(errEmptyMessage, core.FieldError{Field: "body", Error: errEmptyMessage.Error()})
	}

	now := time.Now().UTC()
	msg := Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Body:           nm.Body,
		Attachments:    attachments,
		ReadBy:         []string{senderID},
		CreatedAt:      now,
	}
	msg, err = svc.repo.CreateMessage(ctx, msg)
	if err != nil {
		return Message{}, err
	}
	if err := svc.repo.SetLastMessageAt(ctx, conv.ID, now); err != nil {
		return Message{}, err
	}

	svc.notifier.Notify(core.Event{
		Type:       core.EventMessageCreated,
		Payload:    msg,
		Recipients: conv.MemberIDs,
	})
	return msg, nil
}

// Messages pages backwards through a conversation the user belongs to.
func (svc *Service) Messages(ctx context.Context, convID, userID string, filter MessageFilter) ([]Message, error) {
	if _, err := svc.Get(ctx, convID, userID); err != nil {
		return nil, err
	}
	filter.Clean()
	return svc.repo.QueryMessages(ctx, convID, filter)
}

// MarkRead marks every message of the conversation as read by the user.
func (svc *Service) MarkRead(ctx context.Context, convID, userID string) (int64, error) {
	if _, err := svc.Get(ctx, convID, userID); err != nil {
		return 0, err
	}
	return svc.repo.MarkMessagesRead(ctx, convID, userID)
}

func (svc *Service) CountUnread(ctx context.Context, convID, userID string) (int64, error) {
	if _, err := svc.Get(ctx, convID, userID); err != nil {
		return 0, err
	}
	return svc.repo.CountUnread(ctx, convID, userID)
}

// dedupeMembers returns the sorted member set including the creator.
func dedupeMembers(creatorID string, memberIDs []string) []string {
	seen := map[string]bool{creatorID: true}
	members := []string{creatorID}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}
