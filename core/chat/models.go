package chat

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/upload"
)

// Conversation groups users exchanging messages. Direct conversations have
// exactly two members and are unique per pair; group conversations are named.
type Conversation struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	IsGroup       bool      `json:"is_group"`
	MemberIDs     []string  `json:"member_ids"`
	CreatedBy     string    `json:"created_by"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (c *Conversation) HasMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message carries text, attachments, or both - never neither.
type Message struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id"`
	SenderID       string              `json:"sender_id"`
	Body           string              `json:"body,omitempty"`
	Attachments    []upload.Attachment `json:"attachments,omitempty"`
	ReadBy         []string            `json:"read_by"`
	CreatedAt      time.Time           `json:"created_at"` // UTC
}

func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// NewConversation contains information needed to open a conversation.
// The creator is always a member, listed or not.
type NewConversation struct {
	Name      string   `json:"name" validate:"required_if=IsGroup true"`
	IsGroup   bool     `json:"is_group"`
	MemberIDs []string `json:"member_ids" validate:"required,min=1"`
}

func (nc *NewConversation) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// NewMessage is the text part of a message; attachments arrive as multipart
// files and are run through the upload pipeline first.
type NewMessage struct {
	Body string `json:"body" form:"body"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Body = core.CleanString(nm.Body)
	return validate.Struct(nm)
}

// MessageFilter pages backwards through a conversation's messages.
type MessageFilter struct {
	Before time.Time `query:"before"`
	Limit  int       `query:"limit"`
}

const defaultMessageLimit = 50

func (mf *MessageFilter) Clean() {
	if mf.Limit <= 0 || mf.Limit > 200 {
		mf.Limit = defaultMessageLimit
	}
}
