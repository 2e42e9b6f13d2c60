package mongodb

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/chantio/chantio/core/chat"
)

type chatRepository struct {
	convs *mongo.Collection
	msgs  *mongo.Collection
}

var _ chat.Repository = (*chatRepository)(nil)

func NewChatRepository(db *mongo.Database) chat.Repository {
	return &chatRepository{
		convs: db.Collection(conversationsCollection),
		msgs:  db.Collection(messagesCollection),
	}
}

type conversationDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Name      string        `bson:"name,omitempty"`
	IsGroup   bool          `bson:"is_group"`
	MemberIDs []string      `bson:"member_ids"`
	// DirectKey uniquely identifies the member pair of a direct conversation;
	// the sparse unique index on it enforces one conversation per pair.
	DirectKey     string    `bson:"direct_key,omitempty"`
	CreatedBy     string    `bson:"created_by"`
	LastMessageAt time.Time `bson:"last_message_at,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

// directKey derives the pair key; MemberIDs arrive sorted.
func directKey(memberIDs []string) string {
	return strings.Join(memberIDs, "|")
}

func newConversationDoc(conv chat.Conversation) (conversationDoc, error) {
	doc := conversationDoc{
		Name:          conv.Name,
		IsGroup:       conv.IsGroup,
		MemberIDs:     conv.MemberIDs,
		CreatedBy:     conv.CreatedBy,
		LastMessageAt: conv.LastMessageAt,
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
	}
	if !conv.IsGroup {
		doc.DirectKey = directKey(conv.MemberIDs)
	}
	if conv.ID != "" {
		oid, err := oidFromHex(conv.ID, chat.ErrNotFound)
		if err != nil {
			return conversationDoc{}, err
		}
		doc.ID = oid
	}
	return doc, nil
}

func (doc conversationDoc) toConversation() chat.Conversation {
	return chat.Conversation{
		ID:            doc.ID.Hex(),
		Name:          doc.Name,
		IsGroup:       doc.IsGroup,
		MemberIDs:     doc.MemberIDs,
		CreatedBy:     doc.CreatedBy,
		LastMessageAt: doc.LastMessageAt,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

type messageDoc struct {
	ID             bson.ObjectID   `bson:"_id,omitempty"`
	ConversationID bson.ObjectID   `bson:"conversation_id"`
	SenderID       string          `bson:"sender_id"`
	Body           string          `bson:"body,omitempty"`
	Attachments    []attachmentDoc `bson:"attachments,omitempty"`
	ReadBy         []string        `bson:"read_by"`
	CreatedAt      time.Time       `bson:"created_at"`
}

func newMessageDoc(msg chat.Message) (messageDoc, error) {
	convID, err := oidFromHex(msg.ConversationID, chat.ErrNotFound)
	if err != nil {
		return messageDoc{}, err
	}
	doc := messageDoc{
		ConversationID: convID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		Attachments:    newAttachmentDocs(msg.Attachments),
		ReadBy:         msg.ReadBy,
		CreatedAt:      msg.CreatedAt,
	}
	if msg.ID != "" {
		oid, err := oidFromHex(msg.ID, chat.ErrNotFound)
		if err != nil {
			return messageDoc{}, err
		}
		doc.ID = oid
	}
	return doc, nil
}

func (doc messageDoc) toMessage() chat.Message {
	return chat.Message{
		ID:             doc.ID.Hex(),
		ConversationID: doc.ConversationID.Hex(),
		SenderID:       doc.SenderID,
		Body:           doc.Body,
		Attachments:    toAttachments(doc.Attachments),
		ReadBy:         doc.ReadBy,
		CreatedAt:      doc.CreatedAt,
	}
}

func (repo *chatRepository) CreateConversation(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	doc, err := newConversationDoc(conv)
	if err != nil {
		return chat.Conversation{}, err
	}
	res, err := repo.convs.InsertOne(ctx, doc)
	if err != nil {
		return chat.Conversation{}, errors.Wrap(err, "inserting conversation")
	}
	conv.ID = res.InsertedID.(bson.ObjectID).Hex()
	return conv, nil
}

func (repo *chatRepository) GetConversationByID(ctx context.Context, id string) (chat.Conversation, error) {
	oid, err := oidFromHex(id, chat.ErrNotFound)
	if err != nil {
		return chat.Conversation{}, err
	}
	return repo.findConversation(ctx, bson.M{"_id": oid})
}

func (repo *chatRepository) GetDirectConversation(ctx context.Context, userA, userB string) (chat.Conversation, error) {
	members := []string{userA, userB}
	if userB < userA {
		members[0], members[1] = userB, userA
	}
	return repo.findConversation(ctx, bson.M{"direct_key": directKey(members)})
}

func (repo *chatRepository) QueryConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	sort := bson.D{{Key: "last_message_at", Value: -1}, {Key: "created_at", Value: -1}}
	cursor, err := repo.convs.Find(ctx, bson.M{"member_ids": userID}, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Wrap(err, "finding conversations")
	}
	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding conversations")
	}
	convs := make([]chat.Conversation, 0, len(docs))
	for _, doc := range docs {
		convs = append(convs, doc.toConversation())
	}
	return convs, nil
}

func (repo *chatRepository) SetLastMessageAt(ctx context.Context, convID string, at time.Time) error {
	oid, err := oidFromHex(convID, chat.ErrNotFound)
	if err != nil {
		return err
	}
	res, err := repo.convs.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"last_message_at": at, "updated_at": at},
	})
	if err != nil {
		return errors.Wrap(err, "updating conversation")
	}
	if res.MatchedCount == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (repo *chatRepository) CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	doc, err := newMessageDoc(msg)
	if err != nil {
		return chat.Message{}, err
	}
	res, err := repo.msgs.InsertOne(ctx, doc)
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "inserting message")
	}
	msg.ID = res.InsertedID.(bson.ObjectID).Hex()
	return msg, nil
}

func (repo *chatRepository) QueryMessages(ctx context.Context, convID string, filter chat.MessageFilter) ([]chat.Message, error) {
	oid, err := oidFromHex(convID, chat.ErrNotFound)
	if err != nil {
		return nil, err
	}
	query := bson.M{"conversation_id": oid}
	if !filter.Before.IsZero() {
		query["created_at"] = bson.M{"$lt": filter.Before}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(filter.Limit))
	cursor, err := repo.msgs.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "finding messages")
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding messages")
	}
	msgs := make([]chat.Message, 0, len(docs))
	for _, doc := range docs {
		msgs = append(msgs, doc.toMessage())
	}
	return msgs, nil
}

func (repo *chatRepository) MarkMessagesRead(ctx context.Context, convID, userID string) (int64, error) {
	oid, err := oidFromHex(convID, chat.ErrNotFound)
	if err != nil {
		return 0, err
	}
	res, err := repo.msgs.UpdateMany(ctx,
		bson.M{"conversation_id": oid, "read_by": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "marking messages read")
	}
	return res.ModifiedCount, nil
}

func (repo *chatRepository) CountUnread(ctx context.Context, convID, userID string) (int64, error) {
	oid, err := oidFromHex(convID, chat.ErrNotFound)
	if err != nil {
		return 0, err
	}
	n, err := repo.msgs.CountDocuments(ctx, bson.M{
		"conversation_id": oid,
		"read_by":         bson.M{"$ne": userID},
	})
	if err != nil {
		return 0, errors.Wrap(err, "counting unread messages")
	}
	return n, nil
}

func (repo *chatRepository) findConversation(ctx context.Context, filter bson.M) (chat.Conversation, error) {
	var doc conversationDoc
	err := repo.convs.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return chat.Conversation{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, errors.Wrap(err, "finding conversation")
	}
	return doc.toConversation(), nil
}
