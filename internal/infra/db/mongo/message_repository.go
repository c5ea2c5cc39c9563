package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainmessaging "learnhub/internal/domain/messaging"
)

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection("messages")}
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "recipients", Value: 1}, {Key: "read_by", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("messages indexes: %w", err)
	}
	return nil
}

func (r *MessageRepository) Insert(ctx context.Context, m *domainmessaging.Message) error {
	_, err := r.col.InsertOne(ctx, newMessageDocument(m))
	return err
}

func (r *MessageRepository) ByID(ctx context.Context, id domainmessaging.MessageID) (*domainmessaging.Message, error) {
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainmessaging.ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *MessageRepository) Delete(ctx context.Context, id domainmessaging.MessageID) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	return err
}

func (r *MessageRepository) RemoveRecipient(ctx context.Context, id domainmessaging.MessageID, userID string) (int, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc messageDocument
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": string(id)}, bson.M{"$pull": bson.M{"recipients": userID}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, domainmessaging.ErrMessageNotFound
		}
		return 0, err
	}
	return len(doc.Recipients), nil
}

func (r *MessageRepository) Latest(ctx context.Context, conversationID domainmessaging.ConversationID, scope domainmessaging.VisibilityScope, limit int) ([]*domainmessaging.Message, error) {
	filter := bson.M{
		"conversation_id": string(conversationID),
		"$or":             participantClause(scope.UserID),
	}
	if !scope.HiddenBefore.IsZero() {
		filter["created_at"] = bson.M{"$gte": scope.HiddenBefore.UTC()}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *MessageRepository) LastVisible(ctx context.Context, conversationID domainmessaging.ConversationID, scope domainmessaging.VisibilityScope) (*domainmessaging.Message, error) {
	items, err := r.Latest(ctx, conversationID, scope, 1)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (r *MessageRepository) MarkReadFor(ctx context.Context, conversationID domainmessaging.ConversationID, userID string, at time.Time) (int64, error) {
	filter := bson.M{"conversation_id": string(conversationID), "recipients": userID, "read_by": bson.M{"$ne": userID}}
	res, err := r.col.UpdateMany(ctx, filter, readReceipt(userID, at))
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// MarkOneRead is conditional on the missing receipt, so only one concurrent call per user flips it.
func (r *MessageRepository) MarkOneRead(ctx context.Context, id domainmessaging.MessageID, userID string, at time.Time) (bool, error) {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": string(id), "recipients": userID, "read_by": bson.M{"$ne": userID}}, readReceipt(userID, at))
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// readReceipt adds the user's receipt; $min keeps read_at at the first receipt.
func readReceipt(userID string, at time.Time) bson.M {
	return bson.M{
		"$addToSet": bson.M{"read_by": userID},
		"$set":      bson.M{"read": true},
		"$min":      bson.M{"read_at": at.UTC()},
	}
}

func (r *MessageRepository) Search(ctx context.Context, scope domainmessaging.SearchScope, query string, limit int) ([]*domainmessaging.Message, error) {
	if len(scope.Conversations) == 0 {
		return nil, nil
	}
	perConversation := make(bson.A, 0, len(scope.Conversations))
	for id, boundary := range scope.Conversations {
		clause := bson.M{"conversation_id": string(id)}
		if !boundary.IsZero() {
			clause["created_at"] = bson.M{"$gte": boundary.UTC()}
		}
		perConversation = append(perConversation, clause)
	}
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{"$and": bson.A{
		bson.M{"$or": perConversation},
		bson.M{"$or": participantClause(scope.UserID)},
		bson.M{"$or": bson.A{bson.M{"content": pattern}, bson.M{"attachment.name": pattern}}},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *MessageRepository) AddReaction(ctx context.Context, id domainmessaging.MessageID, reaction domainmessaging.Reaction) error {
	doc := reactionDocument{UserID: reaction.UserID, Symbol: reaction.Symbol}
	res, err := r.col.UpdateByID(ctx, string(id), bson.M{"$addToSet": bson.M{"reactions": doc}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainmessaging.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) RemoveReaction(ctx context.Context, id domainmessaging.MessageID, reaction domainmessaging.Reaction) (bool, error) {
	pull := bson.M{"reactions": bson.M{"user_id": reaction.UserID, "symbol": reaction.Symbol}}
	res, err := r.col.UpdateByID(ctx, string(id), bson.M{"$pull": pull})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, domainmessaging.ErrMessageNotFound
	}
	return res.ModifiedCount > 0, nil
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainmessaging.Message, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainmessaging.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// participantClause matches messages the user sent or still receives.
func participantClause(userID string) bson.A {
	return bson.A{bson.M{"sender_id": userID}, bson.M{"recipients": userID}}
}

type attachmentDocument struct {
	Name     string `bson:"name"`
	Path     string `bson:"path"`
	MimeType string `bson:"mime_type"`
	Size     int64  `bson:"size"`
}

type reactionDocument struct {
	UserID string `bson:"user_id"`
	Symbol string `bson:"symbol"`
}

type messageDocument struct {
	ID             string              `bson:"_id"`
	ConversationID string              `bson:"conversation_id"`
	SenderID       string              `bson:"sender_id"`
	Recipients     []string            `bson:"recipients"`
	Content        string              `bson:"content"`
	Attachment     *attachmentDocument `bson:"attachment,omitempty"`
	CreatedAt      time.Time           `bson:"created_at"`
	Read           bool                `bson:"read"`
	ReadAt         *time.Time          `bson:"read_at,omitempty"`
	ReadBy         []string            `bson:"read_by"`
	Reactions      []reactionDocument  `bson:"reactions"`
}

func newMessageDocument(m *domainmessaging.Message) messageDocument {
	doc := messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       m.SenderID,
		Recipients:     append([]string{}, m.Recipients...),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.UTC(),
		Read:           m.Read,
		ReadAt:         m.ReadAt,
		ReadBy:         append([]string{}, m.ReadBy...),
		Reactions:      []reactionDocument{},
	}
	if m.Attachment != nil {
		doc.Attachment = &attachmentDocument{
			Name:     m.Attachment.Name,
			Path:     m.Attachment.Path,
			MimeType: m.Attachment.MimeType,
			Size:     m.Attachment.Size,
		}
	}
	for _, r := range m.Reactions {
		doc.Reactions = append(doc.Reactions, reactionDocument{UserID: r.UserID, Symbol: r.Symbol})
	}
	return doc
}

func (d messageDocument) toDomain() *domainmessaging.Message {
	m := &domainmessaging.Message{
		ID:             domainmessaging.MessageID(d.ID),
		ConversationID: domainmessaging.ConversationID(d.ConversationID),
		SenderID:       d.SenderID,
		Recipients:     d.Recipients,
		Content:        d.Content,
		CreatedAt:      d.CreatedAt.UTC(),
		Read:           d.Read,
		ReadBy:         d.ReadBy,
	}
	if d.ReadAt != nil {
		at := d.ReadAt.UTC()
		m.ReadAt = &at
	}
	if d.Attachment != nil {
		m.Attachment = &domainmessaging.Attachment{
			Name:     d.Attachment.Name,
			Path:     d.Attachment.Path,
			MimeType: d.Attachment.MimeType,
			Size:     d.Attachment.Size,
		}
	}
	for _, r := range d.Reactions {
		m.Reactions = append(m.Reactions, domainmessaging.Reaction{UserID: r.UserID, Symbol: r.Symbol})
	}
	return m
}

var _ domainmessaging.MessageRepository = (*MessageRepository)(nil)
