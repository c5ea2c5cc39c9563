package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainmessaging "learnhub/internal/domain/messaging"
)

type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection("conversations")}
}

func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participant_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_activity_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("conversations indexes: %w", err)
	}
	return nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainmessaging.ConversationID) (*domainmessaging.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *ConversationRepository) ByParticipantKey(ctx context.Context, key string) (*domainmessaging.Conversation, error) {
	return r.findOne(ctx, bson.M{"participant_key": key})
}

func (r *ConversationRepository) Insert(ctx context.Context, c *domainmessaging.Conversation) error {
	_, err := r.col.InsertOne(ctx, newConversationDocument(c))
	if mongo.IsDuplicateKeyError(err) {
		return domainmessaging.ErrDuplicateConversation
	}
	return err
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*domainmessaging.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_activity_at", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []conversationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainmessaging.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *ConversationRepository) Touch(ctx context.Context, id domainmessaging.ConversationID, lastMessage domainmessaging.MessageID, at time.Time) error {
	update := bson.M{
		"$set": bson.M{"last_message_id": string(lastMessage), "last_message_at": at.UTC()},
		"$max": bson.M{"last_activity_at": at.UTC()},
	}
	res, err := r.col.UpdateByID(ctx, string(id), update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainmessaging.ErrConversationNotFound
	}
	return nil
}

// Rewind is conditional on last_message_id so a newer send is never overwritten.
func (r *ConversationRepository) Rewind(ctx context.Context, id domainmessaging.ConversationID, removed, previous domainmessaging.MessageID, previousAt time.Time) error {
	filter := bson.M{"_id": string(id), "last_message_id": string(removed)}
	set := bson.M{"last_message_id": string(previous), "last_message_at": previousAt.UTC()}
	_, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": set})
	return err
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M) (*domainmessaging.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainmessaging.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

type contextDocument struct {
	Kind string `bson:"kind"`
	ID   string `bson:"id"`
}

type conversationDocument struct {
	ID             string           `bson:"_id"`
	Participants   []string         `bson:"participants"`
	ParticipantKey string           `bson:"participant_key"`
	CreatedBy      string           `bson:"created_by"`
	CreatedAt      time.Time        `bson:"created_at"`
	LastMessageID  string           `bson:"last_message_id,omitempty"`
	LastMessageAt  time.Time        `bson:"last_message_at,omitempty"`
	LastActivityAt time.Time        `bson:"last_activity_at"`
	Context        *contextDocument `bson:"context,omitempty"`
}

func newConversationDocument(c *domainmessaging.Conversation) conversationDocument {
	doc := conversationDocument{
		ID:             string(c.ID),
		Participants:   append([]string(nil), c.Participants...),
		ParticipantKey: c.ParticipantKey,
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.CreatedAt,
		LastMessageID:  string(c.LastMessageID),
		LastMessageAt:  c.LastMessageAt,
		LastActivityAt: c.LastActivityAt,
	}
	if c.Context != nil {
		doc.Context = &contextDocument{Kind: c.Context.Kind, ID: c.Context.ID}
	}
	return doc
}

func (d conversationDocument) toDomain() *domainmessaging.Conversation {
	c := &domainmessaging.Conversation{
		ID:             domainmessaging.ConversationID(d.ID),
		Participants:   d.Participants,
		ParticipantKey: d.ParticipantKey,
		CreatedBy:      d.CreatedBy,
		CreatedAt:      d.CreatedAt.UTC(),
		LastMessageID:  domainmessaging.MessageID(d.LastMessageID),
		LastMessageAt:  d.LastMessageAt.UTC(),
		LastActivityAt: d.LastActivityAt.UTC(),
	}
	if d.Context != nil {
		c.Context = &domainmessaging.ContextRef{Kind: d.Context.Kind, ID: d.Context.ID}
	}
	return c
}

var _ domainmessaging.ConversationRepository = (*ConversationRepository)(nil)
