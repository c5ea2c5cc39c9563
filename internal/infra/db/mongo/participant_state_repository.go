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

// ParticipantStateRepository stores one document per (conversation, user). Every write
// is a single-document atomic update filtered by that key.
type ParticipantStateRepository struct {
	col *mongo.Collection
}

func NewParticipantStateRepository(db *mongo.Database) *ParticipantStateRepository {
	return &ParticipantStateRepository{col: db.Collection("participant_states")}
}

func (r *ParticipantStateRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("participant_states indexes: %w", err)
	}
	return nil
}

func (r *ParticipantStateRepository) Ensure(ctx context.Context, conversationID domainmessaging.ConversationID, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(userIDs))
	for _, id := range userIDs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(stateFilter(domainmessaging.StateKey{ConversationID: conversationID, UserID: id})).
			SetUpdate(bson.M{"$setOnInsert": freshStateFields()}).
			SetUpsert(true))
	}
	return retryOnDuplicate(func() error {
		_, err := r.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		return err
	})
}

func (r *ParticipantStateRepository) Get(ctx context.Context, key domainmessaging.StateKey) (*domainmessaging.ParticipantState, error) {
	var doc stateDocument
	if err := r.col.FindOne(ctx, stateFilter(key)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainmessaging.ErrStateNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ParticipantStateRepository) ListForUser(ctx context.Context, userID string) (map[domainmessaging.ConversationID]domainmessaging.ParticipantState, error) {
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	var docs []stateDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make(map[domainmessaging.ConversationID]domainmessaging.ParticipantState, len(docs))
	for _, d := range docs {
		out[domainmessaging.ConversationID(d.ConversationID)] = *d.toDomain()
	}
	return out, nil
}

// IncrementUnread applies an independent $inc to each recipient row.
func (r *ParticipantStateRepository) IncrementUnread(ctx context.Context, conversationID domainmessaging.ConversationID, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(userIDs))
	for _, id := range userIDs {
		insert := freshStateFields()
		delete(insert, "unread_count")
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(stateFilter(domainmessaging.StateKey{ConversationID: conversationID, UserID: id})).
			SetUpdate(bson.M{"$inc": bson.M{"unread_count": 1}, "$setOnInsert": insert}).
			SetUpsert(true))
	}
	_, err := r.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (r *ParticipantStateRepository) DecrementUnread(ctx context.Context, key domainmessaging.StateKey) error {
	filter := stateFilter(key)
	filter["unread_count"] = bson.M{"$gt": 0}
	_, err := r.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"unread_count": -1}})
	return err
}

func (r *ParticipantStateRepository) ResetUnread(ctx context.Context, key domainmessaging.StateKey, at time.Time) error {
	insert := freshStateFields()
	delete(insert, "unread_count")
	delete(insert, "last_read_at")
	update := bson.M{
		"$set":         bson.M{"unread_count": 0},
		"$max":         bson.M{"last_read_at": at.UTC()},
		"$setOnInsert": insert,
	}
	return retryOnDuplicate(func() error {
		_, err := r.col.UpdateOne(ctx, stateFilter(key), update, options.Update().SetUpsert(true))
		return err
	})
}

func (r *ParticipantStateRepository) ApplyFlags(ctx context.Context, key domainmessaging.StateKey, update domainmessaging.FlagUpdate, now time.Time) (*domainmessaging.ParticipantState, error) {
	set := bson.M{}
	if update.Archived != nil {
		set["archived"] = *update.Archived
	}
	if update.Favorite != nil {
		set["favorite"] = *update.Favorite
	}
	if update.Deleted != nil {
		set["deleted"] = *update.Deleted
		if *update.Deleted {
			set["deleted_at"] = now.UTC()
		}
	}
	insert := freshStateFields()
	for k := range set {
		delete(insert, k)
	}
	ops := bson.M{"$setOnInsert": insert}
	if len(set) > 0 {
		ops["$set"] = set
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc stateDocument
	err := retryOnDuplicate(func() error {
		return r.col.FindOneAndUpdate(ctx, stateFilter(key), ops, opts).Decode(&doc)
	})
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ParticipantStateRepository) ClearDeleted(ctx context.Context, conversationID domainmessaging.ConversationID, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	filter := bson.M{"conversation_id": string(conversationID), "user_id": bson.M{"$in": userIDs}, "deleted": true}
	_, err := r.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"deleted": false}})
	return err
}

func stateFilter(key domainmessaging.StateKey) bson.M {
	return bson.M{"conversation_id": string(key.ConversationID), "user_id": key.UserID}
}

// freshStateFields are the defaults of a row created by an upsert.
func freshStateFields() bson.M {
	return bson.M{
		"archived":     false,
		"deleted":      false,
		"favorite":     false,
		"unread_count": int64(0),
		"last_read_at": time.Time{},
	}
}

type stateDocument struct {
	ConversationID string     `bson:"conversation_id"`
	UserID         string     `bson:"user_id"`
	Archived       bool       `bson:"archived"`
	Deleted        bool       `bson:"deleted"`
	DeletedAt      *time.Time `bson:"deleted_at,omitempty"`
	Favorite       bool       `bson:"favorite"`
	UnreadCount    int64      `bson:"unread_count"`
	LastReadAt     time.Time  `bson:"last_read_at"`
}

func (d stateDocument) toDomain() *domainmessaging.ParticipantState {
	s := &domainmessaging.ParticipantState{
		ConversationID: domainmessaging.ConversationID(d.ConversationID),
		UserID:         d.UserID,
		Archived:       d.Archived,
		Deleted:        d.Deleted,
		Favorite:       d.Favorite,
		UnreadCount:    d.UnreadCount,
	}
	if d.DeletedAt != nil {
		at := d.DeletedAt.UTC()
		s.DeletedAt = &at
	}
	if !d.LastReadAt.IsZero() {
		s.LastReadAt = d.LastReadAt.UTC()
	}
	return s
}

var _ domainmessaging.ParticipantStateRepository = (*ParticipantStateRepository)(nil)
