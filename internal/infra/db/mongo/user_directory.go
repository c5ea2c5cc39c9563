package mongo

import (
	"context"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainuser "learnhub/internal/domain/user"
)

// UserDirectory reads the profile projection that the identity service maintains.
type UserDirectory struct {
	col *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{col: db.Collection("user_profiles")}
}

func (d *UserDirectory) EnsureIndexes(ctx context.Context) error {
	_, err := d.col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "display_name", Value: 1}}})
	if err != nil {
		return fmt.Errorf("user_profiles indexes: %w", err)
	}
	return nil
}

func (d *UserDirectory) ByIDs(ctx context.Context, ids []domainuser.ID) (map[domainuser.ID]domainuser.Profile, error) {
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}
	cur, err := d.col.Find(ctx, bson.M{"_id": bson.M{"$in": raw}})
	if err != nil {
		return nil, err
	}
	var docs []profileDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make(map[domainuser.ID]domainuser.Profile, len(docs))
	for _, doc := range docs {
		p := doc.toDomain()
		out[p.ID] = p
	}
	return out, nil
}

func (d *UserDirectory) Search(ctx context.Context, query string, limit int) ([]domainuser.Profile, error) {
	quoted := regexp.QuoteMeta(query)
	filter := bson.M{"$or": bson.A{
		bson.M{"display_name": primitive.Regex{Pattern: quoted, Options: "i"}},
		bson.M{"_id": primitive.Regex{Pattern: "^" + quoted, Options: "i"}},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "display_name", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := d.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []profileDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domainuser.Profile, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, nil
}

// Put upserts a profile. It is used to seed fixtures and by the profile-update consumer.
func (d *UserDirectory) Put(ctx context.Context, p domainuser.Profile) error {
	if p.ID == "" {
		return domainuser.ErrIDRequired
	}
	doc := profileDocument{ID: string(p.ID), DisplayName: p.DisplayName, AvatarURL: p.AvatarURL, Role: string(p.Role)}
	_, err := d.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

type profileDocument struct {
	ID          string `bson:"_id"`
	DisplayName string `bson:"display_name"`
	AvatarURL   string `bson:"avatar_url,omitempty"`
	Role        string `bson:"role"`
}

func (d profileDocument) toDomain() domainuser.Profile {
	return domainuser.Profile{
		ID:          domainuser.ID(d.ID),
		DisplayName: d.DisplayName,
		AvatarURL:   d.AvatarURL,
		Role:        domainuser.Role(d.Role),
	}
}

var _ domainuser.Directory = (*UserDirectory)(nil)
