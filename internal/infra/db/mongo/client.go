package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Client struct {
	DB *mongo.Database
}

func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// indexed is implemented by every store that owns a collection.
type indexed interface {
	EnsureIndexes(ctx context.Context) error
}

// EnsureIndexes creates the indexes of every store. Uniqueness of conversations and
// participant states depends on them, so failures are fatal at startup.
func EnsureIndexes(ctx context.Context, stores ...indexed) error {
	var errs []error
	for _, s := range stores {
		if err := s.EnsureIndexes(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// retryOnDuplicate repeats an upsert once when two writers race to create the same row.
func retryOnDuplicate(fn func() error) error {
	err := fn()
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return fn()
	}
	return err
}
