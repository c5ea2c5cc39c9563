package mongo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"learnhub/internal/app/policies"
	domainmessaging "learnhub/internal/domain/messaging"
	"learnhub/internal/infra/storage/mimecheck"
)

const gridFSScheme = "gridfs://"

// AttachmentStore keeps message attachments in a GridFS bucket next to the messages.
type AttachmentStore struct {
	bucket   *gridfs.Bucket
	maxBytes int64
}

func NewAttachmentStore(db *mongo.Database, maxBytes int64) (*AttachmentStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("attachments"))
	if err != nil {
		return nil, fmt.Errorf("gridfs bucket: %w", err)
	}
	return &AttachmentStore{bucket: bucket, maxBytes: maxBytes}, nil
}

func (s *AttachmentStore) Store(ctx context.Context, ownerID string, upload policies.Upload, allowed []string) (domainmessaging.Attachment, error) {
	inspected, err := mimecheck.Inspect(upload, allowed)
	if err != nil {
		return domainmessaging.Attachment{}, err
	}
	counter := &countingReader{r: mimecheck.LimitReader(inspected.Body, s.maxBytes)}
	meta := options.GridFSUpload().SetMetadata(bson.M{"owner_id": ownerID, "mime_type": inspected.MimeType})
	id, err := s.bucket.UploadFromStream(inspected.Name, counter, meta)
	if err != nil {
		if errors.Is(err, policies.ErrAttachmentTooLarge) {
			return domainmessaging.Attachment{}, err
		}
		return domainmessaging.Attachment{}, fmt.Errorf("%w: %w", policies.ErrAttachmentUnavailable, err)
	}
	return domainmessaging.Attachment{
		Name:     inspected.Name,
		Path:     gridFSScheme + id.Hex(),
		MimeType: inspected.MimeType,
		Size:     counter.n,
	}, nil
}

func (s *AttachmentStore) Delete(ctx context.Context, path string) error {
	oid, err := primitive.ObjectIDFromHex(strings.TrimPrefix(path, gridFSScheme))
	if err != nil {
		return fmt.Errorf("gridfs: bad path %q: %w", path, err)
	}
	if err := s.bucket.DeleteContext(ctx, oid); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return err
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ policies.AttachmentStore = (*AttachmentStore)(nil)
