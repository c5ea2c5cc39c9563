package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"learnhub/internal/app/policies"
	domainmessaging "learnhub/internal/domain/messaging"
	"learnhub/internal/infra/storage/mimecheck"
)

// Options configures the S3-compatible attachment bucket.
type Options struct {
	Endpoint      string
	UseSSL        bool
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	MaxBytes      int64
}

// AttachmentStore keeps attachments in a MinIO/S3 bucket. Descriptor paths are public URLs.
type AttachmentStore struct {
	bucket         string
	publicBaseURL  string
	maxBytes       int64
	client         *minio.Client
	logger         *slog.Logger
	bucketInitOnce sync.Once
	bucketInitErr  error
}

func NewAttachmentStore(opts Options, logger *slog.Logger) (*AttachmentStore, error) {
	cleanEndpoint := strings.TrimSpace(opts.Endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	minioClient, err := minio.New(parseEndpoint(cleanEndpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey), ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	base := strings.TrimSpace(opts.PublicBaseURL)
	if base == "" {
		base = cleanEndpoint
	}
	return &AttachmentStore{
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		maxBytes:      opts.MaxBytes,
		client:        minioClient,
		logger:        logger,
	}, nil
}

func (s *AttachmentStore) Store(ctx context.Context, ownerID string, upload policies.Upload, allowed []string) (domainmessaging.Attachment, error) {
	inspected, err := mimecheck.Inspect(upload, allowed)
	if err != nil {
		return domainmessaging.Attachment{}, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return domainmessaging.Attachment{}, fmt.Errorf("%w: %w", policies.ErrAttachmentUnavailable, err)
	}
	key := path.Join("attachments", ownerID, uuid.NewString(), inspected.Name)
	size := int64(-1)
	if upload.Size > 0 {
		size = upload.Size
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return domainmessaging.Attachment{}, policies.ErrAttachmentTooLarge
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, mimecheck.LimitReader(inspected.Body, s.maxBytes), size, minio.PutObjectOptions{
		ContentType: inspected.MimeType,
	})
	if err != nil {
		if errors.Is(err, policies.ErrAttachmentTooLarge) {
			return domainmessaging.Attachment{}, err
		}
		return domainmessaging.Attachment{}, fmt.Errorf("%w: put object: %w", policies.ErrAttachmentUnavailable, err)
	}
	publicURL := s.objectURL(key)
	if s.logger != nil {
		s.logger.Info("attachment stored", "bucket", s.bucket, "key", key, "size", info.Size)
	}
	return domainmessaging.Attachment{
		Name:     inspected.Name,
		Path:     publicURL,
		MimeType: inspected.MimeType,
		Size:     info.Size,
	}, nil
}

func (s *AttachmentStore) Delete(ctx context.Context, objectPath string) error {
	key := s.keyFor(objectPath)
	if key == "" {
		return fmt.Errorf("s3: path %q is not in bucket %s", objectPath, s.bucket)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3: remove object: %w", err)
	}
	return nil
}

func (s *AttachmentStore) ensureBucket(ctx context.Context) error {
	s.bucketInitOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.bucketInitErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			s.bucketInitErr = fmt.Errorf("s3: create bucket: %w", err)
			return
		}
		if err := s.allowPublicRead(ctx); err != nil {
			s.bucketInitErr = err
		}
	})
	return s.bucketInitErr
}

func (s *AttachmentStore) allowPublicRead(ctx context.Context) error {
	policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/attachments/*"]}]}`, s.bucket)
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		return fmt.Errorf("s3: set bucket policy: %w", err)
	}
	return nil
}

func (s *AttachmentStore) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, strings.TrimLeft(key, "/"))
}

// keyFor inverts objectURL; a bare object key is accepted as well.
func (s *AttachmentStore) keyFor(objectPath string) string {
	prefix := s.objectURL("")
	if strings.HasPrefix(objectPath, prefix) {
		return strings.TrimPrefix(objectPath, prefix)
	}
	if strings.HasPrefix(objectPath, "attachments/") {
		return objectPath
	}
	return ""
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ policies.AttachmentStore = (*AttachmentStore)(nil)
