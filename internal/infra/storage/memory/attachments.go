package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"learnhub/internal/app/policies"
	domainmessaging "learnhub/internal/domain/messaging"
	"learnhub/internal/infra/storage/mimecheck"
)

// AttachmentStore keeps uploaded files in memory. Paths look like "memory://<owner>/<id>/<name>".
type AttachmentStore struct {
	MaxBytes int64

	mu    sync.RWMutex
	files map[string][]byte
}

func NewAttachmentStore(maxBytes int64) *AttachmentStore {
	return &AttachmentStore{MaxBytes: maxBytes, files: make(map[string][]byte)}
}

func (s *AttachmentStore) Store(ctx context.Context, ownerID string, upload policies.Upload, allowed []string) (domainmessaging.Attachment, error) {
	inspected, err := mimecheck.Inspect(upload, allowed)
	if err != nil {
		return domainmessaging.Attachment{}, err
	}
	data, err := io.ReadAll(mimecheck.LimitReader(inspected.Body, s.MaxBytes))
	if err != nil {
		return domainmessaging.Attachment{}, err
	}
	path := fmt.Sprintf("memory://%s/%s/%s", ownerID, uuid.NewString(), inspected.Name)
	s.mu.Lock()
	s.files[path] = data
	s.mu.Unlock()
	return domainmessaging.Attachment{
		Name:     inspected.Name,
		Path:     path,
		MimeType: inspected.MimeType,
		Size:     int64(len(data)),
	}, nil
}

func (s *AttachmentStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
	return nil
}

// Has reports whether a file is still stored under path.
func (s *AttachmentStore) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[path]
	return ok
}

var _ policies.AttachmentStore = (*AttachmentStore)(nil)
