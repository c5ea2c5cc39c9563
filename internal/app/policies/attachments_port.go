package policies

import (
	"context"
	"errors"
	"io"

	domainmessaging "learnhub/internal/domain/messaging"
)

var (
	ErrAttachmentRejected    = errors.New("attachments: content type not allowed")
	ErrAttachmentUnavailable = errors.New("attachments: store unavailable")
	ErrAttachmentTooLarge    = errors.New("attachments: file exceeds the size limit")
)

// MessageAttachmentTypes is the allow-list handed to the store for message uploads.
var MessageAttachmentTypes = []string{
	"image/jpeg",
	"image/png",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.oasis.opendocument.text",
	"application/rtf",
}

// Upload is a raw file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentStore persists uploads and returns their descriptor. Size limits are its concern.
type AttachmentStore interface {
	Store(ctx context.Context, ownerID string, upload Upload, allowed []string) (domainmessaging.Attachment, error)
	Delete(ctx context.Context, path string) error
}
