package mimecheck

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"learnhub/internal/app/policies"
)

// headerSize matches the amount of data mimetype inspects by default.
const headerSize = 3072

// Inspected is an upload whose type was detected from its content.
type Inspected struct {
	Name     string
	MimeType string
	Body     io.Reader
}

// Inspect sniffs the upload content and enforces the allow-list. The declared
// content type is ignored; only the bytes decide. Body replays the full stream.
func Inspect(upload policies.Upload, allowed []string) (Inspected, error) {
	if upload.Body == nil {
		return Inspected{}, fmt.Errorf("%w: empty upload", policies.ErrAttachmentRejected)
	}
	header := make([]byte, headerSize)
	n, err := io.ReadFull(upload.Body, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Inspected{}, err
	}
	header = header[:n]
	if n == 0 {
		return Inspected{}, fmt.Errorf("%w: empty upload", policies.ErrAttachmentRejected)
	}
	detected := mimetype.Detect(header)
	if !Allowed(detected, allowed) {
		return Inspected{}, fmt.Errorf("%w: %s", policies.ErrAttachmentRejected, detected.String())
	}
	return Inspected{
		Name:     SafeName(upload.Filename, detected.Extension()),
		MimeType: baseType(detected.String()),
		Body:     io.MultiReader(bytes.NewReader(header), upload.Body),
	}, nil
}

// Allowed reports whether the detected type or one of its aliases is allow-listed.
func Allowed(detected *mimetype.MIME, allowed []string) bool {
	for _, a := range allowed {
		if detected.Is(a) {
			return true
		}
	}
	return false
}

// LimitReader fails with ErrAttachmentTooLarge once more than max bytes are read.
func LimitReader(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return &limitedReader{r: r, left: max}
}

type limitedReader struct {
	r    io.Reader
	left int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.left < 0 {
		return 0, policies.ErrAttachmentTooLarge
	}
	if int64(len(p)) > l.left+1 {
		p = p[:l.left+1]
	}
	n, err := l.r.Read(p)
	l.left -= int64(n)
	if l.left < 0 {
		return n, policies.ErrAttachmentTooLarge
	}
	return n, err
}

// SafeName strips directories from a client filename and falls back to a generic name.
func SafeName(filename, ext string) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "attachment" + ext
	}
	return name
}

func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		return strings.TrimSpace(mime[:i])
	}
	return mime
}
