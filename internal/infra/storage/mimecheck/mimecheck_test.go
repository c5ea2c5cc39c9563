package mimecheck

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/app/policies"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestInspectTrustsContentOverDeclaredType(t *testing.T) {
	got, err := Inspect(policies.Upload{Filename: "photo.png", ContentType: "application/pdf", Body: bytes.NewReader(png)}, policies.MessageAttachmentTypes)
	require.NoError(t, err)
	assert.Equal(t, "image/png", got.MimeType)
	assert.Equal(t, "photo.png", got.Name)

	replay, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, png, replay)

	_, err = Inspect(policies.Upload{Filename: "fake.pdf", ContentType: "application/pdf", Body: strings.NewReader("plain text pretending")}, policies.MessageAttachmentTypes)
	assert.ErrorIs(t, err, policies.ErrAttachmentRejected)
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":           "report.pdf",
		"../../etc/passwd.png": "passwd.png",
		`C:\Users\x\notes.pdf`: "notes.pdf",
		"   ":                  "attachment.pdf",
	}
	for in, want := range cases {
		assert.Equal(t, want, SafeName(in, ".pdf"), in)
	}
}

func TestLimitReader(t *testing.T) {
	data, err := io.ReadAll(LimitReader(strings.NewReader("12345"), 5))
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	_, err = io.ReadAll(LimitReader(strings.NewReader("123456"), 5))
	assert.ErrorIs(t, err, policies.ErrAttachmentTooLarge)

	data, err = io.ReadAll(LimitReader(strings.NewReader("unbounded"), 0))
	require.NoError(t, err)
	assert.Equal(t, "unbounded", string(data))
}
