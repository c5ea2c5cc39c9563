package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/app/policies"
	domainmessaging "learnhub/internal/domain/messaging"
)

type flakyStore struct {
	err   error
	calls int
}

func (f *flakyStore) Store(context.Context, string, policies.Upload, []string) (domainmessaging.Attachment, error) {
	f.calls++
	if f.err != nil {
		return domainmessaging.Attachment{}, f.err
	}
	return domainmessaging.Attachment{Name: "a.pdf", Path: "mem://a.pdf"}, nil
}

func (f *flakyStore) Delete(context.Context, string) error {
	f.calls++
	return f.err
}

func TestBreakerOpensOnInfrastructureFailures(t *testing.T) {
	ctx := context.Background()
	next := &flakyStore{err: errors.New("minio timeout")}
	store := NewAttachmentStore(next, BreakerSettings{MaxFailures: 2, Timeout: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		_, err := store.Store(ctx, "u1", policies.Upload{}, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, policies.ErrAttachmentUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())

	_, err := store.Store(ctx, "u1", policies.Upload{}, nil)
	assert.ErrorIs(t, err, policies.ErrAttachmentUnavailable)
	assert.ErrorIs(t, store.Delete(ctx, "mem://a.pdf"), policies.ErrAttachmentUnavailable)
	assert.Equal(t, 2, next.calls)
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	ctx := context.Background()
	next := &flakyStore{err: policies.ErrAttachmentRejected}
	store := NewAttachmentStore(next, BreakerSettings{MaxFailures: 1, Timeout: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		_, err := store.Store(ctx, "u1", policies.Upload{}, nil)
		assert.ErrorIs(t, err, policies.ErrAttachmentRejected)
	}
	assert.Equal(t, gobreaker.StateClosed, store.State())

	next.err = nil
	att, err := store.Store(ctx, "u1", policies.Upload{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", att.Name)
}
