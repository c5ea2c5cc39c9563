package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"learnhub/internal/app/policies"
	domainmessaging "learnhub/internal/domain/messaging"
)

type BreakerSettings struct {
	Name        string
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// AttachmentStore trips after consecutive store failures and then fails fast with
// ErrAttachmentUnavailable until the timeout elapses.
type AttachmentStore struct {
	next policies.AttachmentStore
	cb   *gobreaker.CircuitBreaker
}

func NewAttachmentStore(next policies.AttachmentStore, settings BreakerSettings, logger *slog.Logger) *AttachmentStore {
	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	name := settings.Name
	if name == "" {
		name = "attachments"
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Client mistakes must not open the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, policies.ErrAttachmentRejected) || errors.Is(err, policies.ErrAttachmentTooLarge)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
			}
		},
	}
	return &AttachmentStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (s *AttachmentStore) Store(ctx context.Context, ownerID string, upload policies.Upload, allowed []string) (domainmessaging.Attachment, error) {
	res, err := s.cb.Execute(func() (any, error) {
		return s.next.Store(ctx, ownerID, upload, allowed)
	})
	if err != nil {
		return domainmessaging.Attachment{}, s.translate(err)
	}
	return res.(domainmessaging.Attachment), nil
}

func (s *AttachmentStore) Delete(ctx context.Context, path string) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.next.Delete(ctx, path)
	})
	return s.translate(err)
}

func (s *AttachmentStore) State() gobreaker.State {
	return s.cb.State()
}

func (s *AttachmentStore) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", policies.ErrAttachmentUnavailable, err)
	}
	return err
}

var _ policies.AttachmentStore = (*AttachmentStore)(nil)
