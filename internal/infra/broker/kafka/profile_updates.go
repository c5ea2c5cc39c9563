package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	"learnhub/internal/app/policies"
	domainuser "learnhub/internal/domain/user"
)

// ProfileUpdatesTopic carries CloudEvents emitted by the identity service.
const ProfileUpdatesTopic = "users.events.v1"

const profileUpdatedType = "user.profile_updated.v1"

var ErrMalformedEvent = errors.New("kafka: malformed profile event")

// Deduper remembers which events were handled.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// ProfileSink stores the updated profile locally, when the directory is a local projection.
type ProfileSink interface {
	Put(ctx context.Context, p domainuser.Profile) error
}

// ProfileUpdateHandler keeps cached profile summaries fresh when users edit their profile.
type ProfileUpdateHandler struct {
	Inbox       Deduper
	Invalidator policies.ProfileInvalidator
	Sink        ProfileSink
	Logger      *slog.Logger
}

type profileEnvelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type profileData struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Role        string `json:"role"`
}

func (h *ProfileUpdateHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var env profileEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type != profileUpdatedType {
		return nil
	}
	var data profileData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(env.ID) == "" || strings.TrimSpace(data.UserID) == "" {
		return ErrMalformedEvent
	}
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, env.ID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}
	if err := h.apply(ctx, data); err != nil {
		if h.Inbox != nil {
			if ferr := h.Inbox.Forget(ctx, env.ID); ferr != nil {
				return errors.Join(err, ferr)
			}
		}
		return err
	}
	if h.Logger != nil {
		h.Logger.Info("profile cache refreshed", "user_id", data.UserID, "event_id", env.ID)
	}
	return nil
}

func (h *ProfileUpdateHandler) apply(ctx context.Context, data profileData) error {
	id := domainuser.ID(strings.TrimSpace(data.UserID))
	if h.Sink != nil {
		profile := domainuser.Profile{ID: id, DisplayName: data.DisplayName, AvatarURL: data.AvatarURL, Role: domainuser.Role(data.Role)}
		if err := h.Sink.Put(ctx, profile); err != nil {
			return err
		}
	}
	if h.Invalidator != nil {
		return h.Invalidator.Invalidate(ctx, id)
	}
	return nil
}

var _ MessageHandler = (*ProfileUpdateHandler)(nil)
