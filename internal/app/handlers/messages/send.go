package messages

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/dto"
	"learnhub/internal/app/handlers/support"
	"learnhub/internal/app/outbox"
	"learnhub/internal/app/policies"
	"learnhub/internal/app/services/registry"
	domainmessaging "learnhub/internal/domain/messaging"
	"learnhub/internal/domain/shared/events"
)

const sendMessageKey = "messages.send"

var ErrTargetRequired = errors.New("messages: conversation_id or recipient_id is required")

// SendMessageCommand posts into an existing conversation, or into the two-party
// conversation with RecipientID when no ConversationID is given.
type SendMessageCommand struct {
	SenderID       string
	ConversationID string
	RecipientID    string
	Content        string
	Upload         *policies.Upload
	RequestKey     string
}

func (c SendMessageCommand) Key() string   { return sendMessageKey }
func (c SendMessageCommand) Actor() string { return c.SenderID }

func (c SendMessageCommand) Validate() error {
	if strings.TrimSpace(c.Content) == "" && c.Upload == nil {
		return domainmessaging.ErrEmptyMessage
	}
	if strings.TrimSpace(c.ConversationID) == "" && strings.TrimSpace(c.RecipientID) == "" {
		return ErrTargetRequired
	}
	return nil
}

// IdempotencyKey scopes client keys per sender so two users cannot collide.
func (c SendMessageCommand) IdempotencyKey() string {
	if c.RequestKey == "" {
		return ""
	}
	return sendMessageKey + ":" + c.SenderID + ":" + c.RequestKey
}

func (c SendMessageCommand) ResultPrototype() any { return &dto.Message{} }

type SendMessageHandler struct {
	Registry    *registry.Service
	Messages    domainmessaging.MessageRepository
	Attachments policies.AttachmentStore
	Events      outbox.Publisher
	IDs         func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (dto.Message, error) {
	if err := cmd.Validate(); err != nil {
		return dto.Message{}, err
	}
	var conv *domainmessaging.Conversation
	if id := strings.TrimSpace(cmd.ConversationID); id != "" {
		found, err := h.Registry.Require(ctx, cmd.SenderID, domainmessaging.ConversationID(id))
		if err != nil {
			return dto.Message{}, err
		}
		conv = found
	}

	// The attachment is stored before any conversation is created so a rejected
	// upload leaves no new conversation behind.
	var attachment *domainmessaging.Attachment
	if cmd.Upload != nil {
		if h.Attachments == nil {
			return dto.Message{}, policies.ErrAttachmentUnavailable
		}
		stored, err := h.Attachments.Store(ctx, cmd.SenderID, *cmd.Upload, policies.MessageAttachmentTypes)
		if err != nil {
			return dto.Message{}, err
		}
		attachment = &stored
	}

	if conv == nil {
		created, _, err := h.Registry.CreateOrGet(ctx, cmd.SenderID, []string{cmd.RecipientID}, nil)
		if err != nil {
			h.dropAttachment(ctx, attachment)
			return dto.Message{}, err
		}
		conv = created
	}
	profiles, err := support.LoadProfiles(ctx, h.Registry.Directory, conv.Participants)
	if err != nil {
		h.dropAttachment(ctx, attachment)
		return dto.Message{}, err
	}

	now := support.Clock(h.Now)
	msg, err := domainmessaging.NewMessage(domainmessaging.NewMessageParams{
		ID:           domainmessaging.MessageID(support.NewID(h.IDs)),
		Conversation: conv,
		SenderID:     cmd.SenderID,
		Content:      cmd.Content,
		Attachment:   attachment,
		Now:          now,
	})
	if err != nil {
		h.dropAttachment(ctx, attachment)
		return dto.Message{}, err
	}
	if err := h.Messages.Insert(ctx, msg); err != nil {
		h.dropAttachment(ctx, attachment)
		return dto.Message{}, err
	}
	if err := h.fanOut(ctx, conv, msg); err != nil {
		h.compensate(ctx, conv, msg)
		return dto.Message{}, err
	}

	var batch events.Batch
	batch.Add(domainmessaging.MessageSent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		SenderID:       msg.SenderID,
		Recipients:     append([]string(nil), msg.Recipients...),
		HasAttachment:  msg.Attachment != nil,
		At:             now,
	})
	h.Events.Publish(ctx, &batch)

	if h.Logger != nil {
		h.Logger.Info("message sent", "message_id", msg.ID, "conversation_id", conv.ID, "recipients", len(msg.Recipients), "attachment", msg.Attachment != nil)
	}
	return dto.MapMessage(msg, profiles), nil
}

// fanOut applies the conversation and participant side effects of an appended message.
// The sender's own deleted flag is cleared too; every deletion boundary is kept.
// The unread increment runs last because it is the one step compensation cannot undo.
func (h *SendMessageHandler) fanOut(ctx context.Context, conv *domainmessaging.Conversation, msg *domainmessaging.Message) error {
	if err := h.Registry.Conversations.Touch(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		return err
	}
	reopened := append([]string{msg.SenderID}, msg.Recipients...)
	if err := h.Registry.States.ClearDeleted(ctx, conv.ID, reopened); err != nil {
		return err
	}
	if len(msg.Recipients) == 0 {
		return nil
	}
	return h.Registry.States.IncrementUnread(ctx, conv.ID, msg.Recipients)
}

// compensate removes a message whose side effects failed. conv still holds the
// last-message pointer from before Touch.
func (h *SendMessageHandler) compensate(ctx context.Context, conv *domainmessaging.Conversation, msg *domainmessaging.Message) {
	if err := h.Messages.Delete(ctx, msg.ID); err != nil && h.Logger != nil {
		h.Logger.Error("send compensation failed", "message_id", msg.ID, "error", err)
	}
	if err := h.Registry.Conversations.Rewind(ctx, conv.ID, msg.ID, conv.LastMessageID, conv.LastMessageAt); err != nil && h.Logger != nil {
		h.Logger.Error("last message rewind failed", "conversation_id", conv.ID, "error", err)
	}
	h.dropAttachment(ctx, msg.Attachment)
}

func (h *SendMessageHandler) dropAttachment(ctx context.Context, a *domainmessaging.Attachment) {
	if a == nil || h.Attachments == nil {
		return
	}
	if err := h.Attachments.Delete(ctx, a.Path); err != nil && h.Logger != nil {
		h.Logger.Warn("attachment cleanup failed", "path", a.Path, "error", err)
	}
}

var _ commands.Handler[SendMessageCommand, dto.Message] = (*SendMessageHandler)(nil)
