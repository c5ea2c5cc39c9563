package messages

import (
	"context"
	"log/slog"
	"time"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/dto"
	"learnhub/internal/app/handlers/support"
	"learnhub/internal/app/outbox"
	"learnhub/internal/app/policies"
	domainmessaging "learnhub/internal/domain/messaging"
	"learnhub/internal/domain/shared/events"
)

const deleteMessageKey = "messages.delete"

// DeleteMessageCommand removes a message for everyone when the sender asks, and only
// for the caller when a recipient asks.
type DeleteMessageCommand struct {
	UserID    string
	MessageID string
}

func (c DeleteMessageCommand) Key() string   { return deleteMessageKey }
func (c DeleteMessageCommand) Actor() string { return c.UserID }

type DeleteMessageHandler struct {
	Messages    domainmessaging.MessageRepository
	States      domainmessaging.ParticipantStateRepository
	Attachments policies.AttachmentStore
	Events      outbox.Publisher
	Now         func() time.Time
	Logger      *slog.Logger
}

func (h *DeleteMessageHandler) Handle(ctx context.Context, cmd DeleteMessageCommand) (dto.DeletedMessage, error) {
	msg, err := h.Messages.ByID(ctx, domainmessaging.MessageID(cmd.MessageID))
	if err != nil {
		return dto.DeletedMessage{}, err
	}
	isSender := msg.SenderID == cmd.UserID
	if !isSender && !domainmessaging.IsRecipient(msg, cmd.UserID) {
		return dto.DeletedMessage{}, domainmessaging.ErrMessageNotFound
	}

	forEveryone := isSender
	if !isSender {
		remaining, err := h.Messages.RemoveRecipient(ctx, msg.ID, cmd.UserID)
		if err != nil {
			return dto.DeletedMessage{}, err
		}
		if !domainmessaging.HasRead(msg, cmd.UserID) {
			h.forgetUnread(ctx, msg.ConversationID, cmd.UserID)
		}
		forEveryone = remaining == 0
	}
	if forEveryone {
		if err := h.Messages.Delete(ctx, msg.ID); err != nil {
			return dto.DeletedMessage{}, err
		}
		if isSender {
			for _, r := range msg.Recipients {
				if !domainmessaging.HasRead(msg, r) {
					h.forgetUnread(ctx, msg.ConversationID, r)
				}
			}
		}
		if msg.Attachment != nil && h.Attachments != nil {
			if err := h.Attachments.Delete(ctx, msg.Attachment.Path); err != nil && h.Logger != nil {
				h.Logger.Warn("attachment delete failed", "message_id", msg.ID, "path", msg.Attachment.Path, "error", err)
			}
		}
	}

	var batch events.Batch
	batch.Add(domainmessaging.MessageDeleted{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		DeletedBy:      cmd.UserID,
		ForEveryone:    forEveryone,
		At:             support.Clock(h.Now),
	})
	h.Events.Publish(ctx, &batch)

	if h.Logger != nil {
		h.Logger.Info("message deleted", "message_id", msg.ID, "user_id", cmd.UserID, "for_everyone", forEveryone)
	}
	return dto.DeletedMessage{ID: string(msg.ID), ForEveryone: forEveryone}, nil
}

// forgetUnread keeps counters from pointing at messages that no longer exist for the user.
func (h *DeleteMessageHandler) forgetUnread(ctx context.Context, conversationID domainmessaging.ConversationID, userID string) {
	if h.States == nil {
		return
	}
	key := domainmessaging.StateKey{ConversationID: conversationID, UserID: userID}
	if err := h.States.DecrementUnread(ctx, key); err != nil && h.Logger != nil {
		h.Logger.Warn("unread decrement failed", "conversation_id", conversationID, "user_id", userID, "error", err)
	}
}

var _ commands.Handler[DeleteMessageCommand, dto.DeletedMessage] = (*DeleteMessageHandler)(nil)
