package readtracking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"learnhub/internal/app/handlers/support"
	"learnhub/internal/app/outbox"
	domainmessaging "learnhub/internal/domain/messaging"
	"learnhub/internal/domain/shared/events"
)

// Coordinator keeps message read flags and per-participant unread counters in step.
type Coordinator struct {
	Messages domainmessaging.MessageRepository
	States   domainmessaging.ParticipantStateRepository
	Events   outbox.Publisher
	Now      func() time.Time
	Logger   *slog.Logger
}

// MarkConversationRead flags every message addressed to userID as read and zeroes the
// user's counter. It returns how many messages changed.
func (c *Coordinator) MarkConversationRead(ctx context.Context, userID string, conversationID domainmessaging.ConversationID) (int64, error) {
	if err := c.ensureDependencies(); err != nil {
		return 0, err
	}
	now := support.Clock(c.Now)
	changed, err := c.Messages.MarkReadFor(ctx, conversationID, userID, now)
	if err != nil {
		return 0, err
	}
	key := domainmessaging.StateKey{ConversationID: conversationID, UserID: userID}
	if err := c.States.ResetUnread(ctx, key, now); err != nil {
		return 0, err
	}
	if changed > 0 {
		var batch events.Batch
		batch.Add(domainmessaging.ConversationRead{
			ConversationID: conversationID,
			UserID:         userID,
			MessagesRead:   changed,
			At:             now,
		})
		c.Events.Publish(ctx, &batch)
	}
	return changed, nil
}

// MarkMessageRead records the read receipt of one recipient. Only the call that adds the
// receipt decrements that recipient's counter, so repeated or concurrent calls decrement
// once. Another recipient's receipt does not count.
func (c *Coordinator) MarkMessageRead(ctx context.Context, userID string, id domainmessaging.MessageID) (*domainmessaging.Message, error) {
	if err := c.ensureDependencies(); err != nil {
		return nil, err
	}
	msg, err := c.Messages.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domainmessaging.IsRecipient(msg, userID) {
		return nil, domainmessaging.ErrMessageNotFound
	}
	if domainmessaging.HasRead(msg, userID) {
		return msg, nil
	}
	now := support.Clock(c.Now)
	flipped, err := c.Messages.MarkOneRead(ctx, msg.ID, userID, now)
	if err != nil {
		return nil, err
	}
	if !flipped {
		// A concurrent call for the same user won; report the stored state.
		return c.Messages.ByID(ctx, id)
	}
	domainmessaging.MarkRead(msg, userID, now)
	key := domainmessaging.StateKey{ConversationID: msg.ConversationID, UserID: userID}
	if err := c.States.DecrementUnread(ctx, key); err != nil {
		if c.Logger != nil {
			c.Logger.Warn("unread decrement failed", "conversation_id", msg.ConversationID, "user_id", userID, "error", err)
		}
		return nil, err
	}
	return msg, nil
}

func (c *Coordinator) ensureDependencies() error {
	switch {
	case c.Messages == nil:
		return errors.New("readtracking: message repository required")
	case c.States == nil:
		return errors.New("readtracking: participant state repository required")
	default:
		return nil
	}
}
