package conversations

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/dto"
	"learnhub/internal/app/handlers/support"
	"learnhub/internal/app/services/registry"
	domainmessaging "learnhub/internal/domain/messaging"
)

const (
	updateConversationKey = "conversations.update_flags"
	deleteConversationKey = "conversations.delete"
)

var ErrNoFlags = errors.New("conversations: at least one of archived, deleted, favorite is required")

// UpdateConversationCommand changes the caller's own flags. Other participants are untouched.
type UpdateConversationCommand struct {
	UserID         string
	ConversationID string
	Archived       *bool
	Deleted        *bool
	Favorite       *bool
}

func (c UpdateConversationCommand) Key() string   { return updateConversationKey }
func (c UpdateConversationCommand) Actor() string { return c.UserID }

func (c UpdateConversationCommand) Validate() error {
	if c.flags().Empty() {
		return ErrNoFlags
	}
	return nil
}

func (c UpdateConversationCommand) flags() domainmessaging.FlagUpdate {
	return domainmessaging.FlagUpdate{Archived: c.Archived, Deleted: c.Deleted, Favorite: c.Favorite}
}

// DeleteConversationCommand hides the conversation and its history from the caller only.
type DeleteConversationCommand struct {
	UserID         string
	ConversationID string
}

func (c DeleteConversationCommand) Key() string   { return deleteConversationKey }
func (c DeleteConversationCommand) Actor() string { return c.UserID }

type UpdateConversationHandler struct {
	Registry *registry.Service
	Messages domainmessaging.MessageRepository
	Now      func() time.Time
	Logger   *slog.Logger
}

func (h *UpdateConversationHandler) Handle(ctx context.Context, cmd UpdateConversationCommand) (dto.Conversation, error) {
	return h.apply(ctx, cmd.UserID, cmd.ConversationID, cmd.flags())
}

// DeleteConversationHandler shares the flag path with deleted=true.
type DeleteConversationHandler struct {
	Update *UpdateConversationHandler
}

func (h *DeleteConversationHandler) Handle(ctx context.Context, cmd DeleteConversationCommand) (dto.Conversation, error) {
	deleted := true
	return h.Update.apply(ctx, cmd.UserID, cmd.ConversationID, domainmessaging.FlagUpdate{Deleted: &deleted})
}

func (h *UpdateConversationHandler) apply(ctx context.Context, userID, conversationID string, update domainmessaging.FlagUpdate) (dto.Conversation, error) {
	conv, err := h.Registry.Require(ctx, userID, domainmessaging.ConversationID(conversationID))
	if err != nil {
		return dto.Conversation{}, err
	}
	key := domainmessaging.StateKey{ConversationID: conv.ID, UserID: userID}
	state, err := h.Registry.States.ApplyFlags(ctx, key, update, support.Clock(h.Now))
	if err != nil {
		return dto.Conversation{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("participant flags updated", "conversation_id", conv.ID, "user_id", userID,
			"archived", state.Archived, "deleted", state.Deleted, "favorite", state.Favorite)
	}
	return describe(ctx, h.Registry.Directory, h.Messages, conv, state, userID)
}

var (
	_ commands.Handler[UpdateConversationCommand, dto.Conversation] = (*UpdateConversationHandler)(nil)
	_ commands.Handler[DeleteConversationCommand, dto.Conversation] = (*DeleteConversationHandler)(nil)
)
