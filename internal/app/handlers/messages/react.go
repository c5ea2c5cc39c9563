package messages

import (
	"context"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/dto"
	"learnhub/internal/app/handlers/support"
	domainmessaging "learnhub/internal/domain/messaging"
	domainuser "learnhub/internal/domain/user"
)

const toggleReactionKey = "messages.toggle_reaction"

// ToggleReactionCommand adds the caller's reaction or removes it when already present.
type ToggleReactionCommand struct {
	UserID    string
	MessageID string
	Symbol    string
}

func (c ToggleReactionCommand) Key() string   { return toggleReactionKey }
func (c ToggleReactionCommand) Actor() string { return c.UserID }

func (c ToggleReactionCommand) Validate() error {
	_, err := domainmessaging.NormalizeReaction(c.Symbol)
	return err
}

type ToggleReactionHandler struct {
	Messages  domainmessaging.MessageRepository
	Directory domainuser.Directory
}

func (h *ToggleReactionHandler) Handle(ctx context.Context, cmd ToggleReactionCommand) (dto.Message, error) {
	symbol, err := domainmessaging.NormalizeReaction(cmd.Symbol)
	if err != nil {
		return dto.Message{}, err
	}
	id := domainmessaging.MessageID(cmd.MessageID)
	msg, err := h.Messages.ByID(ctx, id)
	if err != nil {
		return dto.Message{}, err
	}
	if msg.SenderID != cmd.UserID && !domainmessaging.IsRecipient(msg, cmd.UserID) {
		return dto.Message{}, domainmessaging.ErrMessageNotFound
	}
	reaction := domainmessaging.Reaction{UserID: cmd.UserID, Symbol: symbol}
	removed, err := h.Messages.RemoveReaction(ctx, id, reaction)
	if err != nil {
		return dto.Message{}, err
	}
	if !removed {
		if err := h.Messages.AddReaction(ctx, id, reaction); err != nil {
			return dto.Message{}, err
		}
	}
	updated, err := h.Messages.ByID(ctx, id)
	if err != nil {
		return dto.Message{}, err
	}
	profiles, err := support.LoadProfiles(ctx, h.Directory, []string{updated.SenderID}, updated.Recipients)
	if err != nil {
		return dto.Message{}, err
	}
	return dto.MapMessage(updated, profiles), nil
}

var _ commands.Handler[ToggleReactionCommand, dto.Message] = (*ToggleReactionHandler)(nil)
