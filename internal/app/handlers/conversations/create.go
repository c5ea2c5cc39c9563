package conversations

import (
	"context"
	"log/slog"
	"strings"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/dto"
	"learnhub/internal/app/services/registry"
	domainmessaging "learnhub/internal/domain/messaging"
)

const createConversationKey = "conversations.create"

// CreateConversationCommand finds or creates the conversation for the requester plus
// the listed participants.
type CreateConversationCommand struct {
	RequesterID    string
	ParticipantIDs []string
	Context        *dto.ContextRef
}

func (c CreateConversationCommand) Key() string   { return createConversationKey }
func (c CreateConversationCommand) Actor() string { return c.RequesterID }

func (c CreateConversationCommand) Validate() error {
	for _, id := range c.ParticipantIDs {
		if strings.TrimSpace(id) != "" && strings.TrimSpace(id) != c.RequesterID {
			return nil
		}
	}
	return domainmessaging.ErrTooFewParticipants
}

type CreateConversationHandler struct {
	Registry *registry.Service
	Messages domainmessaging.MessageRepository
	Logger   *slog.Logger
}

func (h *CreateConversationHandler) Handle(ctx context.Context, cmd CreateConversationCommand) (dto.Conversation, error) {
	var ref *domainmessaging.ContextRef
	if cmd.Context != nil {
		ref = &domainmessaging.ContextRef{Kind: cmd.Context.Kind, ID: cmd.Context.ID}
	}
	conv, created, err := h.Registry.CreateOrGet(ctx, cmd.RequesterID, cmd.ParticipantIDs, ref)
	if err != nil {
		return dto.Conversation{}, err
	}
	state, err := h.Registry.State(ctx, conv, cmd.RequesterID)
	if err != nil {
		return dto.Conversation{}, err
	}
	view, err := describe(ctx, h.Registry.Directory, h.Messages, conv, state, cmd.RequesterID)
	if err != nil {
		return dto.Conversation{}, err
	}
	view.Created = created
	return view, nil
}

var _ commands.Handler[CreateConversationCommand, dto.Conversation] = (*CreateConversationHandler)(nil)
