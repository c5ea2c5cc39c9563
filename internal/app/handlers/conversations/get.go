package conversations

import (
	"context"
	"strings"

	"learnhub/internal/app/dto"
	"learnhub/internal/app/queries"
	"learnhub/internal/app/services/readtracking"
	"learnhub/internal/app/services/registry"
	domainmessaging "learnhub/internal/domain/messaging"
)

const getConversationKey = "conversations.get"

// GetConversationQuery opens one conversation. Opening it marks the caller's messages read.
type GetConversationQuery struct {
	UserID         string
	ConversationID string
}

func (q GetConversationQuery) Key() string   { return getConversationKey }
func (q GetConversationQuery) Actor() string { return q.UserID }

func (q GetConversationQuery) Validate() error {
	if strings.TrimSpace(q.ConversationID) == "" {
		return domainmessaging.ErrConversationNotFound
	}
	return nil
}

type GetConversationHandler struct {
	Registry *registry.Service
	Reads    *readtracking.Coordinator
	Messages domainmessaging.MessageRepository
}

func (h *GetConversationHandler) Handle(ctx context.Context, q GetConversationQuery) (dto.Conversation, error) {
	conv, err := h.Registry.Require(ctx, q.UserID, domainmessaging.ConversationID(q.ConversationID))
	if err != nil {
		return dto.Conversation{}, err
	}
	if _, err := h.Reads.MarkConversationRead(ctx, q.UserID, conv.ID); err != nil {
		return dto.Conversation{}, err
	}
	state, err := h.Registry.State(ctx, conv, q.UserID)
	if err != nil {
		return dto.Conversation{}, err
	}
	return describe(ctx, h.Registry.Directory, h.Messages, conv, state, q.UserID)
}

var _ queries.Handler[GetConversationQuery, dto.Conversation] = (*GetConversationHandler)(nil)
