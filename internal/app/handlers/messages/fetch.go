package messages

import (
	"context"

	"learnhub/internal/app/dto"
	"learnhub/internal/app/handlers/support"
	"learnhub/internal/app/queries"
	"learnhub/internal/app/services/readtracking"
	"learnhub/internal/app/services/registry"
	domainmessaging "learnhub/internal/domain/messaging"
)

const (
	fetchMessagesKey = "messages.fetch"
	// PageSize caps both message fetches and message search.
	PageSize = 50
)

// FetchMessagesQuery returns the latest page of a conversation in display order and
// marks the caller's messages read.
type FetchMessagesQuery struct {
	UserID         string
	ConversationID string
	Limit          int
}

func (q FetchMessagesQuery) Key() string   { return fetchMessagesKey }
func (q FetchMessagesQuery) Actor() string { return q.UserID }

type FetchMessagesHandler struct {
	Registry *registry.Service
	Reads    *readtracking.Coordinator
	Messages domainmessaging.MessageRepository
}

func (h *FetchMessagesHandler) Handle(ctx context.Context, q FetchMessagesQuery) (dto.MessageList, error) {
	conv, err := h.Registry.Require(ctx, q.UserID, domainmessaging.ConversationID(q.ConversationID))
	if err != nil {
		return dto.MessageList{}, err
	}
	state, err := h.Registry.State(ctx, conv, q.UserID)
	if err != nil {
		return dto.MessageList{}, err
	}
	scope := domainmessaging.VisibilityScope{UserID: q.UserID, HiddenBefore: domainmessaging.HiddenBefore(state)}
	latest, err := h.Messages.Latest(ctx, conv.ID, scope, clampLimit(q.Limit))
	if err != nil {
		return dto.MessageList{}, err
	}
	// Latest is newest first; display order is oldest first.
	for i, j := 0, len(latest)-1; i < j; i, j = i+1, j-1 {
		latest[i], latest[j] = latest[j], latest[i]
	}
	profiles, err := support.LoadProfiles(ctx, h.Registry.Directory, conv.Participants)
	if err != nil {
		return dto.MessageList{}, err
	}
	if _, err := h.Reads.MarkConversationRead(ctx, q.UserID, conv.ID); err != nil {
		return dto.MessageList{}, err
	}
	return dto.MessageList{Items: dto.MapMessages(latest, profiles)}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > PageSize {
		return PageSize
	}
	return limit
}

var _ queries.Handler[FetchMessagesQuery, dto.MessageList] = (*FetchMessagesHandler)(nil)
