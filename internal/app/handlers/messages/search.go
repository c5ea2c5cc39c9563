package messages

import (
	"context"
	"time"

	"learnhub/internal/app/dto"
	"learnhub/internal/app/handlers/support"
	"learnhub/internal/app/queries"
	domainmessaging "learnhub/internal/domain/messaging"
	domainuser "learnhub/internal/domain/user"
)

const searchMessagesKey = "messages.search"

// SearchMessagesQuery matches content or attachment names across the caller's conversations.
type SearchMessagesQuery struct {
	UserID string
	Query  string
	Limit  int
}

func (q SearchMessagesQuery) Key() string   { return searchMessagesKey }
func (q SearchMessagesQuery) Actor() string { return q.UserID }

func (q SearchMessagesQuery) Validate() error {
	_, err := domainmessaging.NormalizeQuery(q.Query)
	return err
}

type SearchMessagesHandler struct {
	Conversations domainmessaging.ConversationRepository
	States        domainmessaging.ParticipantStateRepository
	Messages      domainmessaging.MessageRepository
	Directory     domainuser.Directory
}

func (h *SearchMessagesHandler) Handle(ctx context.Context, q SearchMessagesQuery) (dto.MessageList, error) {
	query, err := domainmessaging.NormalizeQuery(q.Query)
	if err != nil {
		return dto.MessageList{}, err
	}
	convs, err := h.Conversations.ListByParticipant(ctx, q.UserID)
	if err != nil {
		return dto.MessageList{}, err
	}
	states, err := h.States.ListForUser(ctx, q.UserID)
	if err != nil {
		return dto.MessageList{}, err
	}
	scope := domainmessaging.SearchScope{UserID: q.UserID, Conversations: make(map[domainmessaging.ConversationID]time.Time, len(convs))}
	for _, conv := range convs {
		state, ok := states[conv.ID]
		if ok && state.Deleted {
			continue
		}
		scope.Conversations[conv.ID] = domainmessaging.HiddenBefore(&state)
	}
	if len(scope.Conversations) == 0 {
		return dto.MessageList{Items: []dto.Message{}}, nil
	}
	found, err := h.Messages.Search(ctx, scope, query, clampLimit(q.Limit))
	if err != nil {
		return dto.MessageList{}, err
	}
	parties := make([][]string, 0, len(found)*2)
	for _, m := range found {
		parties = append(parties, []string{m.SenderID}, m.Recipients)
	}
	profiles, err := support.LoadProfiles(ctx, h.Directory, parties...)
	if err != nil {
		return dto.MessageList{}, err
	}
	return dto.MessageList{Items: dto.MapMessages(found, profiles)}, nil
}

var _ queries.Handler[SearchMessagesQuery, dto.MessageList] = (*SearchMessagesHandler)(nil)
