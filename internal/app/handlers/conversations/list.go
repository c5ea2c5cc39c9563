package conversations

import (
	"context"
	"sort"

	"learnhub/internal/app/dto"
	"learnhub/internal/app/handlers/support"
	"learnhub/internal/app/queries"
	domainmessaging "learnhub/internal/domain/messaging"
	domainuser "learnhub/internal/domain/user"
)

const listConversationsKey = "conversations.list"

type ListConversationsQuery struct {
	UserID string
	Filter string
}

func (q ListConversationsQuery) Key() string   { return listConversationsKey }
func (q ListConversationsQuery) Actor() string { return q.UserID }

func (q ListConversationsQuery) Validate() error {
	_, err := domainmessaging.ParseListFilter(q.Filter)
	return err
}

// ListConversationsHandler returns the caller's conversations, most recent activity first.
type ListConversationsHandler struct {
	Conversations domainmessaging.ConversationRepository
	States        domainmessaging.ParticipantStateRepository
	Messages      domainmessaging.MessageRepository
	Directory     domainuser.Directory
}

func (h *ListConversationsHandler) Handle(ctx context.Context, q ListConversationsQuery) (dto.ConversationList, error) {
	filter, err := domainmessaging.ParseListFilter(q.Filter)
	if err != nil {
		return dto.ConversationList{}, err
	}
	convs, err := h.Conversations.ListByParticipant(ctx, q.UserID)
	if err != nil {
		return dto.ConversationList{}, err
	}
	states, err := h.States.ListForUser(ctx, q.UserID)
	if err != nil {
		return dto.ConversationList{}, err
	}

	type entry struct {
		conv  *domainmessaging.Conversation
		state domainmessaging.ParticipantState
		last  *domainmessaging.Message
	}
	entries := make([]entry, 0, len(convs))
	var parties [][]string
	for _, conv := range convs {
		state, ok := states[conv.ID]
		if !ok {
			state = domainmessaging.NewParticipantState(conv.ID, q.UserID)
		}
		if !filter.Allows(state) {
			continue
		}
		scope := domainmessaging.VisibilityScope{UserID: q.UserID, HiddenBefore: domainmessaging.HiddenBefore(&state)}
		last, err := h.Messages.LastVisible(ctx, conv.ID, scope)
		if err != nil {
			return dto.ConversationList{}, err
		}
		entries = append(entries, entry{conv: conv, state: state, last: last})
		parties = append(parties, conv.Participants)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].conv.LastActivityAt.After(entries[j].conv.LastActivityAt)
	})

	profiles, err := support.LoadProfiles(ctx, h.Directory, parties...)
	if err != nil {
		return dto.ConversationList{}, err
	}
	out := dto.ConversationList{Items: make([]dto.Conversation, 0, len(entries))}
	for _, e := range entries {
		state := e.state
		out.Items = append(out.Items, dto.MapConversation(e.conv, &state, e.last, profiles))
	}
	return out, nil
}

var _ queries.Handler[ListConversationsQuery, dto.ConversationList] = (*ListConversationsHandler)(nil)
