package conversations

import (
	"context"

	"learnhub/internal/app/dto"
	"learnhub/internal/app/handlers/support"
	domainmessaging "learnhub/internal/domain/messaging"
	domainuser "learnhub/internal/domain/user"
)

// describe assembles the caller's view: profiles, last visible message and own state.
func describe(ctx context.Context, dir domainuser.Directory, messages domainmessaging.MessageRepository, conv *domainmessaging.Conversation, state *domainmessaging.ParticipantState, userID string) (dto.Conversation, error) {
	scope := domainmessaging.VisibilityScope{UserID: userID, HiddenBefore: domainmessaging.HiddenBefore(state)}
	last, err := messages.LastVisible(ctx, conv.ID, scope)
	if err != nil {
		return dto.Conversation{}, err
	}
	var lastParties []string
	if last != nil {
		lastParties = append([]string{last.SenderID}, last.Recipients...)
	}
	profiles, err := support.LoadProfiles(ctx, dir, conv.Participants, lastParties)
	if err != nil {
		return dto.Conversation{}, err
	}
	return dto.MapConversation(conv, state, last, profiles), nil
}
