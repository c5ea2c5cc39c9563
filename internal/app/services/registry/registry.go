package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"learnhub/internal/app/handlers/support"
	"learnhub/internal/app/outbox"
	"learnhub/internal/app/policies"
	domainmessaging "learnhub/internal/domain/messaging"
	"learnhub/internal/domain/shared/events"
	domainuser "learnhub/internal/domain/user"
)

// Service owns conversation identity: one conversation per exact participant set.
type Service struct {
	Conversations domainmessaging.ConversationRepository
	States        domainmessaging.ParticipantStateRepository
	Directory     domainuser.Directory
	Events        outbox.Publisher
	IDs           func() string
	Now           func() time.Time
	Logger        *slog.Logger
}

// CreateOrGet returns the conversation for the normalized participant set, creating it
// when none exists. created reports whether this call inserted it.
func (s *Service) CreateOrGet(ctx context.Context, requesterID string, participantIDs []string, ref *domainmessaging.ContextRef) (*domainmessaging.Conversation, bool, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, false, err
	}
	participants, err := domainmessaging.NormalizeParticipants(requesterID, participantIDs)
	if err != nil {
		return nil, false, err
	}
	key := domainmessaging.ParticipantKey(participants)

	existing, err := s.Conversations.ByParticipantKey(ctx, key)
	switch {
	case err == nil:
		return existing, false, s.States.Ensure(ctx, existing.ID, existing.Participants)
	case !errors.Is(err, domainmessaging.ErrConversationNotFound):
		return nil, false, err
	}

	if err := s.checkParticipants(ctx, participants); err != nil {
		return nil, false, err
	}

	now := support.Clock(s.Now)
	conv, err := domainmessaging.NewConversation(domainmessaging.CreateConversationParams{
		ID:           domainmessaging.ConversationID(support.NewID(s.IDs)),
		CreatedBy:    requesterID,
		Participants: participants,
		Context:      ref,
		Now:          now,
	})
	if err != nil {
		return nil, false, err
	}
	if err := s.Conversations.Insert(ctx, conv); err != nil {
		if !errors.Is(err, domainmessaging.ErrDuplicateConversation) {
			return nil, false, err
		}
		// Lost the race to a concurrent creator; the winner is now readable.
		winner, err := s.Conversations.ByParticipantKey(ctx, key)
		if err != nil {
			return nil, false, err
		}
		return winner, false, s.States.Ensure(ctx, winner.ID, winner.Participants)
	}
	if err := s.States.Ensure(ctx, conv.ID, conv.Participants); err != nil {
		return nil, false, err
	}

	var batch events.Batch
	batch.Add(domainmessaging.ConversationCreated{
		ConversationID: conv.ID,
		CreatedBy:      conv.CreatedBy,
		Participants:   append([]string(nil), conv.Participants...),
		At:             now,
	})
	s.Events.Publish(ctx, &batch)

	if s.Logger != nil {
		s.Logger.Info("conversation created", "conversation_id", conv.ID, "participants", len(conv.Participants))
	}
	return conv, true, nil
}

// Require loads a conversation the user participates in. Non-participants get not found.
func (s *Service) Require(ctx context.Context, userID string, id domainmessaging.ConversationID) (*domainmessaging.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conv, err := s.Conversations.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domainmessaging.IsParticipant(conv, userID) {
		return nil, domainmessaging.ErrConversationNotFound
	}
	return conv, nil
}

// State returns the caller's participant state, or a fresh default when none is stored.
func (s *Service) State(ctx context.Context, conv *domainmessaging.Conversation, userID string) (*domainmessaging.ParticipantState, error) {
	state, err := s.States.Get(ctx, domainmessaging.StateKey{ConversationID: conv.ID, UserID: userID})
	if err == nil {
		return state, nil
	}
	if errors.Is(err, domainmessaging.ErrStateNotFound) {
		fresh := domainmessaging.NewParticipantState(conv.ID, userID)
		return &fresh, nil
	}
	return nil, err
}

func (s *Service) checkParticipants(ctx context.Context, participants []string) error {
	ids := domainuser.ToIDs(participants)
	resolved, err := s.Directory.ByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("%w: %w", policies.ErrDirectoryUnavailable, err)
	}
	if missing := domainuser.Missing(ids, resolved); len(missing) > 0 {
		return domainmessaging.UnknownParticipant(string(missing[0]))
	}
	return nil
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Conversations == nil:
		return errors.New("registry: conversation repository required")
	case s.States == nil:
		return errors.New("registry: participant state repository required")
	case s.Directory == nil:
		return errors.New("registry: user directory required")
	default:
		return nil
	}
}
