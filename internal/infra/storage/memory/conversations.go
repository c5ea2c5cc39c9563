package memory

import (
	"context"
	"sync"
	"time"

	domainmessaging "learnhub/internal/domain/messaging"
)

// ConversationRepository keeps conversations in memory with a unique participant-key index.
type ConversationRepository struct {
	mu    sync.RWMutex
	byID  map[domainmessaging.ConversationID]*domainmessaging.Conversation
	byKey map[string]domainmessaging.ConversationID
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		byID:  make(map[domainmessaging.ConversationID]*domainmessaging.Conversation),
		byKey: make(map[string]domainmessaging.ConversationID),
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainmessaging.ConversationID) (*domainmessaging.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, domainmessaging.ErrConversationNotFound
	}
	return cloneConversation(c), nil
}

func (r *ConversationRepository) ByParticipantKey(ctx context.Context, key string) (*domainmessaging.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, domainmessaging.ErrConversationNotFound
	}
	return cloneConversation(r.byID[id]), nil
}

func (r *ConversationRepository) Insert(ctx context.Context, c *domainmessaging.Conversation) error {
	if c == nil || c.ID == "" {
		return domainmessaging.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byKey[c.ParticipantKey]; taken {
		return domainmessaging.ErrDuplicateConversation
	}
	if _, taken := r.byID[c.ID]; taken {
		return domainmessaging.ErrDuplicateConversation
	}
	r.byID[c.ID] = cloneConversation(c)
	r.byKey[c.ParticipantKey] = c.ID
	return nil
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*domainmessaging.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainmessaging.Conversation, 0)
	for _, c := range r.byID {
		if domainmessaging.IsParticipant(c, userID) {
			out = append(out, cloneConversation(c))
		}
	}
	return out, nil
}

func (r *ConversationRepository) Touch(ctx context.Context, id domainmessaging.ConversationID, lastMessage domainmessaging.MessageID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return domainmessaging.ErrConversationNotFound
	}
	c.LastMessageID = lastMessage
	c.LastMessageAt = at.UTC()
	if at.After(c.LastActivityAt) {
		c.LastActivityAt = at.UTC()
	}
	return nil
}

func (r *ConversationRepository) Rewind(ctx context.Context, id domainmessaging.ConversationID, removed, previous domainmessaging.MessageID, previousAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return domainmessaging.ErrConversationNotFound
	}
	if c.LastMessageID != removed {
		return nil
	}
	c.LastMessageID = previous
	c.LastMessageAt = previousAt.UTC()
	return nil
}

func cloneConversation(c *domainmessaging.Conversation) *domainmessaging.Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	if c.Context != nil {
		ref := *c.Context
		out.Context = &ref
	}
	return &out
}

var _ domainmessaging.ConversationRepository = (*ConversationRepository)(nil)
