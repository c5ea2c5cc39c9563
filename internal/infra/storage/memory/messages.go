package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainmessaging "learnhub/internal/domain/messaging"
)

// MessageRepository is an append-mostly message log kept in memory.
type MessageRepository struct {
	mu    sync.RWMutex
	items map[domainmessaging.MessageID]*domainmessaging.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{items: make(map[domainmessaging.MessageID]*domainmessaging.Message)}
}

func (r *MessageRepository) Insert(ctx context.Context, m *domainmessaging.Message) error {
	if m == nil || m.ID == "" {
		return domainmessaging.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[m.ID] = cloneMessage(m)
	return nil
}

func (r *MessageRepository) ByID(ctx context.Context, id domainmessaging.MessageID) (*domainmessaging.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[id]
	if !ok {
		return nil, domainmessaging.ErrMessageNotFound
	}
	return cloneMessage(m), nil
}

func (r *MessageRepository) Delete(ctx context.Context, id domainmessaging.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *MessageRepository) RemoveRecipient(ctx context.Context, id domainmessaging.MessageID, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return 0, domainmessaging.ErrMessageNotFound
	}
	domainmessaging.RemoveRecipient(m, userID)
	return len(m.Recipients), nil
}

func (r *MessageRepository) Latest(ctx context.Context, conversationID domainmessaging.ConversationID, scope domainmessaging.VisibilityScope, limit int) ([]*domainmessaging.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.visibleLocked(conversationID, scope)
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MessageRepository) LastVisible(ctx context.Context, conversationID domainmessaging.ConversationID, scope domainmessaging.VisibilityScope) (*domainmessaging.Message, error) {
	latest, err := r.Latest(ctx, conversationID, scope, 1)
	if err != nil || len(latest) == 0 {
		return nil, err
	}
	return latest[0], nil
}

func (r *MessageRepository) MarkReadFor(ctx context.Context, conversationID domainmessaging.ConversationID, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	for _, m := range r.items {
		if m.ConversationID != conversationID || !domainmessaging.IsRecipient(m, userID) {
			continue
		}
		if domainmessaging.MarkRead(m, userID, at) {
			changed++
		}
	}
	return changed, nil
}

func (r *MessageRepository) MarkOneRead(ctx context.Context, id domainmessaging.MessageID, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return false, domainmessaging.ErrMessageNotFound
	}
	if !domainmessaging.IsRecipient(m, userID) {
		return false, nil
	}
	return domainmessaging.MarkRead(m, userID, at), nil
}

func (r *MessageRepository) Search(ctx context.Context, scope domainmessaging.SearchScope, query string, limit int) ([]*domainmessaging.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainmessaging.Message
	for _, m := range r.items {
		boundary, ok := scope.Conversations[m.ConversationID]
		if !ok {
			continue
		}
		if m.SenderID != scope.UserID && !domainmessaging.IsRecipient(m, scope.UserID) {
			continue
		}
		if !boundary.IsZero() && m.CreatedAt.Before(boundary) {
			continue
		}
		if domainmessaging.Matches(m, query) {
			out = append(out, cloneMessage(m))
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MessageRepository) AddReaction(ctx context.Context, id domainmessaging.MessageID, reaction domainmessaging.Reaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return domainmessaging.ErrMessageNotFound
	}
	for _, existing := range m.Reactions {
		if existing == reaction {
			return nil
		}
	}
	m.Reactions = append(m.Reactions, reaction)
	return nil
}

func (r *MessageRepository) RemoveReaction(ctx context.Context, id domainmessaging.MessageID, reaction domainmessaging.Reaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return false, domainmessaging.ErrMessageNotFound
	}
	for i, existing := range m.Reactions {
		if existing == reaction {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *MessageRepository) visibleLocked(conversationID domainmessaging.ConversationID, scope domainmessaging.VisibilityScope) []*domainmessaging.Message {
	state := &domainmessaging.ParticipantState{}
	if !scope.HiddenBefore.IsZero() {
		boundary := scope.HiddenBefore
		state.DeletedAt = &boundary
	}
	var out []*domainmessaging.Message
	for _, m := range r.items {
		if m.ConversationID == conversationID && domainmessaging.VisibleTo(m, state, scope.UserID) {
			out = append(out, cloneMessage(m))
		}
	}
	return out
}

func sortNewestFirst(items []*domainmessaging.Message) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func cloneMessage(m *domainmessaging.Message) *domainmessaging.Message {
	out := *m
	out.Recipients = append([]string(nil), m.Recipients...)
	out.ReadBy = append([]string(nil), m.ReadBy...)
	out.Reactions = append([]domainmessaging.Reaction(nil), m.Reactions...)
	if m.Attachment != nil {
		a := *m.Attachment
		out.Attachment = &a
	}
	if m.ReadAt != nil {
		at := *m.ReadAt
		out.ReadAt = &at
	}
	return &out
}

var _ domainmessaging.MessageRepository = (*MessageRepository)(nil)
