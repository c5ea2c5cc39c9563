package memory

import (
	"context"
	"sync"
	"time"

	domainmessaging "learnhub/internal/domain/messaging"
)

// ParticipantStateRepository is a table keyed by (conversation, user). Each call
// mutates rows under one store-wide lock, so every delta is applied atomically.
type ParticipantStateRepository struct {
	mu   sync.Mutex
	rows map[domainmessaging.StateKey]*domainmessaging.ParticipantState
}

func NewParticipantStateRepository() *ParticipantStateRepository {
	return &ParticipantStateRepository{rows: make(map[domainmessaging.StateKey]*domainmessaging.ParticipantState)}
}

func (r *ParticipantStateRepository) Ensure(ctx context.Context, conversationID domainmessaging.ConversationID, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		r.rowLocked(domainmessaging.StateKey{ConversationID: conversationID, UserID: id})
	}
	return nil
}

func (r *ParticipantStateRepository) Get(ctx context.Context, key domainmessaging.StateKey) (*domainmessaging.ParticipantState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[key]
	if !ok {
		return nil, domainmessaging.ErrStateNotFound
	}
	return cloneState(row), nil
}

func (r *ParticipantStateRepository) ListForUser(ctx context.Context, userID string) (map[domainmessaging.ConversationID]domainmessaging.ParticipantState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domainmessaging.ConversationID]domainmessaging.ParticipantState)
	for key, row := range r.rows {
		if key.UserID == userID {
			out[key.ConversationID] = *cloneState(row)
		}
	}
	return out, nil
}

func (r *ParticipantStateRepository) IncrementUnread(ctx context.Context, conversationID domainmessaging.ConversationID, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		r.rowLocked(domainmessaging.StateKey{ConversationID: conversationID, UserID: id}).UnreadCount++
	}
	return nil
}

func (r *ParticipantStateRepository) DecrementUnread(ctx context.Context, key domainmessaging.StateKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[key]; ok && row.UnreadCount > 0 {
		row.UnreadCount--
	}
	return nil
}

func (r *ParticipantStateRepository) ResetUnread(ctx context.Context, key domainmessaging.StateKey, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	domainmessaging.ResetUnread(r.rowLocked(key), at)
	return nil
}

func (r *ParticipantStateRepository) ApplyFlags(ctx context.Context, key domainmessaging.StateKey, update domainmessaging.FlagUpdate, now time.Time) (*domainmessaging.ParticipantState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rowLocked(key)
	domainmessaging.ApplyFlags(row, update, now)
	return cloneState(row), nil
}

func (r *ParticipantStateRepository) ClearDeleted(ctx context.Context, conversationID domainmessaging.ConversationID, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		if row, ok := r.rows[domainmessaging.StateKey{ConversationID: conversationID, UserID: id}]; ok {
			row.Deleted = false
		}
	}
	return nil
}

func (r *ParticipantStateRepository) rowLocked(key domainmessaging.StateKey) *domainmessaging.ParticipantState {
	row, ok := r.rows[key]
	if !ok {
		fresh := domainmessaging.NewParticipantState(key.ConversationID, key.UserID)
		row = &fresh
		r.rows[key] = row
	}
	return row
}

func cloneState(s *domainmessaging.ParticipantState) *domainmessaging.ParticipantState {
	out := *s
	if s.DeletedAt != nil {
		at := *s.DeletedAt
		out.DeletedAt = &at
	}
	return &out
}

var _ domainmessaging.ParticipantStateRepository = (*ParticipantStateRepository)(nil)
