package messaging

import (
	"context"
	"time"
)

type ConversationRepository interface {
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ByParticipantKey(ctx context.Context, key string) (*Conversation, error)
	// Insert must fail with ErrDuplicateConversation when the participant key is taken.
	Insert(ctx context.Context, c *Conversation) error
	ListByParticipant(ctx context.Context, userID string) ([]*Conversation, error)
	Touch(ctx context.Context, id ConversationID, lastMessage MessageID, at time.Time) error
	// Rewind restores the previous last-message pointer if it still names removed.
	Rewind(ctx context.Context, id ConversationID, removed, previous MessageID, previousAt time.Time) error
}

// ParticipantStateRepository mutates exactly one (conversation, user) row per call,
// except IncrementUnread which applies an independent atomic delta to each recipient row.
type ParticipantStateRepository interface {
	Ensure(ctx context.Context, conversationID ConversationID, userIDs []string) error
	Get(ctx context.Context, key StateKey) (*ParticipantState, error)
	ListForUser(ctx context.Context, userID string) (map[ConversationID]ParticipantState, error)
	IncrementUnread(ctx context.Context, conversationID ConversationID, userIDs []string) error
	DecrementUnread(ctx context.Context, key StateKey) error
	ResetUnread(ctx context.Context, key StateKey, at time.Time) error
	ApplyFlags(ctx context.Context, key StateKey, update FlagUpdate, now time.Time) (*ParticipantState, error)
	ClearDeleted(ctx context.Context, conversationID ConversationID, userIDs []string) error
}

// VisibilityScope restricts message reads to what one participant may see.
type VisibilityScope struct {
	UserID       string
	HiddenBefore time.Time
}

// SearchScope maps each searchable conversation to the caller's deletion boundary.
type SearchScope struct {
	UserID        string
	Conversations map[ConversationID]time.Time
}

type MessageRepository interface {
	Insert(ctx context.Context, m *Message) error
	ByID(ctx context.Context, id MessageID) (*Message, error)
	Delete(ctx context.Context, id MessageID) error
	// RemoveRecipient returns the number of recipients left on the message.
	RemoveRecipient(ctx context.Context, id MessageID, userID string) (int, error)
	// Latest returns up to limit visible messages, newest first.
	Latest(ctx context.Context, conversationID ConversationID, scope VisibilityScope, limit int) ([]*Message, error)
	// LastVisible returns nil, nil when the participant sees no message yet.
	LastVisible(ctx context.Context, conversationID ConversationID, scope VisibilityScope) (*Message, error)
	// MarkReadFor records a receipt for userID on every message addressed to them that
	// lacks one, and returns how many changed.
	MarkReadFor(ctx context.Context, conversationID ConversationID, userID string, at time.Time) (int64, error)
	// MarkOneRead reports false when userID had already read the message.
	MarkOneRead(ctx context.Context, id MessageID, userID string, at time.Time) (bool, error)
	Search(ctx context.Context, scope SearchScope, query string, limit int) ([]*Message, error)
	AddReaction(ctx context.Context, id MessageID, r Reaction) error
	// RemoveReaction reports whether the reaction was present.
	RemoveReaction(ctx context.Context, id MessageID, r Reaction) (bool, error)
}
