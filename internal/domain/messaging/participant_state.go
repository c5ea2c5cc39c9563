package messaging

import (
	"errors"
	"time"
)

// StateKey addresses one participant's private view of one conversation.
type StateKey struct {
	ConversationID ConversationID
	UserID         string
}

type ParticipantState struct {
	ConversationID ConversationID
	UserID         string
	Archived       bool
	Deleted        bool
	DeletedAt      *time.Time
	Favorite       bool
	UnreadCount    int64
	LastReadAt     time.Time
}

// FlagUpdate carries the optional flags a participant may change on their own view.
type FlagUpdate struct {
	Archived *bool
	Deleted  *bool
	Favorite *bool
}

func (u FlagUpdate) Empty() bool {
	return u.Archived == nil && u.Deleted == nil && u.Favorite == nil
}

func (s ParticipantState) Key() StateKey {
	return StateKey{ConversationID: s.ConversationID, UserID: s.UserID}
}

func NewParticipantState(conversationID ConversationID, userID string) ParticipantState {
	return ParticipantState{ConversationID: conversationID, UserID: userID}
}

// ApplyFlags mutates only the given state. Setting deleted moves the deletion boundary to now.
func ApplyFlags(state *ParticipantState, update FlagUpdate, now time.Time) {
	if state == nil {
		return
	}
	if update.Archived != nil {
		state.Archived = *update.Archived
	}
	if update.Favorite != nil {
		state.Favorite = *update.Favorite
	}
	if update.Deleted != nil {
		state.Deleted = *update.Deleted
		if *update.Deleted {
			at := now.UTC()
			state.DeletedAt = &at
		}
	}
}

// ResetUnread zeroes the counter and advances LastReadAt, never moving it backwards.
func ResetUnread(state *ParticipantState, at time.Time) {
	if state == nil {
		return
	}
	state.UnreadCount = 0
	if at.After(state.LastReadAt) {
		state.LastReadAt = at.UTC()
	}
}

// HiddenBefore reports the boundary before which messages are invisible to the participant.
func HiddenBefore(state *ParticipantState) time.Time {
	if state == nil || state.DeletedAt == nil {
		return time.Time{}
	}
	return *state.DeletedAt
}

// ErrStateNotFound means no row exists yet for the (conversation, user) key.
var ErrStateNotFound = errors.New("messaging: participant state not found")

var ErrUnknownFilter = errors.New("messaging: unknown conversation filter")

// ListFilter selects conversations by the caller's own flags.
type ListFilter string

const (
	FilterDefault   ListFilter = ""
	FilterInbox     ListFilter = "inbox"
	FilterArchived  ListFilter = "archived"
	FilterFavorites ListFilter = "favorites"
	FilterAll       ListFilter = "all"
)

func ParseListFilter(raw string) (ListFilter, error) {
	switch f := ListFilter(raw); f {
	case FilterDefault, FilterInbox, FilterArchived, FilterFavorites, FilterAll:
		return f, nil
	default:
		return "", ErrUnknownFilter
	}
}

// Allows reports whether a conversation with the given state passes the filter.
// Only FilterAll shows conversations the participant deleted. The default list hides
// archived ones, the same as FilterInbox.
func (f ListFilter) Allows(state ParticipantState) bool {
	if f == FilterAll {
		return true
	}
	if state.Deleted {
		return false
	}
	switch f {
	case FilterArchived:
		return state.Archived
	case FilterFavorites:
		return state.Favorite
	default:
		return !state.Archived
	}
}
