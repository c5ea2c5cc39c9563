package messaging

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrConversationNotFound  = errors.New("messaging: conversation not found")
	ErrTooFewParticipants    = errors.New("messaging: a conversation needs at least 2 participants")
	ErrDuplicateConversation = errors.New("messaging: conversation already exists for participant set")
	ErrParticipantUnknown    = errors.New("messaging: participant not found")
	ErrIDRequired            = errors.New("messaging: id is required")
)

// participantKeySeparator cannot appear in trimmed user identifiers that reach the key.
const participantKeySeparator = "|"

type ConversationID string

// ContextRef links a conversation to a course or job offer. It is not interpreted here.
type ContextRef struct {
	Kind string
	ID   string
}

type Conversation struct {
	ID             ConversationID
	Participants   []string
	ParticipantKey string
	CreatedBy      string
	CreatedAt      time.Time
	LastMessageID  MessageID
	LastMessageAt  time.Time
	LastActivityAt time.Time
	Context        *ContextRef
}

type CreateConversationParams struct {
	ID           ConversationID
	CreatedBy    string
	Participants []string
	Context      *ContextRef
	Now          time.Time
}

// NormalizeParticipants returns the sorted, distinct participant set including the requester.
func NormalizeParticipants(requesterID string, ids []string) ([]string, error) {
	all := make([]string, 0, len(ids)+1)
	all = append(all, requesterID)
	all = append(all, ids...)

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, id := range all {
		id = strings.TrimSpace(id)
		if id == "" || strings.Contains(id, participantKeySeparator) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) < 2 {
		return nil, ErrTooFewParticipants
	}
	sort.Strings(out)
	return out, nil
}

// ParticipantKey builds the order-independent identity of a participant set.
func ParticipantKey(participants []string) string {
	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)
	return strings.Join(sorted, participantKeySeparator)
}

func NewConversation(params CreateConversationParams) (*Conversation, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	participants, err := NormalizeParticipants(params.CreatedBy, params.Participants)
	if err != nil {
		return nil, err
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	var ref *ContextRef
	if params.Context != nil && strings.TrimSpace(params.Context.ID) != "" {
		ref = &ContextRef{Kind: strings.TrimSpace(params.Context.Kind), ID: strings.TrimSpace(params.Context.ID)}
	}
	return &Conversation{
		ID:             params.ID,
		Participants:   participants,
		ParticipantKey: ParticipantKey(participants),
		CreatedBy:      strings.TrimSpace(params.CreatedBy),
		CreatedAt:      now,
		LastActivityAt: now,
		Context:        ref,
	}, nil
}

func IsParticipant(c *Conversation, userID string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Others returns every participant except userID.
func Others(c *Conversation, userID string) []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// UnknownParticipant builds the not-found error naming the missing identifier.
func UnknownParticipant(id string) error {
	return fmt.Errorf("%w: %s", ErrParticipantUnknown, id)
}
