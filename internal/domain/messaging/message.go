package messaging

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrMessageNotFound  = errors.New("messaging: message not found")
	ErrEmptyMessage     = errors.New("messaging: message needs content or an attachment")
	ErrQueryTooShort    = errors.New("messaging: search query must be at least 2 characters")
	ErrInvalidReaction  = errors.New("messaging: reaction symbol must be 1 to 16 characters")
	ErrSenderNotAllowed = errors.New("messaging: sender is not a participant")
)

const (
	MinQueryLength    = 2
	maxReactionSymbol = 16
)

type MessageID string

// Attachment is the descriptor returned by the attachment store.
type Attachment struct {
	Name     string
	Path     string
	MimeType string
	Size     int64
}

type Reaction struct {
	UserID string
	Symbol string
}

type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	Recipients     []string
	Content        string
	Attachment     *Attachment
	CreatedAt      time.Time
	// Read is a shared hint set by the first receipt. ReadBy is per recipient.
	Read           bool
	ReadAt         *time.Time
	ReadBy         []string
	Reactions      []Reaction
}

type NewMessageParams struct {
	ID           MessageID
	Conversation *Conversation
	SenderID     string
	Content      string
	Attachment   *Attachment
	Now          time.Time
}

// ValidateContent rejects messages without text and without an attachment.
func ValidateContent(content string, attachment *Attachment) error {
	if strings.TrimSpace(content) == "" && attachment == nil {
		return ErrEmptyMessage
	}
	return nil
}

// NewMessage captures recipients as the conversation participants minus the sender.
func NewMessage(params NewMessageParams) (*Message, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	if err := ValidateContent(params.Content, params.Attachment); err != nil {
		return nil, err
	}
	if !IsParticipant(params.Conversation, params.SenderID) {
		return nil, ErrSenderNotAllowed
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Message{
		ID:             params.ID,
		ConversationID: params.Conversation.ID,
		SenderID:       params.SenderID,
		Recipients:     Others(params.Conversation, params.SenderID),
		Content:        strings.TrimSpace(params.Content),
		Attachment:     params.Attachment,
		CreatedAt:      now.UTC(),
	}, nil
}

func IsRecipient(m *Message, userID string) bool {
	if m == nil {
		return false
	}
	for _, r := range m.Recipients {
		if r == userID {
			return true
		}
	}
	return false
}

// VisibleTo applies the sender/recipient membership and the participant's deletion boundary.
func VisibleTo(m *Message, state *ParticipantState, userID string) bool {
	if m == nil {
		return false
	}
	if m.SenderID != userID && !IsRecipient(m, userID) {
		return false
	}
	boundary := HiddenBefore(state)
	return boundary.IsZero() || !m.CreatedAt.Before(boundary)
}

// HasRead reports whether userID has a read receipt on the message.
func HasRead(m *Message, userID string) bool {
	if m == nil {
		return false
	}
	for _, r := range m.ReadBy {
		if r == userID {
			return true
		}
	}
	return false
}

// MarkRead records the receipt of userID and sets the shared hint on the first one.
// It reports false when userID had already read the message.
func MarkRead(m *Message, userID string, at time.Time) bool {
	if m == nil || HasRead(m, userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	if !m.Read {
		at = at.UTC()
		m.Read = true
		m.ReadAt = &at
	}
	return true
}

// RemoveRecipient drops userID and reports whether any recipient is left.
func RemoveRecipient(m *Message, userID string) bool {
	if m == nil {
		return false
	}
	kept := m.Recipients[:0]
	for _, r := range m.Recipients {
		if r != userID {
			kept = append(kept, r)
		}
	}
	m.Recipients = kept
	return len(kept) > 0
}

// NormalizeReaction trims a reaction symbol and enforces its length bounds.
func NormalizeReaction(symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if n := utf8.RuneCountInString(symbol); n == 0 || n > maxReactionSymbol {
		return "", ErrInvalidReaction
	}
	return symbol, nil
}

// NormalizeQuery trims a search query and enforces the minimum length.
func NormalizeQuery(raw string) (string, error) {
	q := strings.TrimSpace(raw)
	if utf8.RuneCountInString(q) < MinQueryLength {
		return "", ErrQueryTooShort
	}
	return q, nil
}

// Matches is the in-process form of the content/attachment-name search predicate.
func Matches(m *Message, query string) bool {
	if m == nil {
		return false
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(m.Content), q) {
		return true
	}
	return m.Attachment != nil && strings.Contains(strings.ToLower(m.Attachment.Name), q)
}
