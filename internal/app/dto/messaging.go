package dto

import (
	"time"

	domainmessaging "learnhub/internal/domain/messaging"
	domainuser "learnhub/internal/domain/user"
)

// ProfileSummary is the public part of a directory profile shown next to messages.
type ProfileSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Role        string `json:"role,omitempty"`
}

type ContextRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type Attachment struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type Reaction struct {
	UserID string `json:"user_id"`
	Symbol string `json:"symbol"`
}

type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Sender         ProfileSummary   `json:"sender"`
	Recipients     []ProfileSummary `json:"recipients"`
	Content        string           `json:"content,omitempty"`
	Attachment     *Attachment      `json:"attachment,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	Read           bool             `json:"read"`
	ReadAt         *time.Time       `json:"read_at,omitempty"`
	ReadBy         []string         `json:"read_by,omitempty"`
	Reactions      []Reaction       `json:"reactions,omitempty"`
}

type MessageList struct {
	Items []Message `json:"items"`
}

// ParticipantState is the caller's private view of a conversation.
type ParticipantState struct {
	Archived    bool       `json:"archived"`
	Deleted     bool       `json:"deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	Favorite    bool       `json:"favorite"`
	UnreadCount int64      `json:"unread_count"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`
}

type Conversation struct {
	ID             string           `json:"id"`
	Participants   []ProfileSummary `json:"participants"`
	CreatedBy      string           `json:"created_by"`
	CreatedAt      time.Time        `json:"created_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	Context        *ContextRef      `json:"context,omitempty"`
	LastMessage    *Message         `json:"last_message,omitempty"`
	State          ParticipantState `json:"state"`
	Created        bool             `json:"created,omitempty"`
}

type ConversationList struct {
	Items []Conversation `json:"items"`
}

type DeletedMessage struct {
	ID          string `json:"id"`
	ForEveryone bool   `json:"for_everyone"`
}

// Profiles indexes directory profiles by id for mapping.
type Profiles map[domainuser.ID]domainuser.Profile

// Summary falls back to the bare id when the directory no longer knows the user.
func (p Profiles) Summary(id string) ProfileSummary {
	if prof, ok := p[domainuser.ID(id)]; ok {
		return MapProfileSummary(prof)
	}
	return ProfileSummary{ID: id, DisplayName: id}
}

func (p Profiles) Summaries(ids []string) []ProfileSummary {
	out := make([]ProfileSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.Summary(id))
	}
	return out
}

func MapProfileSummary(p domainuser.Profile) ProfileSummary {
	return ProfileSummary{
		ID:          string(p.ID),
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Role:        string(p.Role),
	}
}

func MapMessage(m *domainmessaging.Message, profiles Profiles) Message {
	if m == nil {
		return Message{}
	}
	out := Message{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		Sender:         profiles.Summary(m.SenderID),
		Recipients:     profiles.Summaries(m.Recipients),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		Read:           m.Read,
		ReadAt:         m.ReadAt,
		ReadBy:         append([]string(nil), m.ReadBy...),
	}
	if m.Attachment != nil {
		out.Attachment = &Attachment{
			Name:     m.Attachment.Name,
			Path:     m.Attachment.Path,
			MimeType: m.Attachment.MimeType,
			Size:     m.Attachment.Size,
		}
	}
	for _, r := range m.Reactions {
		out.Reactions = append(out.Reactions, Reaction{UserID: r.UserID, Symbol: r.Symbol})
	}
	return out
}

func MapMessages(items []*domainmessaging.Message, profiles Profiles) []Message {
	out := make([]Message, 0, len(items))
	for _, m := range items {
		out = append(out, MapMessage(m, profiles))
	}
	return out
}

func MapParticipantState(s *domainmessaging.ParticipantState) ParticipantState {
	if s == nil {
		return ParticipantState{}
	}
	out := ParticipantState{
		Archived:    s.Archived,
		Deleted:     s.Deleted,
		DeletedAt:   s.DeletedAt,
		Favorite:    s.Favorite,
		UnreadCount: s.UnreadCount,
	}
	if !s.LastReadAt.IsZero() {
		at := s.LastReadAt
		out.LastReadAt = &at
	}
	return out
}

func MapConversation(c *domainmessaging.Conversation, state *domainmessaging.ParticipantState, last *domainmessaging.Message, profiles Profiles) Conversation {
	if c == nil {
		return Conversation{}
	}
	out := Conversation{
		ID:             string(c.ID),
		Participants:   profiles.Summaries(c.Participants),
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
		State:          MapParticipantState(state),
	}
	if c.Context != nil {
		out.Context = &ContextRef{Kind: c.Context.Kind, ID: c.Context.ID}
	}
	if last != nil {
		msg := MapMessage(last, profiles)
		out.LastMessage = &msg
	}
	return out
}
