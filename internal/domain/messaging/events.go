package messaging

import (
	"time"

	"learnhub/internal/domain/shared/events"
)

const (
	EventConversationCreated = "conversation.created"
	EventConversationRead    = "conversation.read"
	EventMessageSent         = "message.sent"
	EventMessageDeleted      = "message.deleted"
)

type ConversationCreated struct {
	ConversationID ConversationID `json:"conversation_id"`
	CreatedBy      string         `json:"created_by"`
	Participants   []string       `json:"participants"`
	At             time.Time      `json:"at"`
}

func (e ConversationCreated) EventName() string     { return EventConversationCreated }
func (e ConversationCreated) AggregateID() string   { return string(e.ConversationID) }
func (e ConversationCreated) OccurredAt() time.Time { return e.At }

type ConversationRead struct {
	ConversationID ConversationID `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	MessagesRead   int64          `json:"messages_read"`
	At             time.Time      `json:"at"`
}

func (e ConversationRead) EventName() string     { return EventConversationRead }
func (e ConversationRead) AggregateID() string   { return string(e.ConversationID) }
func (e ConversationRead) OccurredAt() time.Time { return e.At }

type MessageSent struct {
	MessageID      MessageID      `json:"message_id"`
	ConversationID ConversationID `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	Recipients     []string       `json:"recipients"`
	HasAttachment  bool           `json:"has_attachment"`
	At             time.Time      `json:"at"`
}

func (e MessageSent) EventName() string     { return EventMessageSent }
func (e MessageSent) AggregateID() string   { return string(e.ConversationID) }
func (e MessageSent) OccurredAt() time.Time { return e.At }

type MessageDeleted struct {
	MessageID      MessageID      `json:"message_id"`
	ConversationID ConversationID `json:"conversation_id"`
	DeletedBy      string         `json:"deleted_by"`
	ForEveryone    bool           `json:"for_everyone"`
	At             time.Time      `json:"at"`
}

func (e MessageDeleted) EventName() string     { return EventMessageDeleted }
func (e MessageDeleted) AggregateID() string   { return string(e.ConversationID) }
func (e MessageDeleted) OccurredAt() time.Time { return e.At }

var (
	_ events.DomainEvent = ConversationCreated{}
	_ events.DomainEvent = ConversationRead{}
	_ events.DomainEvent = MessageSent{}
	_ events.DomainEvent = MessageDeleted{}
)
