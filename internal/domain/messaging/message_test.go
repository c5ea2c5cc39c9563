package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupConversation() *Conversation {
	return &Conversation{ID: "c1", Participants: []string{"a", "b", "c"}}
}

func TestNewMessageRecipientsExcludeSender(t *testing.T) {
	msg, err := NewMessage(NewMessageParams{
		ID:           "m1",
		Conversation: groupConversation(),
		SenderID:     "b",
		Content:      "  hello  ",
		Now:          time.Unix(100, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, msg.Recipients)
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.Read)
}

func TestNewMessageValidation(t *testing.T) {
	conv := groupConversation()
	tests := []struct {
		name    string
		params  NewMessageParams
		wantErr error
	}{
		{name: "empty", params: NewMessageParams{ID: "m", Conversation: conv, SenderID: "a", Content: "   "}, wantErr: ErrEmptyMessage},
		{name: "outsider", params: NewMessageParams{ID: "m", Conversation: conv, SenderID: "z", Content: "hi"}, wantErr: ErrSenderNotAllowed},
		{name: "missing id", params: NewMessageParams{Conversation: conv, SenderID: "a", Content: "hi"}, wantErr: ErrIDRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMessage(tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	msg, err := NewMessage(NewMessageParams{ID: "m", Conversation: conv, SenderID: "a", Attachment: &Attachment{Name: "cv.pdf"}})
	require.NoError(t, err)
	assert.Empty(t, msg.Content)
}

func TestVisibleToHonoursBoundary(t *testing.T) {
	boundary := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	state := &ParticipantState{DeletedAt: &boundary}
	before := &Message{SenderID: "a", Recipients: []string{"b"}, CreatedAt: boundary.Add(-time.Second)}
	at := &Message{SenderID: "a", Recipients: []string{"b"}, CreatedAt: boundary}
	after := &Message{SenderID: "a", Recipients: []string{"b"}, CreatedAt: boundary.Add(time.Second)}

	assert.False(t, VisibleTo(before, state, "b"))
	assert.True(t, VisibleTo(at, state, "b"))
	assert.True(t, VisibleTo(after, state, "b"))
	assert.True(t, VisibleTo(before, nil, "a"))
	assert.False(t, VisibleTo(after, nil, "z"))
}

func TestMarkReadRecordsOneReceiptPerUser(t *testing.T) {
	msg := &Message{Recipients: []string{"b", "c"}}
	first := time.Unix(10, 0)
	assert.True(t, MarkRead(msg, "b", first))
	assert.False(t, MarkRead(msg, "b", time.Unix(20, 0)))
	assert.True(t, msg.Read)
	require.NotNil(t, msg.ReadAt)
	assert.Equal(t, first.UTC(), *msg.ReadAt)

	assert.True(t, HasRead(msg, "b"))
	assert.False(t, HasRead(msg, "c"))

	assert.True(t, MarkRead(msg, "c", time.Unix(30, 0)))
	assert.Equal(t, []string{"b", "c"}, msg.ReadBy)
	assert.Equal(t, first.UTC(), *msg.ReadAt)
}

func TestRemoveRecipient(t *testing.T) {
	msg := &Message{Recipients: []string{"b", "c"}}
	assert.True(t, RemoveRecipient(msg, "b"))
	assert.Equal(t, []string{"c"}, msg.Recipients)
	assert.False(t, RemoveRecipient(msg, "c"))
	assert.Empty(t, msg.Recipients)
}

func TestNormalizeReaction(t *testing.T) {
	symbol, err := NormalizeReaction(" 👍 ")
	require.NoError(t, err)
	assert.Equal(t, "👍", symbol)

	_, err = NormalizeReaction("")
	assert.ErrorIs(t, err, ErrInvalidReaction)
	_, err = NormalizeReaction("this-symbol-is-too-long")
	assert.ErrorIs(t, err, ErrInvalidReaction)
}

func TestNormalizeQuery(t *testing.T) {
	_, err := NormalizeQuery(" a ")
	assert.ErrorIs(t, err, ErrQueryTooShort)
	q, err := NormalizeQuery(" éé ")
	require.NoError(t, err)
	assert.Equal(t, "éé", q)
}

func TestMatches(t *testing.T) {
	msg := &Message{Content: "Quarterly Budget review", Attachment: &Attachment{Name: "Syllabus.pdf"}}
	assert.True(t, Matches(msg, "budget"))
	assert.True(t, Matches(msg, "SYLLABUS"))
	assert.False(t, Matches(msg, "invoice"))
	assert.False(t, Matches(nil, "budget"))
}
