package messaging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeParticipants(t *testing.T) {
	tests := []struct {
		name      string
		requester string
		ids       []string
		want      []string
		wantErr   error
	}{
		{name: "adds requester and sorts", requester: "u2", ids: []string{"u1"}, want: []string{"u1", "u2"}},
		{name: "drops duplicates and blanks", requester: "u1", ids: []string{" u3 ", "u1", "", "u3"}, want: []string{"u1", "u3"}},
		{name: "group", requester: "c", ids: []string{"b", "a"}, want: []string{"a", "b", "c"}},
		{name: "only self", requester: "u1", ids: []string{"u1"}, wantErr: ErrTooFewParticipants},
		{name: "nothing", requester: "u1", ids: nil, wantErr: ErrTooFewParticipants},
		{name: "separator is rejected", requester: "u1", ids: []string{"a|b"}, wantErr: ErrTooFewParticipants},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeParticipants(tt.requester, tt.ids)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParticipantKeyIgnoresOrder(t *testing.T) {
	assert.Equal(t, ParticipantKey([]string{"b", "a", "c"}), ParticipantKey([]string{"c", "b", "a"}))
	assert.NotEqual(t, ParticipantKey([]string{"a", "b"}), ParticipantKey([]string{"a", "b", "c"}))
}

func TestNewConversation(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	conv, err := NewConversation(CreateConversationParams{
		ID:           "c1",
		CreatedBy:    "u2",
		Participants: []string{"u1"},
		Context:      &ContextRef{Kind: "course", ID: " go-101 "},
		Now:          now,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, conv.Participants)
	assert.Equal(t, "u1|u2", conv.ParticipantKey)
	assert.Equal(t, now.UTC(), conv.CreatedAt)
	assert.Equal(t, conv.CreatedAt, conv.LastActivityAt)
	require.NotNil(t, conv.Context)
	assert.Equal(t, "go-101", conv.Context.ID)

	_, err = NewConversation(CreateConversationParams{CreatedBy: "u1", Participants: []string{"u2"}})
	assert.ErrorIs(t, err, ErrIDRequired)
}

func TestUnknownParticipantNamesTheID(t *testing.T) {
	err := UnknownParticipant("ghost")
	assert.True(t, errors.Is(err, ErrParticipantUnknown))
	assert.Contains(t, err.Error(), "ghost")
}

func TestOthers(t *testing.T) {
	conv := &Conversation{Participants: []string{"a", "b", "c"}}
	assert.Equal(t, []string{"a", "c"}, Others(conv, "b"))
	assert.True(t, IsParticipant(conv, "c"))
	assert.False(t, IsParticipant(conv, "z"))
	assert.False(t, IsParticipant(nil, "a"))
}
