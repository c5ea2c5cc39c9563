package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainmessaging "learnhub/internal/domain/messaging"
)

var base = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func seedMessage(t *testing.T, repo *MessageRepository, id, conv, sender string, recipients []string, content string, offset time.Duration) {
	t.Helper()
	require.NoError(t, repo.Insert(context.Background(), &domainmessaging.Message{
		ID:             domainmessaging.MessageID(id),
		ConversationID: domainmessaging.ConversationID(conv),
		SenderID:       sender,
		Recipients:     recipients,
		Content:        content,
		CreatedAt:      base.Add(offset),
	}))
}

func TestLatestIsNewestFirstAndBounded(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	for i := 0; i < 60; i++ {
		seedMessage(t, repo, fmt.Sprintf("m%02d", i), "c1", "a", []string{"b"}, "hi", time.Duration(i)*time.Second)
	}
	latest, err := repo.Latest(ctx, "c1", domainmessaging.VisibilityScope{UserID: "b"}, 50)
	require.NoError(t, err)
	require.Len(t, latest, 50)
	assert.Equal(t, domainmessaging.MessageID("m59"), latest[0].ID)
	assert.Equal(t, domainmessaging.MessageID("m10"), latest[49].ID)

	outsider, err := repo.Latest(ctx, "c1", domainmessaging.VisibilityScope{UserID: "z"}, 50)
	require.NoError(t, err)
	assert.Empty(t, outsider)
}

func TestLatestAppliesBoundary(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	seedMessage(t, repo, "old", "c1", "a", []string{"b"}, "old", 0)
	seedMessage(t, repo, "new", "c1", "a", []string{"b"}, "new", time.Minute)

	scope := domainmessaging.VisibilityScope{UserID: "b", HiddenBefore: base.Add(30 * time.Second)}
	latest, err := repo.Latest(ctx, "c1", scope, 10)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, domainmessaging.MessageID("new"), latest[0].ID)

	last, err := repo.LastVisible(ctx, "c2", scope)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestMarkReadForOnlyTouchesRecipient(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	seedMessage(t, repo, "m1", "c1", "a", []string{"b"}, "to b", 0)
	seedMessage(t, repo, "m2", "c1", "b", []string{"a"}, "to a", time.Second)

	changed, err := repo.MarkReadFor(ctx, "c1", "b", base)
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	m2, err := repo.ByID(ctx, "m2")
	require.NoError(t, err)
	assert.False(t, m2.Read)

	changed, err = repo.MarkReadFor(ctx, "c1", "b", base)
	require.NoError(t, err)
	assert.Zero(t, changed)

	flipped, err := repo.MarkOneRead(ctx, "m2", "b", base)
	require.NoError(t, err)
	assert.False(t, flipped, "sender has no receipt to record")
	flipped, err = repo.MarkOneRead(ctx, "m2", "a", base)
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = repo.MarkOneRead(ctx, "m2", "a", base)
	require.NoError(t, err)
	assert.False(t, flipped)
}

func TestReceiptsArePerRecipient(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	seedMessage(t, repo, "m1", "c1", "a", []string{"b", "c"}, "to both", 0)

	flipped, err := repo.MarkOneRead(ctx, "m1", "b", base)
	require.NoError(t, err)
	assert.True(t, flipped)

	changed, err := repo.MarkReadFor(ctx, "c1", "c", base.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	m1, err := repo.ByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, m1.ReadBy)
	require.NotNil(t, m1.ReadAt)
	assert.Equal(t, base, *m1.ReadAt)
}

func TestSearchRespectsScope(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	seedMessage(t, repo, "m1", "c1", "a", []string{"b"}, "Budget draft", 0)
	seedMessage(t, repo, "m2", "c1", "b", []string{"a"}, "final budget", time.Minute)
	seedMessage(t, repo, "m3", "c2", "a", []string{"c"}, "budget for c", 2*time.Minute)

	scope := domainmessaging.SearchScope{UserID: "b", Conversations: map[domainmessaging.ConversationID]time.Time{"c1": {}, "c2": {}}}
	found, err := repo.Search(ctx, scope, "budget", 50)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, domainmessaging.MessageID("m2"), found[0].ID)

	scope.Conversations["c1"] = base.Add(30 * time.Second)
	found, err = repo.Search(ctx, scope, "budget", 50)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, domainmessaging.MessageID("m2"), found[0].ID)
}

func TestRemoveRecipientAndReactions(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	seedMessage(t, repo, "m1", "c1", "a", []string{"b", "c"}, "hi", 0)

	left, err := repo.RemoveRecipient(ctx, "m1", "b")
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	r := domainmessaging.Reaction{UserID: "c", Symbol: "🎉"}
	require.NoError(t, repo.AddReaction(ctx, "m1", r))
	require.NoError(t, repo.AddReaction(ctx, "m1", r))
	m, err := repo.ByID(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, m.Reactions, 1)

	removed, err := repo.RemoveReaction(ctx, "m1", r)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveReaction(ctx, "m1", r)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = repo.RemoveRecipient(ctx, "missing", "b")
	assert.ErrorIs(t, err, domainmessaging.ErrMessageNotFound)
}
