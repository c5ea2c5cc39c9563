package readtracking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/app/outbox"
	"learnhub/internal/app/services/readtracking"
	domainmessaging "learnhub/internal/domain/messaging"
	"learnhub/internal/infra/storage/memory"
)

var start = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	coord    *readtracking.Coordinator
	messages *memory.MessageRepository
	states   *memory.ParticipantStateRepository
	box      *memory.Outbox
}

func newFixture(t *testing.T, recipients []string, count int) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		messages: memory.NewMessageRepository(),
		states:   memory.NewParticipantStateRepository(),
		box:      memory.NewOutbox(),
	}
	f.coord = &readtracking.Coordinator{
		Messages: f.messages,
		States:   f.states,
		Events:   outbox.Publisher{Box: f.box},
		Now:      func() time.Time { return start.Add(time.Hour) },
	}
	for i := 0; i < count; i++ {
		require.NoError(t, f.messages.Insert(ctx, &domainmessaging.Message{
			ID:             domainmessaging.MessageID(string(rune('a'+i)) + "-msg"),
			ConversationID: "c1",
			SenderID:       "sender",
			Recipients:     recipients,
			Content:        "hello",
			CreatedAt:      start.Add(time.Duration(i) * time.Minute),
		}))
		require.NoError(t, f.states.IncrementUnread(ctx, "c1", recipients))
	}
	return f
}

func (f fixture) unread(t *testing.T, user string) int64 {
	t.Helper()
	st, err := f.states.Get(context.Background(), domainmessaging.StateKey{ConversationID: "c1", UserID: user})
	require.NoError(t, err)
	return st.UnreadCount
}

func TestMarkConversationReadZeroesCounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"b"}, 3)
	require.EqualValues(t, 3, f.unread(t, "b"))

	changed, err := f.coord.MarkConversationRead(ctx, "b", "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, changed)
	assert.Zero(t, f.unread(t, "b"))

	st, err := f.states.Get(ctx, domainmessaging.StateKey{ConversationID: "c1", UserID: "b"})
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), st.LastReadAt)

	changed, err = f.coord.MarkConversationRead(ctx, "b", "c1")
	require.NoError(t, err)
	assert.Zero(t, changed)

	require.NoError(t, f.box.Flush(ctx))
	assert.Equal(t, []string{domainmessaging.EventConversationRead}, f.box.Published())
}

func TestMarkMessageReadDecrementsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"b"}, 2)

	msg, err := f.coord.MarkMessageRead(ctx, "b", "a-msg")
	require.NoError(t, err)
	assert.True(t, msg.Read)
	assert.EqualValues(t, 1, f.unread(t, "b"))

	again, err := f.coord.MarkMessageRead(ctx, "b", "a-msg")
	require.NoError(t, err)
	assert.True(t, again.Read)
	assert.EqualValues(t, 1, f.unread(t, "b"))
}

func TestMarkMessageReadConcurrentCallsDecrementOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"b"}, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.MarkMessageRead(ctx, "b", "b-msg")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, f.unread(t, "b"))
}

func TestMarkMessageReadRejectsNonRecipients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"b"}, 1)

	_, err := f.coord.MarkMessageRead(ctx, "sender", "a-msg")
	assert.ErrorIs(t, err, domainmessaging.ErrMessageNotFound)

	_, err = f.coord.MarkMessageRead(ctx, "b", "missing")
	assert.ErrorIs(t, err, domainmessaging.ErrMessageNotFound)
	assert.EqualValues(t, 1, f.unread(t, "b"))
}

func TestMarkMessageReadCountsEachRecipientInGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []string{"b", "c"}, 1)

	_, err := f.coord.MarkMessageRead(ctx, "b", "a-msg")
	require.NoError(t, err)
	assert.Zero(t, f.unread(t, "b"))
	assert.EqualValues(t, 1, f.unread(t, "c"))

	msg, err := f.coord.MarkMessageRead(ctx, "c", "a-msg")
	require.NoError(t, err)
	assert.Zero(t, f.unread(t, "c"))
	assert.ElementsMatch(t, []string{"b", "c"}, msg.ReadBy)
}
