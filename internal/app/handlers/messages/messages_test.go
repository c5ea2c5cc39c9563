package messages_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/app/dto"
	"learnhub/internal/app/handlers/conversations"
	"learnhub/internal/app/handlers/messages"
	"learnhub/internal/app/outbox"
	"learnhub/internal/app/policies"
	"learnhub/internal/app/services/readtracking"
	"learnhub/internal/app/services/registry"
	domainmessaging "learnhub/internal/domain/messaging"
	domainuser "learnhub/internal/domain/user"
	"learnhub/internal/infra/storage/memory"
)

// tickingClock advances one second per reading so every write gets a distinct timestamp.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	registry *registry.Service
	messages *memory.MessageRepository
	states   *memory.ParticipantStateRepository
	files    *memory.AttachmentStore
	box      *memory.Outbox

	send   *messages.SendMessageHandler
	fetch  *messages.FetchMessagesHandler
	del    *messages.DeleteMessageHandler
	read   *messages.MarkMessageReadHandler
	react  *messages.ToggleReactionHandler
	search *messages.SearchMessagesHandler
	update *conversations.UpdateConversationHandler
}

func newHarness() *harness {
	clock := &tickingClock{now: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
	dir := memory.NewDirectory(
		domainuser.Profile{ID: "a", DisplayName: "Ada"},
		domainuser.Profile{ID: "b", DisplayName: "Bea"},
		domainuser.Profile{ID: "c", DisplayName: "Cam"},
	)
	box := memory.NewOutbox()
	events := outbox.Publisher{Box: box}
	convs := memory.NewConversationRepository()
	states := memory.NewParticipantStateRepository()
	msgs := memory.NewMessageRepository()
	files := memory.NewAttachmentStore(1 << 20)

	reg := &registry.Service{Conversations: convs, States: states, Directory: dir, Events: events, Now: clock.Now}
	reads := &readtracking.Coordinator{Messages: msgs, States: states, Events: events, Now: clock.Now}
	return &harness{
		registry: reg,
		messages: msgs,
		states:   states,
		files:    files,
		box:      box,
		send:     &messages.SendMessageHandler{Registry: reg, Messages: msgs, Attachments: files, Events: events, Now: clock.Now},
		fetch:    &messages.FetchMessagesHandler{Registry: reg, Reads: reads, Messages: msgs},
		del:      &messages.DeleteMessageHandler{Messages: msgs, States: states, Attachments: files, Events: events, Now: clock.Now},
		read:     &messages.MarkMessageReadHandler{Reads: reads, Directory: dir},
		react:    &messages.ToggleReactionHandler{Messages: msgs, Directory: dir},
		search:   &messages.SearchMessagesHandler{Conversations: convs, States: states, Messages: msgs, Directory: dir},
		update:   &conversations.UpdateConversationHandler{Registry: reg, Messages: msgs, Now: clock.Now},
	}
}

func (h *harness) conversation(t *testing.T, users ...string) string {
	t.Helper()
	conv, _, err := h.registry.CreateOrGet(context.Background(), users[0], users[1:], nil)
	require.NoError(t, err)
	return string(conv.ID)
}

func (h *harness) say(t *testing.T, conv, sender, content string) dto.Message {
	t.Helper()
	msg, err := h.send.Handle(context.Background(), messages.SendMessageCommand{SenderID: sender, ConversationID: conv, Content: content})
	require.NoError(t, err)
	return msg
}

func (h *harness) unread(t *testing.T, conv, user string) int64 {
	t.Helper()
	st, err := h.states.Get(context.Background(), domainmessaging.StateKey{ConversationID: domainmessaging.ConversationID(conv), UserID: user})
	require.NoError(t, err)
	return st.UnreadCount
}

func (h *harness) contents(t *testing.T, conv, user string) []string {
	t.Helper()
	list, err := h.fetch.Handle(context.Background(), messages.FetchMessagesQuery{UserID: user, ConversationID: conv})
	require.NoError(t, err)
	out := make([]string, 0, len(list.Items))
	for _, m := range list.Items {
		out = append(out, m.Content)
	}
	return out
}

func TestUnreadAccountingAcrossFetch(t *testing.T) {
	h := newHarness()
	conv := h.conversation(t, "a", "b")
	for _, text := range []string{"one", "two", "three"} {
		h.say(t, conv, "a", text)
	}
	assert.EqualValues(t, 3, h.unread(t, conv, "b"))
	assert.EqualValues(t, 0, h.unread(t, conv, "a"))

	first, err := h.fetch.Handle(context.Background(), messages.FetchMessagesQuery{UserID: "b", ConversationID: conv})
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	assert.Equal(t, "one", first.Items[0].Content)
	assert.Equal(t, "three", first.Items[2].Content)
	assert.Zero(t, h.unread(t, conv, "b"))

	second, err := h.fetch.Handle(context.Background(), messages.FetchMessagesQuery{UserID: "b", ConversationID: conv})
	require.NoError(t, err)
	for _, m := range second.Items {
		assert.True(t, m.Read, m.ID)
	}
}

func TestFetchReturnsNewestPageInDisplayOrder(t *testing.T) {
	h := newHarness()
	conv := h.conversation(t, "a", "b")
	var last dto.Message
	for i := 0; i < messages.PageSize+5; i++ {
		last = h.say(t, conv, "a", "msg")
	}
	list, err := h.fetch.Handle(context.Background(), messages.FetchMessagesQuery{UserID: "a", ConversationID: conv})
	require.NoError(t, err)
	require.Len(t, list.Items, messages.PageSize)
	assert.Equal(t, last.ID, list.Items[len(list.Items)-1].ID)
	for i := 1; i < len(list.Items); i++ {
		assert.False(t, list.Items[i].CreatedAt.Before(list.Items[i-1].CreatedAt))
	}

	_, err = h.fetch.Handle(context.Background(), messages.FetchMessagesQuery{UserID: "c", ConversationID: conv})
	assert.ErrorIs(t, err, domainmessaging.ErrConversationNotFound)
}

func TestArchiveIsPrivateToCaller(t *testing.T) {
	h := newHarness()
	conv := h.conversation(t, "a", "b")
	h.say(t, conv, "a", "hello")

	archived := true
	view, err := h.update.Handle(context.Background(), conversations.UpdateConversationCommand{UserID: "a", ConversationID: conv, Archived: &archived})
	require.NoError(t, err)
	assert.True(t, view.State.Archived)

	st, err := h.states.Get(context.Background(), domainmessaging.StateKey{ConversationID: domainmessaging.ConversationID(conv), UserID: "b"})
	require.NoError(t, err)
	assert.False(t, st.Archived)
	assert.False(t, st.Favorite)
	assert.EqualValues(t, 1, st.UnreadCount)
}

func TestSoftDeleteHidesEarlierHistoryFromCallerOnly(t *testing.T) {
	h := newHarness()
	conv := h.conversation(t, "a", "b")
	h.say(t, conv, "a", "before")
	h.say(t, conv, "b", "reply before")

	deleted := true
	_, err := h.update.Handle(context.Background(), conversations.UpdateConversationCommand{UserID: "b", ConversationID: conv, Deleted: &deleted})
	require.NoError(t, err)

	assert.Empty(t, h.contents(t, conv, "b"))
	assert.Equal(t, []string{"before", "reply before"}, h.contents(t, conv, "a"))

	h.say(t, conv, "a", "after")
	assert.Equal(t, []string{"after"}, h.contents(t, conv, "b"))
	assert.Equal(t, []string{"before", "reply before", "after"}, h.contents(t, conv, "a"))

	st, err := h.states.Get(context.Background(), domainmessaging.StateKey{ConversationID: domainmessaging.ConversationID(conv), UserID: "b"})
	require.NoError(t, err)
	assert.False(t, st.Deleted)
	assert.NotNil(t, st.DeletedAt)
}

var pdf = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func TestSenderDeleteRemovesMessageAndAttachment(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	conv := h.conversation(t, "a", "b")
	sent, err := h.send.Handle(ctx, messages.SendMessageCommand{
		SenderID:       "a",
		ConversationID: conv,
		Upload:         &policies.Upload{Filename: "syllabus.pdf", Body: bytes.NewReader(pdf)},
	})
	require.NoError(t, err)
	require.NotNil(t, sent.Attachment)
	require.True(t, h.files.Has(sent.Attachment.Path))
	assert.EqualValues(t, 1, h.unread(t, conv, "b"))

	res, err := h.del.Handle(ctx, messages.DeleteMessageCommand{UserID: "a", MessageID: sent.ID})
	require.NoError(t, err)
	assert.True(t, res.ForEveryone)
	assert.False(t, h.files.Has(sent.Attachment.Path))
	assert.Empty(t, h.contents(t, conv, "a"))
	assert.Empty(t, h.contents(t, conv, "b"))
	assert.Zero(t, h.unread(t, conv, "b"))
}

func TestRecipientDeleteOnlyHidesForCaller(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	conv := h.conversation(t, "a", "b", "c")
	sent := h.say(t, conv, "a", "group note")

	res, err := h.del.Handle(ctx, messages.DeleteMessageCommand{UserID: "b", MessageID: sent.ID})
	require.NoError(t, err)
	assert.False(t, res.ForEveryone)
	assert.Zero(t, h.unread(t, conv, "b"))
	assert.EqualValues(t, 1, h.unread(t, conv, "c"))

	assert.Empty(t, h.contents(t, conv, "b"))
	assert.Equal(t, []string{"group note"}, h.contents(t, conv, "a"))
	assert.Equal(t, []string{"group note"}, h.contents(t, conv, "c"))

	_, err = h.del.Handle(ctx, messages.DeleteMessageCommand{UserID: "b", MessageID: sent.ID})
	assert.ErrorIs(t, err, domainmessaging.ErrMessageNotFound)
}

func TestSenderDeleteCountsEachRecipientReceipt(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	conv := h.conversation(t, "a", "b", "c")
	sent := h.say(t, conv, "a", "group note")

	_, err := h.read.Handle(ctx, messages.MarkMessageReadCommand{UserID: "b", MessageID: sent.ID})
	require.NoError(t, err)
	assert.Zero(t, h.unread(t, conv, "b"))
	assert.EqualValues(t, 1, h.unread(t, conv, "c"))

	res, err := h.del.Handle(ctx, messages.DeleteMessageCommand{UserID: "a", MessageID: sent.ID})
	require.NoError(t, err)
	assert.True(t, res.ForEveryone)
	assert.Zero(t, h.unread(t, conv, "b"))
	assert.Zero(t, h.unread(t, conv, "c"))
}

func TestRecipientDeleteAfterOwnReadKeepsCounter(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	conv := h.conversation(t, "a", "b", "c")
	read := h.say(t, conv, "a", "read me")
	h.say(t, conv, "a", "still unread")

	_, err := h.read.Handle(ctx, messages.MarkMessageReadCommand{UserID: "b", MessageID: read.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, h.unread(t, conv, "b"))

	_, err = h.del.Handle(ctx, messages.DeleteMessageCommand{UserID: "b", MessageID: read.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.unread(t, conv, "b"))

	_, err = h.del.Handle(ctx, messages.DeleteMessageCommand{UserID: "c", MessageID: read.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.unread(t, conv, "c"))
}

func TestSenderPostingReopensConversationTheyDeleted(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	conv := h.conversation(t, "a", "b")
	h.say(t, conv, "a", "old agenda")

	deleted := true
	_, err := h.update.Handle(ctx, conversations.UpdateConversationCommand{UserID: "a", ConversationID: conv, Deleted: &deleted})
	require.NoError(t, err)

	h.say(t, conv, "a", "new agenda")

	st, err := h.states.Get(ctx, domainmessaging.StateKey{ConversationID: domainmessaging.ConversationID(conv), UserID: "a"})
	require.NoError(t, err)
	assert.False(t, st.Deleted)
	assert.NotNil(t, st.DeletedAt)
	assert.Equal(t, []string{"new agenda"}, h.contents(t, conv, "a"))

	found, err := h.search.Handle(ctx, messages.SearchMessagesQuery{UserID: "a", Query: "agenda"})
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "new agenda", found.Items[0].Content)
}

// brokenCounters fails every unread increment.
type brokenCounters struct {
	*memory.ParticipantStateRepository
}

func (brokenCounters) IncrementUnread(context.Context, domainmessaging.ConversationID, []string) error {
	return errors.New("counter store down")
}

func TestFailedFanOutRewindsLastMessage(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	conv := h.conversation(t, "a", "b")
	first := h.say(t, conv, "a", "first")

	broken := *h.registry
	broken.States = brokenCounters{h.states}
	send := &messages.SendMessageHandler{Registry: &broken, Messages: h.messages, Attachments: h.files, Events: broken.Events, Now: broken.Now}
	_, err := send.Handle(ctx, messages.SendMessageCommand{SenderID: "a", ConversationID: conv, Content: "second"})
	require.Error(t, err)

	stored, err := h.registry.Conversations.ByID(ctx, domainmessaging.ConversationID(conv))
	require.NoError(t, err)
	assert.Equal(t, domainmessaging.MessageID(first.ID), stored.LastMessageID)
	assert.Equal(t, first.CreatedAt, stored.LastMessageAt)
	assert.Equal(t, []string{"first"}, h.contents(t, conv, "a"))
}

func TestSearchNeverLeaksOtherConversations(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ab := h.conversation(t, "a", "b")
	ac := h.conversation(t, "a", "c")
	h.say(t, ab, "a", "the budget is final")
	h.say(t, ac, "c", "no match here")

	res, err := h.search.Handle(ctx, messages.SearchMessagesQuery{UserID: "c", Query: "the budget is final"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	res, err = h.search.Handle(ctx, messages.SearchMessagesQuery{UserID: "b", Query: "BUDGET"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Ada", res.Items[0].Sender.DisplayName)

	_, err = h.search.Handle(ctx, messages.SearchMessagesQuery{UserID: "b", Query: " b "})
	assert.ErrorIs(t, err, domainmessaging.ErrQueryTooShort)
}

func TestSearchSkipsConversationsTheCallerDeleted(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	conv := h.conversation(t, "a", "b")
	h.say(t, conv, "a", "budget v1")

	deleted := true
	_, err := h.update.Handle(ctx, conversations.UpdateConversationCommand{UserID: "b", ConversationID: conv, Deleted: &deleted})
	require.NoError(t, err)

	res, err := h.search.Handle(ctx, messages.SearchMessagesQuery{UserID: "b", Query: "budget"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	res, err = h.search.Handle(ctx, messages.SearchMessagesQuery{UserID: "a", Query: "budget"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
}

func TestInvalidSendLeavesNoTrace(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.send.Handle(ctx, messages.SendMessageCommand{SenderID: "a", RecipientID: "b", Content: "   "})
	assert.ErrorIs(t, err, domainmessaging.ErrEmptyMessage)

	convs, err := h.registry.Conversations.ListByParticipant(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, convs)
	states, err := h.states.ListForUser(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, states)

	_, err = h.send.Handle(ctx, messages.SendMessageCommand{SenderID: "a", RecipientID: "b", Upload: &policies.Upload{Filename: "x.sh", Body: bytes.NewReader([]byte("#!/bin/sh\nrm -rf /\n"))}})
	assert.ErrorIs(t, err, policies.ErrAttachmentRejected)
	convs, err = h.registry.Conversations.ListByParticipant(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestSendToRecipientCreatesDirectConversation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	first, err := h.send.Handle(ctx, messages.SendMessageCommand{SenderID: "a", RecipientID: "b", Content: "hi"})
	require.NoError(t, err)
	second, err := h.send.Handle(ctx, messages.SendMessageCommand{SenderID: "b", RecipientID: "a", Content: "hey"})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.EqualValues(t, 1, h.unread(t, first.ConversationID, "a"))
	assert.EqualValues(t, 1, h.unread(t, first.ConversationID, "b"))

	_, err = h.send.Handle(ctx, messages.SendMessageCommand{SenderID: "a", RecipientID: "ghost", Content: "hi"})
	assert.ErrorIs(t, err, domainmessaging.ErrParticipantUnknown)

	require.NoError(t, h.box.Flush(ctx))
	assert.Equal(t, []string{
		domainmessaging.EventConversationCreated,
		domainmessaging.EventMessageSent,
		domainmessaging.EventMessageSent,
	}, h.box.Published())
}

func TestMarkReadAndReactions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	conv := h.conversation(t, "a", "b")
	sent := h.say(t, conv, "a", "ping")

	read, err := h.read.Handle(ctx, messages.MarkMessageReadCommand{UserID: "b", MessageID: sent.ID})
	require.NoError(t, err)
	assert.True(t, read.Read)
	assert.Zero(t, h.unread(t, conv, "b"))

	_, err = h.read.Handle(ctx, messages.MarkMessageReadCommand{UserID: "a", MessageID: sent.ID})
	assert.ErrorIs(t, err, domainmessaging.ErrMessageNotFound)

	reacted, err := h.react.Handle(ctx, messages.ToggleReactionCommand{UserID: "b", MessageID: sent.ID, Symbol: " 👍 "})
	require.NoError(t, err)
	require.Len(t, reacted.Reactions, 1)
	assert.Equal(t, "👍", reacted.Reactions[0].Symbol)

	cleared, err := h.react.Handle(ctx, messages.ToggleReactionCommand{UserID: "b", MessageID: sent.ID, Symbol: "👍"})
	require.NoError(t, err)
	assert.Empty(t, cleared.Reactions)

	_, err = h.react.Handle(ctx, messages.ToggleReactionCommand{UserID: "c", MessageID: sent.ID, Symbol: "👍"})
	assert.ErrorIs(t, err, domainmessaging.ErrMessageNotFound)
}
