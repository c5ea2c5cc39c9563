package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub/internal/app/outbox"
	"learnhub/internal/app/policies"
	"learnhub/internal/app/services/registry"
	domainmessaging "learnhub/internal/domain/messaging"
	domainuser "learnhub/internal/domain/user"
	"learnhub/internal/infra/storage/memory"
)

type failingDirectory struct{}

func (failingDirectory) ByIDs(context.Context, []domainuser.ID) (map[domainuser.ID]domainuser.Profile, error) {
	return nil, errors.New("connection refused")
}

func (failingDirectory) Search(context.Context, string, int) ([]domainuser.Profile, error) {
	return nil, errors.New("connection refused")
}

func newService(dir domainuser.Directory) (*registry.Service, *memory.Outbox) {
	box := memory.NewOutbox()
	return &registry.Service{
		Conversations: memory.NewConversationRepository(),
		States:        memory.NewParticipantStateRepository(),
		Directory:     dir,
		Events:        outbox.Publisher{Box: box},
		Now:           func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
	}, box
}

func seededDirectory() *memory.Directory {
	return memory.NewDirectory(
		domainuser.Profile{ID: "a", DisplayName: "Ada"},
		domainuser.Profile{ID: "b", DisplayName: "Bea"},
		domainuser.Profile{ID: "c", DisplayName: "Cam"},
	)
}

func TestCreateOrGetIsOrderIndependent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(seededDirectory())

	first, created, err := svc.CreateOrGet(ctx, "a", []string{"b"}, nil)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.CreateOrGet(ctx, "b", []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	group, created, err := svc.CreateOrGet(ctx, "a", []string{"b", "c"}, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, group.ID)
}

func TestCreateOrGetCreatesStatesForEveryParticipant(t *testing.T) {
	ctx := context.Background()
	svc, box := newService(seededDirectory())

	conv, _, err := svc.CreateOrGet(ctx, "a", []string{"b", "c"}, &domainmessaging.ContextRef{Kind: "course", ID: "go-101"})
	require.NoError(t, err)
	require.NotNil(t, conv.Context)
	assert.Equal(t, "go-101", conv.Context.ID)

	for _, user := range conv.Participants {
		st, err := svc.States.Get(ctx, domainmessaging.StateKey{ConversationID: conv.ID, UserID: user})
		require.NoError(t, err)
		assert.Zero(t, st.UnreadCount)
	}

	require.NoError(t, box.Flush(ctx))
	assert.Equal(t, []string{domainmessaging.EventConversationCreated}, box.Published())
}

func TestConcurrentCreateConvergesOnOneConversation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(seededDirectory())

	const callers = 20
	ids := make([]domainmessaging.ConversationID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			requester, other := "a", "b"
			if i%2 == 1 {
				requester, other = "b", "a"
			}
			conv, _, err := svc.CreateOrGet(ctx, requester, []string{other}, nil)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	list, err := svc.Conversations.ListByParticipant(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateOrGetValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(seededDirectory())

	_, _, err := svc.CreateOrGet(ctx, "a", []string{"a", " "}, nil)
	assert.ErrorIs(t, err, domainmessaging.ErrTooFewParticipants)

	_, _, err = svc.CreateOrGet(ctx, "a", []string{"ghost"}, nil)
	assert.ErrorIs(t, err, domainmessaging.ErrParticipantUnknown)
	assert.Contains(t, err.Error(), "ghost")

	list, err := svc.Conversations.ListByParticipant(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateOrGetDirectoryFailure(t *testing.T) {
	svc, _ := newService(failingDirectory{})
	_, _, err := svc.CreateOrGet(context.Background(), "a", []string{"b"}, nil)
	assert.ErrorIs(t, err, policies.ErrDirectoryUnavailable)
}

func TestRequireHidesConversationFromOutsiders(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(seededDirectory())
	conv, _, err := svc.CreateOrGet(ctx, "a", []string{"b"}, nil)
	require.NoError(t, err)

	got, err := svc.Require(ctx, "b", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = svc.Require(ctx, "c", conv.ID)
	assert.ErrorIs(t, err, domainmessaging.ErrConversationNotFound)

	st, err := svc.State(ctx, conv, "c")
	require.NoError(t, err)
	assert.Equal(t, "c", st.UserID)
	assert.False(t, st.Deleted)
}
