package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainuser "learnhub/internal/domain/user"
	"learnhub/internal/infra/storage/memory"
)

// unreachableClient points at a closed port so every command fails fast.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	cli := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func TestDirectoryFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	upstream := memory.NewDirectory(domainuser.Profile{ID: "u-ada", DisplayName: "Ada"})
	dir := &Directory{Upstream: upstream, Client: unreachableClient(t)}

	found, err := dir.ByIDs(ctx, []domainuser.ID{"u-ada", "u-ghost"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, "Ada", found["u-ada"].DisplayName)

	results, err := dir.Search(ctx, "ad", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	assert.Error(t, dir.Invalidate(ctx, "u-ada"))
	assert.NoError(t, dir.Invalidate(ctx))
}

func TestCachedProfileRoundTrip(t *testing.T) {
	p := domainuser.Profile{ID: "u-ada", DisplayName: "Ada", AvatarURL: "https://cdn/ada.png", Role: domainuser.RoleInstructor}
	assert.Equal(t, p, newCachedProfile(p).toDomain())
	assert.Equal(t, 10*time.Minute, (&Directory{}).ttl())
}
