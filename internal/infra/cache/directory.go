package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"learnhub/internal/app/policies"
	domainuser "learnhub/internal/domain/user"
)

const profileKeyPrefix = "profile:"

// Directory serves profile lookups from Redis and falls through to the upstream
// directory on misses. Searches always go upstream.
type Directory struct {
	Upstream domainuser.Directory
	Client   redis.UniversalClient
	TTL      time.Duration
	Logger   *slog.Logger
}

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx).Err(); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return cli, nil
}

func (d *Directory) ByIDs(ctx context.Context, ids []domainuser.ID) (map[domainuser.ID]domainuser.Profile, error) {
	out := make(map[domainuser.ID]domainuser.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, profileKeyPrefix+string(id))
	}
	var misses []domainuser.ID
	cached, err := d.Client.MGet(ctx, keys...).Result()
	if err != nil {
		// Cache trouble degrades to the upstream directory.
		d.warn("profile cache read failed", err)
		misses = ids
	} else {
		for i, raw := range cached {
			s, ok := raw.(string)
			if !ok {
				misses = append(misses, ids[i])
				continue
			}
			var doc cachedProfile
			if err := json.Unmarshal([]byte(s), &doc); err != nil {
				misses = append(misses, ids[i])
				continue
			}
			out[ids[i]] = doc.toDomain()
		}
	}
	if len(misses) == 0 {
		return out, nil
	}
	fresh, err := d.Upstream.ByIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	pipe := d.Client.Pipeline()
	for id, p := range fresh {
		out[id] = p
		payload, err := json.Marshal(newCachedProfile(p))
		if err != nil {
			continue
		}
		pipe.Set(ctx, profileKeyPrefix+string(id), payload, d.ttl())
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		d.warn("profile cache write failed", err)
	}
	return out, nil
}

func (d *Directory) Search(ctx context.Context, query string, limit int) ([]domainuser.Profile, error) {
	return d.Upstream.Search(ctx, query, limit)
}

// Invalidate drops cached profiles so the next lookup reads the directory again.
func (d *Directory) Invalidate(ctx context.Context, ids ...domainuser.ID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, profileKeyPrefix+string(id))
	}
	return d.Client.Del(ctx, keys...).Err()
}

func (d *Directory) ttl() time.Duration {
	if d.TTL <= 0 {
		return 10 * time.Minute
	}
	return d.TTL
}

func (d *Directory) warn(msg string, err error) {
	if d.Logger != nil {
		d.Logger.Warn(msg, "error", err)
	}
}

type cachedProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Role        string `json:"role"`
}

func newCachedProfile(p domainuser.Profile) cachedProfile {
	return cachedProfile{ID: string(p.ID), DisplayName: p.DisplayName, AvatarURL: p.AvatarURL, Role: string(p.Role)}
}

func (c cachedProfile) toDomain() domainuser.Profile {
	return domainuser.Profile{ID: domainuser.ID(c.ID), DisplayName: c.DisplayName, AvatarURL: c.AvatarURL, Role: domainuser.Role(c.Role)}
}

var (
	_ domainuser.Directory        = (*Directory)(nil)
	_ policies.ProfileInvalidator = (*Directory)(nil)
)
