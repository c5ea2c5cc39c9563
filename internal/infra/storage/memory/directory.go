package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	domainuser "learnhub/internal/domain/user"
)

// Directory is an in-memory user directory, loaded from fixtures in local runs.
type Directory struct {
	mu       sync.RWMutex
	profiles map[domainuser.ID]domainuser.Profile
}

func NewDirectory(profiles ...domainuser.Profile) *Directory {
	d := &Directory{profiles: make(map[domainuser.ID]domainuser.Profile)}
	for _, p := range profiles {
		_ = d.Put(context.Background(), p)
	}
	return d
}

func (d *Directory) Put(ctx context.Context, p domainuser.Profile) error {
	p.ID = domainuser.ID(strings.TrimSpace(string(p.ID)))
	if p.ID == "" {
		return domainuser.ErrIDRequired
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
	return nil
}

func (d *Directory) ByIDs(ctx context.Context, ids []domainuser.ID) (map[domainuser.ID]domainuser.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[domainuser.ID]domainuser.Profile, len(ids))
	for _, id := range ids {
		if p, ok := d.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (d *Directory) Search(ctx context.Context, query string, limit int) ([]domainuser.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domainuser.Profile
	for _, p := range d.profiles {
		if domainuser.MatchesQuery(p, query) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].ID < out[j].ID
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domainuser.Directory = (*Directory)(nil)
