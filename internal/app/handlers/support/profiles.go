package support

import (
	"context"
	"fmt"

	"learnhub/internal/app/dto"
	"learnhub/internal/app/policies"
	domainuser "learnhub/internal/domain/user"
)

// LoadProfiles resolves the distinct ids of every group through the directory.
func LoadProfiles(ctx context.Context, dir domainuser.Directory, groups ...[]string) (dto.Profiles, error) {
	seen := make(map[string]struct{})
	var ids []domainuser.ID
	for _, group := range groups {
		for _, id := range group {
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, domainuser.ID(id))
		}
	}
	if len(ids) == 0 {
		return dto.Profiles{}, nil
	}
	if dir == nil {
		return nil, policies.ErrDirectoryUnavailable
	}
	resolved, err := dir.ByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", policies.ErrDirectoryUnavailable, err)
	}
	return dto.Profiles(resolved), nil
}
