package conversations

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"learnhub/internal/app/dto"
	"learnhub/internal/app/policies"
	"learnhub/internal/app/queries"
	domainuser "learnhub/internal/domain/user"
)

const (
	searchUsersKey     = "conversations.search_users"
	defaultUserResults = 20
	maxUserResults     = 50
)

// SearchUsersQuery looks up people the caller can start a conversation with.
type SearchUsersQuery struct {
	UserID string
	Query  string
	Limit  int
}

func (q SearchUsersQuery) Key() string   { return searchUsersKey }
func (q SearchUsersQuery) Actor() string { return q.UserID }

func (q SearchUsersQuery) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(q.Query)) < 2 {
		return domainuser.ErrQueryTooShort
	}
	return nil
}

type SearchUsersHandler struct {
	Directory domainuser.Directory
}

func (h *SearchUsersHandler) Handle(ctx context.Context, q SearchUsersQuery) ([]dto.ProfileSummary, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > maxUserResults {
		limit = defaultUserResults
	}
	// One extra slot so excluding the caller still fills the page.
	found, err := h.Directory.Search(ctx, strings.TrimSpace(q.Query), limit+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", policies.ErrDirectoryUnavailable, err)
	}
	out := make([]dto.ProfileSummary, 0, len(found))
	for _, p := range found {
		if string(p.ID) == q.UserID {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, dto.MapProfileSummary(p))
	}
	return out, nil
}

var _ queries.Handler[SearchUsersQuery, []dto.ProfileSummary] = (*SearchUsersHandler)(nil)
