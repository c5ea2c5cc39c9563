package user

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("user: not found")
	ErrIDRequired    = errors.New("user: id is required")
	ErrQueryTooShort = errors.New("user: search query must be at least 2 characters")
)

type ID string

type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleRecruiter  Role = "recruiter"
	RoleAdmin      Role = "admin"
)

// Profile is the directory view of a user that messaging is allowed to expose.
type Profile struct {
	ID          ID
	DisplayName string
	AvatarURL   string
	Role        Role
}

// Directory resolves and searches user profiles. It is owned by another service.
type Directory interface {
	// ByIDs returns the profiles it can resolve; missing ids are simply absent from the map.
	ByIDs(ctx context.Context, ids []ID) (map[ID]Profile, error)
	Search(ctx context.Context, query string, limit int) ([]Profile, error)
}

// Missing returns the requested ids that the resolved map does not contain.
func Missing(ids []ID, resolved map[ID]Profile) []ID {
	var out []ID
	for _, id := range ids {
		if _, ok := resolved[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// MatchesQuery is the name-or-identifier predicate used by in-process directories.
func MatchesQuery(p Profile, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	return strings.Contains(strings.ToLower(p.DisplayName), q) || strings.HasPrefix(strings.ToLower(string(p.ID)), q)
}

func ToIDs(raw []string) []ID {
	out := make([]ID, 0, len(raw))
	for _, r := range raw {
		out = append(out, ID(r))
	}
	return out
}
