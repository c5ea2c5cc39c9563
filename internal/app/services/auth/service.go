package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"learnhub/internal/app/policies"
	domainuser "learnhub/internal/domain/user"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrUnknownUser  = errors.New("auth: token subject is not a known user")
)

type TokenVerifier interface {
	Subject(token string) (string, error)
}

// Principal is the authenticated caller of a request.
type Principal struct {
	ID      domainuser.ID
	Profile domainuser.Profile
}

// Service resolves bearer tokens into principals known to the user directory.
type Service struct {
	Tokens    TokenVerifier
	Directory domainuser.Directory
	Logger    *slog.Logger
}

func (s *Service) ResolveToken(ctx context.Context, token string) (*Principal, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	subject, err := s.Tokens.Subject(token)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Debug("token rejected", "error", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id := domainuser.ID(subject)
	profiles, err := s.Directory.ByIDs(ctx, []domainuser.ID{id})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", policies.ErrDirectoryUnavailable, err)
	}
	profile, ok := profiles[id]
	if !ok {
		return nil, ErrUnknownUser
	}
	return &Principal{ID: id, Profile: profile}, nil
}

func (s *Service) ensureDependencies() error {
	switch {
	case s == nil:
		return errors.New("auth service is nil")
	case s.Tokens == nil:
		return errors.New("auth service requires token verifier")
	case s.Directory == nil:
		return errors.New("auth service requires user directory")
	}
	return nil
}
