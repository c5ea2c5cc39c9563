package policies

import (
	"context"
	"errors"

	domainuser "learnhub/internal/domain/user"
)

// ErrDirectoryUnavailable wraps any failure of the external user directory.
var ErrDirectoryUnavailable = errors.New("directory: upstream unavailable")

// ProfileInvalidator drops cached profile summaries after the directory reports a change.
type ProfileInvalidator interface {
	Invalidate(ctx context.Context, ids ...domainuser.ID) error
}
