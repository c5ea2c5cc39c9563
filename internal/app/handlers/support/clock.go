package support

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns now() in UTC, falling back to the wall clock. Readings are truncated
// to milliseconds, the precision Mongo stores, so deletion boundaries compare the same
// way in memory and in the database.
func Clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	return now().UTC().Truncate(time.Millisecond)
}

// NewID returns gen() or a random UUID.
func NewID(gen func() string) string {
	if gen == nil {
		return uuid.NewString()
	}
	return gen()
}
