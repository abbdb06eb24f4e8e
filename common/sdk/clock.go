package sdk

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time so tests can run suspension, retry backoff, and
// approval deadlines against a fake.
type Clock interface {
	// Now returns the current time in UTC
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() when
	// interrupted
	Sleep(ctx context.Context, d time.Duration) error
}

// IDFunc mints entity ids. The default is uuid.New; tests substitute a
// deterministic sequence.
type IDFunc func() uuid.UUID

// SystemClock is the production Clock backed by the time package
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep waits for d, honoring context cancellation
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewID mints a random UUID
func NewID() uuid.UUID {
	return uuid.New()
}
