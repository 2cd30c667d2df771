package repository

import (
	"context"
	"time"
)

const defaultQueryTimeout = 5 * time.Second

// queryContext bounds a store call so a hung database surfaces as
// context.DeadlineExceeded instead of stalling the caller.
func queryContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
