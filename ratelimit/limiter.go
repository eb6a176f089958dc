// Package ratelimit provides sliding-window admission control keyed by an
// arbitrary identifier (client IP, user id). It holds no page state.
package ratelimit

import "context"

// Limiter admits or denies one call for an identifier.
type Limiter interface {
	// Allow records a call for id and reports whether it is within the limit.
	// Denied calls are not recorded.
	Allow(ctx context.Context, id string) (bool, error)
	// Clear forgets every recorded call for id.
	Clear(ctx context.Context, id string) error
}
