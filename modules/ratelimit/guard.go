package ratelimit

import (
	"context"

	"github.com/go-monolith/mono/pkg/types"
)

// Guard wraps a Limiter and fails open: when the limiter errors or is absent,
// the request is allowed.
type Guard struct {
	limiter Limiter
	logger  types.Logger
}

// NewGuard creates a Guard. A nil limiter allows everything.
func NewGuard(limiter Limiter, logger types.Logger) *Guard {
	return &Guard{limiter: limiter, logger: logger}
}

// Enabled reports whether requests are actually checked.
func (g *Guard) Enabled() bool {
	return g != nil && g.limiter != nil
}

// Allow reports whether key may proceed.
func (g *Guard) Allow(ctx context.Context, key string) bool {
	if !g.Enabled() {
		return true
	}
	result, err := g.limiter.Allow(ctx, key)
	if err != nil {
		g.logger.Warn("Rate limit check failed, allowing request", "key", key, "error", err)
		return true
	}
	if !result.Allowed {
		g.logger.Debug("Rate limited", "key", key, "retryAfter", result.RetryAfter)
	}
	return result.Allowed
}
