package tool

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"costcompass/internal/domain"
)

// RateLimitedSource wraps a ToolSource with a token-bucket limiter so a
// misbehaving model loop cannot hammer the pricing backend.
type RateLimitedSource struct {
	inner   domain.ToolSource
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRateLimitedSource allows rps sustained calls per second with the given
// burst. Non-positive values fall back to 5 rps / burst 10.
func NewRateLimitedSource(inner domain.ToolSource, rps float64, burst int, logger *slog.Logger) *RateLimitedSource {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimitedSource{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// Execute rejects the call immediately when the bucket is empty. The caller
// already has a knowledge-only tier to fall back to, so waiting for a token
// would only stall the response.
func (r *RateLimitedSource) Execute(ctx context.Context, call domain.ToolCall) (*domain.ToolResult, error) {
	if !r.limiter.Allow() {
		r.logger.Warn("tool call rate limited", "tool", call.Name)
		return nil, fmt.Errorf("%w: tool %q", domain.ErrRateLimit, call.Name)
	}
	return r.inner.Execute(ctx, call)
}

func (r *RateLimitedSource) Tools() []domain.Tool { return r.inner.Tools() }

func (r *RateLimitedSource) Available() bool { return r.inner.Available() }

var _ domain.ToolSource = (*RateLimitedSource)(nil)
