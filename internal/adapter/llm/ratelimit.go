package llm

import (
	"context"

	"golang.org/x/time/rate"

	"concierge/internal/domain"
	"concierge/internal/infra/config"
)

// RateLimitedProvider wraps an LLMProvider with a token-bucket limiter.
// Calls wait for a token (bounded by the request context) rather than
// failing, so bursts queue instead of erroring.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner with a limiter. A zero RequestsPerMin
// returns inner unchanged.
func NewRateLimitedProvider(inner domain.LLMProvider, cfg config.RateLimitConfig) domain.LLMProvider {
	if cfg.RequestsPerMin <= 0 {
		return inner
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMin)/60.0, burst),
	}
}

// Complete implements domain.LLMProvider.
func (p *RateLimitedProvider) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", domain.WrapOp("rate limit wait", err)
	}
	return p.inner.Complete(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }
