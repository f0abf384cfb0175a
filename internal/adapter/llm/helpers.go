package llm

import (
	"context"
	"errors"
	"fmt"

	"concierge/internal/domain"
)

// mapProviderError converts SDK/transport errors into domain sentinels so
// callers can branch without knowing the provider.
func mapProviderError(provider string, ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s call: %v", domain.ErrTimeout, provider, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s call canceled: %w", provider, err)
	default:
		return fmt.Errorf("%w: %s: %v", domain.ErrProviderError, provider, err)
	}
}
