package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited paces calls to another Client to a requests-per-minute budget.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited wraps next so that at most rpm requests start per minute.
// A non-positive rpm disables pacing.
func NewRateLimited(next Client, rpm int) *RateLimited {
	limit := rate.Inf
	burst := 1
	if rpm > 0 {
		limit = rate.Limit(float64(rpm) / 60.0)
		burst = max(1, rpm/10)
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// GenerateJSON waits for a token, then delegates.
func (r *RateLimited) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	return r.next.GenerateJSON(ctx, prompt, tier)
}

func (r *RateLimited) GetModel(tier ModelTier) string {
	return r.next.GetModel(tier)
}

func (r *RateLimited) Close() error {
	return r.next.Close()
}
