package titles

import (
	"context"
	"errors"
	"fmt"

	"github.com/assusa/viabot/internal/ratelimit"
)

// ErrRateLimited indicates an outbound provider call was rejected by the
// admission window. The aggregator degrades it like any provider failure.
var ErrRateLimited = errors.New("provider call rate limited")

type rateLimitedProvider struct {
	Provider
	limiter       *ratelimit.Limiter
	limit         int
	windowSeconds int
}

// WithRateLimit decorates p so its outbound calls share a per-bank admission
// window. Rejected calls fail fast with ErrRateLimited instead of reaching
// the bank.
func WithRateLimit(p Provider, l *ratelimit.Limiter, limit, windowSeconds int) Provider {
	return &rateLimitedProvider{
		Provider:      p,
		limiter:       l,
		limit:         limit,
		windowSeconds: windowSeconds,
	}
}

func (r *rateLimitedProvider) admit() error {
	key := "provider:" + string(r.Provider.Bank())
	if hit := r.limiter.Hit(key, r.limit, r.windowSeconds); !hit.Allowed {
		return fmt.Errorf("%w: %s", ErrRateLimited, r.Provider.Bank())
	}
	return nil
}

func (r *rateLimitedProvider) ListOpenTitles(ctx context.Context, identifier string) ([]Title, error) {
	if err := r.admit(); err != nil {
		return nil, err
	}
	return r.Provider.ListOpenTitles(ctx, identifier)
}

func (r *rateLimitedProvider) GetDocument(ctx context.Context, title Title) ([]byte, error) {
	if err := r.admit(); err != nil {
		return nil, err
	}
	return r.Provider.GetDocument(ctx, title)
}

func (r *rateLimitedProvider) GetBillData(ctx context.Context, title Title) (*BillData, error) {
	if err := r.admit(); err != nil {
		return nil, err
	}
	return r.Provider.GetBillData(ctx, title)
}

func (r *rateLimitedProvider) EnrichTitle(ctx context.Context, title Title) (Title, error) {
	e, ok := r.Provider.(TitleEnricher)
	if !ok {
		return title, nil
	}
	if err := r.admit(); err != nil {
		return Title{}, err
	}
	return e.EnrichTitle(ctx, title)
}
