package titles

import (
	"context"
	"errors"
	"testing"

	"github.com/assusa/viabot/internal/ratelimit"
)

func TestWithRateLimitAdmitsWithinWindow(t *testing.T) {
	calls := 0
	inner := &mockProvider{
		bank: BankBradesco,
		listFn: func(ctx context.Context, identifier string) ([]Title, error) {
			calls++
			return []Title{{NossoNumero: "111", Status: "OPEN"}}, nil
		},
	}

	p := WithRateLimit(inner, ratelimit.New(), 2, 60)

	for i := 0; i < 2; i++ {
		if _, err := p.ListOpenTitles(context.Background(), "52998224725"); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if calls != 2 {
		t.Fatalf("inner calls = %d", calls)
	}

	_, err := p.ListOpenTitles(context.Background(), "52998224725")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("rejected call reached the bank, inner calls = %d", calls)
	}
}

func TestWithRateLimitWindowsArePerBank(t *testing.T) {
	limiter := ratelimit.New()
	a := WithRateLimit(&mockProvider{bank: BankSicoob}, limiter, 1, 60)
	b := WithRateLimit(&mockProvider{bank: BankBradesco}, limiter, 1, 60)

	if _, err := a.ListOpenTitles(context.Background(), "52998224725"); err != nil {
		t.Fatalf("sicoob call: %v", err)
	}
	if _, err := b.ListOpenTitles(context.Background(), "52998224725"); err != nil {
		t.Fatalf("bradesco call should have its own window: %v", err)
	}
	if _, err := a.ListOpenTitles(context.Background(), "52998224725"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected sicoob window exhausted, got %v", err)
	}
}

func TestWithRateLimitDegradedByAggregator(t *testing.T) {
	inner := &mockProvider{
		bank: BankSicoob,
		listFn: func(ctx context.Context, identifier string) ([]Title, error) {
			return []Title{{NossoNumero: "111", Status: "OPEN"}}, nil
		},
	}
	limiter := ratelimit.New()
	p := WithRateLimit(inner, limiter, 1, 60)

	// exhaust the window, then aggregate
	if _, err := p.ListOpenTitles(context.Background(), "52998224725"); err != nil {
		t.Fatalf("warm-up call: %v", err)
	}

	agg := NewAggregator([]Provider{p}, &mockAudit{})
	res := agg.FindOpenTitles(context.Background(), "52998224725", "hash123")
	if len(res.Titles) != 0 {
		t.Fatalf("got %d titles from rate-limited provider, want 0", len(res.Titles))
	}
	if !res.AllFailed() {
		t.Error("rate limiting not recorded as provider failure")
	}
}
