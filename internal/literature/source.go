// Package literature provides the pluggable LITERATURE_LIVE evidence
// collaborator: a Fetcher wrapped in a circuit breaker, so calls to a
// flaky upstream feed fail fast instead of hanging. service.Engine holds
// a Source, but Engine.Analyze does not call it in either mode.
package literature

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/periop-health/risk-engine/internal/domain"
)

// Fetcher is the raw, unwrapped collaborator an external literature feed
// implements. cmd/server wires HTTPFetcher (a JSON evidence feed) when
// literature is enabled and NullFetcher otherwise; tests substitute a stub.
type Fetcher interface {
	Fetch(ctx context.Context, outcome, contextLabel string) ([]domain.Estimate, error)
}

// Source wraps a Fetcher with a per-upstream circuit breaker.
type Source struct {
	fetcher Fetcher
	breaker *gobreaker.CircuitBreaker
}

// Config mirrors domain.LiteratureConfig's breaker knobs.
type Config struct {
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

// New builds a circuit-broken Source. ReadyToTrip uses a conservative
// external-service tier: at least 3 requests observed and a majority
// failure ratio.
func New(fetcher Fetcher, cfg Config) *Source {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "literature",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	})
	return &Source{fetcher: fetcher, breaker: breaker}
}

// FetchEstimates implements domain.LiteratureSource.
func (s *Source) FetchEstimates(ctx context.Context, outcome, contextLabel string) ([]domain.Estimate, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetcher.Fetch(ctx, outcome, contextLabel)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("literature source unavailable (circuit breaker open): %w", err)
		}
		return nil, fmt.Errorf("literature fetch failed: %w", err)
	}
	return result.([]domain.Estimate), nil
}

// State reports the breaker's current state.
func (s *Source) State() gobreaker.State {
	return s.breaker.State()
}

// NullFetcher is the default when literature is not enabled: it is wired
// but not called, since Engine.Analyze does not consult internal/literature
// in any AnalyzeOptions.Mode.
type NullFetcher struct{}

func (NullFetcher) Fetch(ctx context.Context, outcome, contextLabel string) ([]domain.Estimate, error) {
	return nil, fmt.Errorf("literature source not configured for %s/%s", outcome, contextLabel)
}
