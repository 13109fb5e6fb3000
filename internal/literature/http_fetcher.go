package literature

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/periop-health/risk-engine/internal/domain"
)

// HTTPFetcher is the production Fetcher for LITERATURE_LIVE mode: a plain
// JSON GET against an upstream evidence feed, rate-limited so a burst of
// outcome lookups can't overrun the feed's own throttling.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// NewHTTPFetcher builds an HTTPFetcher bound to baseURL with a bounded
// per-request timeout and a requests-per-second ceiling.
func NewHTTPFetcher(baseURL string, timeout time.Duration, requestsPerSecond int) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		rateLimit:  rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// estimateWire is the upstream feed's JSON representation of one finding.
type estimateWire struct {
	ID                   string  `json:"id"`
	PMID                 string  `json:"pmid"`
	OutcomeToken         string  `json:"outcome_token"`
	ModifierToken        string  `json:"modifier_token"`
	Measure              string  `json:"measure"`
	Value                float64 `json:"value"`
	CILow                *float64 `json:"ci_low"`
	CIHigh               *float64 `json:"ci_high"`
	Adjusted             bool    `json:"adjusted"`
	Population           string  `json:"population"`
	ContextLabel         string  `json:"context_label"`
	QualityWeight        float64 `json:"quality_weight"`
	ExtractionConfidence float64 `json:"extraction_confidence"`
	Approximate          bool    `json:"approximate"`
}

// Fetch implements Fetcher against the upstream literature feed.
func (f *HTTPFetcher) Fetch(ctx context.Context, outcome, contextLabel string) ([]domain.Estimate, error) {
	if err := f.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for literature feed rate limit: %w", err)
	}

	params := url.Values{
		"outcome_token": {outcome},
		"context_label": {contextLabel},
	}
	fullURL := fmt.Sprintf("%s/estimates?%s", f.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building literature request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing literature request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("literature feed returned status %d", resp.StatusCode)
	}

	var wire []estimateWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding literature response: %w", err)
	}

	estimates := make([]domain.Estimate, 0, len(wire))
	for _, w := range wire {
		estimates = append(estimates, domain.Estimate{
			ID:                   w.ID,
			PMID:                 w.PMID,
			OutcomeToken:         w.OutcomeToken,
			ModifierToken:        w.ModifierToken,
			Measure:              domain.Measure(w.Measure),
			Value:                w.Value,
			CILow:                w.CILow,
			CIHigh:               w.CIHigh,
			Adjusted:             w.Adjusted,
			Population:           domain.Population(w.Population),
			ContextLabel:         w.ContextLabel,
			QualityWeight:        w.QualityWeight,
			ExtractionConfidence: w.ExtractionConfidence,
			Approximate:          w.Approximate,
		})
	}
	return estimates, nil
}
