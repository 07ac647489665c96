// Package providers fetches market quotes from external data vendors for
// pricing-pack assembly. Vendors are opaque: the rest of the system only
// sees the QuoteFetcher contract and never calls a vendor inside a pattern
// run, so a vendor outage can delay pack building but never change an
// already-frozen pack.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// QuoteFetcher returns native-currency closing quotes for symbols on a date.
type QuoteFetcher interface {
	Quotes(ctx context.Context, symbols []string, asof time.Time) (map[string]decimal.Decimal, error)
}

// HTTPQuoteConfig tunes the HTTP vendor client.
type HTTPQuoteConfig struct {
	BaseURL     string        `yaml:"base_url"`
	RPS         int           `yaml:"rps"`
	Burst       int           `yaml:"burst"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxFailures uint32        `yaml:"max_failures"`
	OpenFor     time.Duration `yaml:"open_for"`
}

func (c HTTPQuoteConfig) withDefaults() HTTPQuoteConfig {
	if c.RPS <= 0 {
		c.RPS = 5
	}
	if c.Burst <= 0 {
		c.Burst = c.RPS
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.OpenFor <= 0 {
		c.OpenFor = 30 * time.Second
	}
	return c
}

// HTTPQuoteFetcher calls a JSON quote endpoint, rate-limited and wrapped in a
// circuit breaker so a degraded vendor cannot absorb the whole pack-build
// budget. Retries belong to the caller and must stay idempotent.
type HTTPQuoteFetcher struct {
	cfg     HTTPQuoteConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPQuoteFetcher creates a vendor client.
func NewHTTPQuoteFetcher(cfg HTTPQuoteConfig) *HTTPQuoteFetcher {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:    "quote-vendor",
		Timeout: cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("quote vendor breaker state change")
		},
	}
	return &HTTPQuoteFetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

type quoteResponse struct {
	Quotes map[string]string `json:"quotes"`
}

func (f *HTTPQuoteFetcher) Quotes(ctx context.Context, symbols []string, asof time.Time) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("providers: rate limit wait: %w", err)
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetch(ctx, symbols, asof)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]decimal.Decimal), nil
}

func (f *HTTPQuoteFetcher) fetch(ctx context.Context, symbols []string, asof time.Time) (map[string]decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v1/quotes?symbols=%s&date=%s",
		strings.TrimRight(f.cfg.BaseURL, "/"),
		url.QueryEscape(strings.Join(symbols, ",")),
		asof.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("providers: quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("providers: quote vendor returned %d", resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("providers: decoding quote response: %w", err)
	}

	quotes := make(map[string]decimal.Decimal, len(body.Quotes))
	for sym, raw := range body.Quotes {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("providers: vendor quote for %s is not a number: %w", sym, err)
		}
		quotes[sym] = d
	}
	for _, sym := range symbols {
		if _, ok := quotes[sym]; !ok {
			return nil, fmt.Errorf("providers: vendor returned no quote for %s", sym)
		}
	}
	return quotes, nil
}
