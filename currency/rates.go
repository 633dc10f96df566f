package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultRatesURL serves {"base": "USD", "rates": {"GBP": 0.79, ...}}
const DefaultRatesURL = "https://api.exchangerate-api.com/v4/latest/"

// Rates is a table of exchange rates against Base, as fetched at FetchedAt
type Rates struct {
	Base      string                     `json:"base"`
	Values    map[string]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// Convert converts amount from one currency to another through the base
func (r Rates) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	fromRate, ok := r.Values[from]
	if !ok || fromRate.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", ErrUnknownCurrency, from)
	}
	toRate, ok := r.Values[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", ErrUnknownCurrency, to)
	}

	return amount.Div(fromRate).Mul(toRate), nil
}

// FallbackRates returns approximate USD based rates, used when fetching fails
func FallbackRates() Rates {
	values := map[string]string{
		"USD": "1.00", "GBP": "0.79", "EUR": "0.92", "INR": "83.12", "JPY": "149.50", "AUD": "1.52",
		"CAD": "1.36", "CHF": "0.88", "CNY": "7.24", "SEK": "10.37", "NZD": "1.64",
	}
	rates := Rates{Base: "USD", Values: make(map[string]decimal.Decimal, len(values))}
	for code, v := range values {
		rates.Values[code] = decimal.RequireFromString(v)
	}
	return rates
}

// Fetcher retrieves a fresh rate table
type Fetcher interface {
	Fetch(ctx context.Context, base string) (Rates, error)
}

// HTTPFetcher fetches rates from a JSON endpoint; the base currency code is
// appended to URL
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// Fetch implements Fetcher
func (f HTTPFetcher) Fetch(ctx context.Context, base string) (Rates, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL+base, nil)
	if err != nil {
		return Rates{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Rates{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Rates{}, fmt.Errorf("fetch rates: unexpected status %s", resp.Status)
	}

	var rates Rates
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return Rates{}, fmt.Errorf("fetch rates: %w", err)
	}
	if rates.Base == "" {
		rates.Base = base
	}
	return rates, nil
}

// RateCache keeps the last fetched table for at most TTL. It is an ordinary
// value owned by whoever converts; nothing in the ledger reads it.
type RateCache struct {
	fetcher Fetcher
	base    string
	ttl     time.Duration
	now     func() time.Time
	log     logrus.FieldLogger

	mu    sync.Mutex
	rates *Rates
}

// NewRateCache creates a cache of base-currency rates. now may be nil, in
// which case time.Now is used.
func NewRateCache(fetcher Fetcher, base string, ttl time.Duration, now func() time.Time, log logrus.FieldLogger) *RateCache {
	if now == nil {
		now = time.Now
	}
	return &RateCache{fetcher: fetcher, base: base, ttl: ttl, now: now, log: log.WithField("module", "currency")}
}

// Rates returns the cached table while it is fresh, otherwise fetches a new
// one. When fetching fails the fallback table is returned and not cached, so
// the next call tries again.
func (c *RateCache) Rates(ctx context.Context) Rates {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.rates != nil && now.Sub(c.rates.FetchedAt) < c.ttl {
		return *c.rates
	}

	rates, err := c.fetcher.Fetch(ctx, c.base)
	if err != nil {
		c.log.WithError(err).Warn("Using fallback exchange rates")
		return FallbackRates()
	}

	rates.FetchedAt = now
	c.rates = &rates
	return rates
}
