package currency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFraction(t *testing.T) {
	places, err := Fraction("GBP")
	require.NoError(t, err)
	assert.Equal(t, int32(2), places)

	places, err = Fraction("JPY")
	require.NoError(t, err)
	assert.Equal(t, int32(0), places)

	_, err = Fraction("XXQ")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestNormalize(t *testing.T) {
	code, err := Normalize(" gbp ")
	require.NoError(t, err)
	assert.Equal(t, "GBP", code)

	_, err = Normalize("pounds")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "£40.00", Format(decimal.RequireFromString("40"), "GBP"))
	assert.Equal(t, "£1,234.57", Format(decimal.RequireFromString("1234.567"), "GBP"))
	assert.Equal(t, "XXQ 3.50", Format(decimal.RequireFromString("3.5"), "XXQ"))
}

func TestSupported(t *testing.T) {
	infos := Supported()
	require.NotEmpty(t, infos)
	assert.Equal(t, "GBP", infos[0].Code)
}

func TestConvert(t *testing.T) {
	rates := FallbackRates()

	same, err := rates.Convert(decimal.NewFromInt(10), "GBP", "GBP")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(same))

	usd, err := rates.Convert(decimal.RequireFromString("0.79"), "GBP", "USD")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(usd), "got %s", usd)

	_, err = rates.Convert(decimal.NewFromInt(1), "GBP", "XXQ")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

// stubFetcher counts calls and returns a fixed table or an error
type stubFetcher struct {
	calls int
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, base string) (Rates, error) {
	s.calls++
	if s.err != nil {
		return Rates{}, s.err
	}
	return Rates{Base: base, Values: map[string]decimal.Decimal{"USD": decimal.NewFromInt(1), "EUR": decimal.NewFromInt(2)}}, nil
}

func TestRateCacheExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{}
	cache := NewRateCache(fetcher, "USD", time.Hour, func() time.Time { return now }, logrus.New())

	rates := cache.Rates(context.Background())
	assert.True(t, decimal.NewFromInt(2).Equal(rates.Values["EUR"]))
	cache.Rates(context.Background())
	assert.Equal(t, 1, fetcher.calls, "served from cache while fresh")

	now = now.Add(61 * time.Minute)
	cache.Rates(context.Background())
	assert.Equal(t, 2, fetcher.calls, "refetched after the ttl")
}

func TestRateCacheFallsBack(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("offline")}
	cache := NewRateCache(fetcher, "USD", time.Hour, nil, logrus.New())

	rates := cache.Rates(context.Background())
	assert.Equal(t, FallbackRates().Values["GBP"].String(), rates.Values["GBP"].String())

	cache.Rates(context.Background())
	assert.Equal(t, 2, fetcher.calls, "fallback tables are not cached")
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/USD", r.URL.Path)
		w.Write([]byte(`{"base":"USD","rates":{"USD":1,"GBP":0.8}}`))
	}))
	defer server.Close()

	rates, err := HTTPFetcher{URL: server.URL + "/latest/"}.Fetch(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, "USD", rates.Base)
	assert.True(t, decimal.RequireFromString("0.8").Equal(rates.Values["GBP"]))
}
