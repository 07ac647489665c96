package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/config"
)

func TestBuildPack_FetchesAndFreezes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quotes", r.URL.Path)
		assert.Equal(t, "2026-08-31", r.URL.Query().Get("date"))
		w.Write([]byte(`{"quotes":{"VTI":"298.4","VXUS":"64.15"}}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Quotes.BaseURL = srv.URL
	asof, _ := time.Parse("2006-01-02", "2026-08-31")
	fx := map[string]decimal.Decimal{"EUR": decimal.NewFromFloat(1.1)}

	pack, err := buildPack(context.Background(), cfg, []string{"VTI", "VXUS"}, fx, "USD", asof)
	require.NoError(t, err)

	assert.Equal(t, "PP-2026-08-31", pack.ID)
	assert.Equal(t, "USD", pack.BaseCurrency)
	assert.Equal(t, "298.4", pack.Prices["VTI"].String())
	assert.Equal(t, "1.1", pack.FXRates["EUR"].String())
}

func TestBuildPack_RequiresVendorURL(t *testing.T) {
	_, err := buildPack(context.Background(), config.Default(), []string{"VTI"}, nil, "USD", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestParseFXRates(t *testing.T) {
	rates, err := parseFXRates([]string{"EUR=1.1", "GBP=1.27"})
	require.NoError(t, err)
	assert.Equal(t, "1.1", rates["EUR"].String())
	assert.Equal(t, "1.27", rates["GBP"].String())

	_, err = parseFXRates([]string{"EUR"})
	require.Error(t, err)

	_, err = parseFXRates([]string{"EUR=abc"})
	require.Error(t, err)
}
