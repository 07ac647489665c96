package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantfolio/quantfolio/internal/pricing"
)

// BuildPack assembles a frozen pricing pack from vendor quotes and FX rates.
// A symbol the vendor cannot price fails the build: a pack with holes would
// poison every valuation made against it.
func BuildPack(ctx context.Context, fetcher QuoteFetcher, symbols []string, fxRates map[string]decimal.Decimal, baseCurrency string, asof time.Time) (*pricing.Pack, error) {
	quotes, err := fetcher.Quotes(ctx, symbols, asof)
	if err != nil {
		return nil, fmt.Errorf("providers: building pack for %s: %w", asof.Format("2006-01-02"), err)
	}

	pack := &pricing.Pack{
		ID:           PackID(asof),
		AsOf:         asof,
		BaseCurrency: baseCurrency,
		Prices:       quotes,
		FXRates:      fxRates,
		CreatedAt:    time.Now().UTC(),
	}
	log.Info().Str("pack", pack.ID).Int("symbols", len(quotes)).Msg("pricing pack built")
	return pack, nil
}

// PackID derives the canonical pack id for an as-of date. One pack per date:
// rebuilding the same date is an error at the store layer, not a new id.
func PackID(asof time.Time) string {
	return "PP-" + asof.Format("2006-01-02")
}
