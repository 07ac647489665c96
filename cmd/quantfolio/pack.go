package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/quantfolio/quantfolio/internal/config"
	"github.com/quantfolio/quantfolio/internal/pricing"
	"github.com/quantfolio/quantfolio/internal/providers"
)

// buildPack fetches vendor quotes and assembles the frozen pack for one
// as-of date. The vendor is only ever touched here, never in a pattern run.
func buildPack(ctx context.Context, cfg *config.Config, symbols []string, fx map[string]decimal.Decimal, baseCurrency string, asof time.Time) (*pricing.Pack, error) {
	if cfg.Quotes.BaseURL == "" {
		return nil, fmt.Errorf("quotes base_url must be configured to build packs")
	}
	fetcher := providers.NewHTTPQuoteFetcher(cfg.Quotes)
	return providers.BuildPack(ctx, fetcher, symbols, fx, baseCurrency, asof)
}

// storePack persists the pack when Postgres is configured. Without a DSN the
// pack is only printed, which keeps the command usable as a dry run.
func storePack(ctx context.Context, cfg *config.Config, pack *pricing.Pack) error {
	if cfg.Postgres.DSN == "" {
		log.Warn().Str("pack", pack.ID).Msg("no postgres dsn configured, pack not persisted")
		return nil
	}
	db, err := sqlx.Connect("postgres", cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()
	return pricing.NewPostgresStore(db, storeTimeout).Insert(ctx, pack)
}

func parseFXRates(pairs []string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		ccy, raw, ok := strings.Cut(pair, "=")
		if !ok || ccy == "" {
			return nil, fmt.Errorf("invalid --fx %q, expected CCY=RATE", pair)
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --fx rate for %s: %w", ccy, err)
		}
		rates[ccy] = rate
	}
	return rates, nil
}

func runPackBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	symbolsFlag, _ := cmd.Flags().GetString("symbols")
	symbols := strings.Split(symbolsFlag, ",")
	for i := range symbols {
		symbols[i] = strings.TrimSpace(symbols[i])
	}

	fxPairs, _ := cmd.Flags().GetStringArray("fx")
	fx, err := parseFXRates(fxPairs)
	if err != nil {
		return err
	}

	baseCurrency, _ := cmd.Flags().GetString("base-currency")
	asof := time.Now().UTC().Truncate(24 * time.Hour)
	if asofStr, _ := cmd.Flags().GetString("asof"); asofStr != "" {
		asof, err = time.Parse("2006-01-02", asofStr)
		if err != nil {
			return fmt.Errorf("invalid --asof date: %w", err)
		}
	}

	pack, err := buildPack(cmd.Context(), cfg, symbols, fx, baseCurrency, asof)
	if err != nil {
		return err
	}
	if err := storePack(cmd.Context(), cfg, pack); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pack)
}

func newPackCmd() *cobra.Command {
	packCmd := &cobra.Command{
		Use:   "pack",
		Short: "Pricing pack commands",
	}

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch vendor quotes and freeze a pricing pack for one date",
		RunE:  runPackBuild,
	}
	buildCmd.Flags().String("symbols", "", "Comma-separated symbols to price")
	buildCmd.Flags().String("asof", "", "As-of date (YYYY-MM-DD, default today)")
	buildCmd.Flags().String("base-currency", "USD", "Pack base currency")
	buildCmd.Flags().StringArray("fx", nil, "FX rate as CCY=RATE into the base currency (repeatable)")
	_ = buildCmd.MarkFlagRequired("symbols")

	packCmd.AddCommand(buildCmd)
	return packCmd
}
