package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quantfolio/quantfolio/internal/agents"
	"github.com/quantfolio/quantfolio/internal/config"
	httpapi "github.com/quantfolio/quantfolio/internal/interfaces/http"
	"github.com/quantfolio/quantfolio/internal/ledger"
	"github.com/quantfolio/quantfolio/internal/orchestrator"
	"github.com/quantfolio/quantfolio/internal/pattern"
	"github.com/quantfolio/quantfolio/internal/positions"
	"github.com/quantfolio/quantfolio/internal/pricing"
	"github.com/quantfolio/quantfolio/internal/registry"
	"github.com/quantfolio/quantfolio/internal/reqctx"
	"github.com/quantfolio/quantfolio/internal/returns"
)

const (
	demoPackID   = "PP-DEMO"
	demoCommitID = "LC-DEMO"
	storeTimeout = 5 * time.Second
)

// app holds the assembled components a command operates on.
type app struct {
	cfg      *config.Config
	registry *registry.Registry
	library  *pattern.Library
	runner   *orchestrator.Runner
}

func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, _ := flags.GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildApp(cmd *cobra.Command, demo bool) (*app, error) {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}

	packs, ledgerStore, err := buildStores(cfg, demo)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	for _, agent := range []registry.Agent{
		agents.NewLedgerAgent(ledgerStore),
		agents.NewPricingAgent(packs),
		agents.NewMetricsAgent(cfg.Metrics),
		agents.NewScenariosAgent(),
	} {
		if err := reg.RegisterAgent(agent); err != nil {
			return nil, err
		}
	}

	lib, err := pattern.LoadDir(cfg.Patterns.Dir)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		registry: reg,
		library:  lib,
		runner:   orchestrator.NewRunner(lib, reg, cfg.Orchestrator),
	}, nil
}

func buildStores(cfg *config.Config, demo bool) (pricing.PackStore, ledger.Store, error) {
	if demo || cfg.Postgres.DSN == "" {
		log.Info().Msg("using in-memory stores with demo data")
		return demoStores()
	}

	db, err := sqlx.Connect("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	var cache pricing.Cache
	if cfg.Redis.Addr != "" {
		cache = pricing.NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr}))
	} else {
		cache = pricing.NewAutoCache()
	}
	packs := pricing.NewCachedStore(pricing.NewPostgresStore(db, storeTimeout), cache, cfg.Redis.TTL)
	return packs, ledger.NewPostgresStore(db, storeTimeout), nil
}

// demoStores seeds one portfolio with a year of monthly valuations, a
// mid-year deposit, and a pricing pack covering its open lots.
func demoStores() (pricing.PackStore, ledger.Store, error) {
	day := func(s string) time.Time {
		t, _ := time.Parse("2006-01-02", s)
		return t
	}
	dec := decimal.NewFromInt

	ledgerStore := ledger.NewMemoryStore()
	ledgerStore.LoadSeries(demoCommitID, "PF-DEMO", returns.Series{
		{Date: day("2025-08-31"), Value: dec(250000)},
		{Date: day("2025-09-30"), Value: dec(262500)},
		{Date: day("2025-10-31"), Value: dec(257250)},
		{Date: day("2025-11-30"), Value: dec(270100)},
		{Date: day("2025-12-31"), Value: dec(283600)},
		{Date: day("2026-01-31"), Value: dec(278000)},
		{Date: day("2026-02-28"), Value: dec(378000), NetFlow: dec(100000)},
		{Date: day("2026-03-31"), Value: dec(389300)},
		{Date: day("2026-04-30"), Value: dec(381500)},
		{Date: day("2026-05-31"), Value: dec(400500)},
		{Date: day("2026-06-30"), Value: dec(412500)},
		{Date: day("2026-07-31"), Value: dec(404250)},
		{Date: day("2026-08-31"), Value: dec(424400)},
	})
	ledgerStore.LoadPositions(demoCommitID, "PF-DEMO", []positions.Lot{
		{Symbol: "VTI", OpenQty: dec(800), OriginalQty: dec(800), CostBasis: dec(180000), Currency: "USD", OpenedAt: day("2024-02-15")},
		{Symbol: "VXUS", OpenQty: dec(1500), OriginalQty: dec(1500), CostBasis: dec(82500), Currency: "USD", OpenedAt: day("2024-02-15")},
		{Symbol: "BND", OpenQty: dec(1200), OriginalQty: dec(1400), CostBasis: dec(88200), Currency: "USD", OpenedAt: day("2025-01-10")},
	})

	packs := pricing.NewMemoryStore()
	if err := packs.Put(&pricing.Pack{
		ID:           demoPackID,
		AsOf:         day("2026-08-31"),
		BaseCurrency: "USD",
		Prices: map[string]decimal.Decimal{
			"VTI":  decimal.NewFromFloat(298.40),
			"VXUS": decimal.NewFromFloat(64.15),
			"BND":  decimal.NewFromFloat(73.80),
		},
		FXRates:   map[string]decimal.Decimal{},
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return nil, nil, err
	}
	return packs, ledgerStore, nil
}

func requestContext(flags *pflag.FlagSet) (reqctx.Ctx, error) {
	packID, _ := flags.GetString("pack")
	commitID, _ := flags.GetString("ledger-commit")
	asofStr, _ := flags.GetString("asof")
	demo, _ := flags.GetBool("demo")

	if demo {
		if packID == "" {
			packID = demoPackID
		}
		if commitID == "" {
			commitID = demoCommitID
		}
	}
	if packID == "" {
		return reqctx.Ctx{}, fmt.Errorf("--pack is required (or use --demo)")
	}
	if commitID == "" {
		return reqctx.Ctx{}, fmt.Errorf("--ledger-commit is required (or use --demo)")
	}

	asof := time.Now().UTC().Truncate(24 * time.Hour)
	if asofStr != "" {
		var err error
		asof, err = time.Parse("2006-01-02", asofStr)
		if err != nil {
			return reqctx.Ctx{}, fmt.Errorf("invalid --asof date: %w", err)
		}
	}
	return reqctx.New(packID, commitID, asof), nil
}

func parseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --input %q, expected key=value", pair)
		}
		inputs[k] = v
	}
	return inputs, nil
}

func runPattern(cmd *cobra.Command, args []string) error {
	demo, _ := cmd.Flags().GetBool("demo")
	a, err := buildApp(cmd, demo)
	if err != nil {
		return err
	}

	rctx, err := requestContext(cmd.Flags())
	if err != nil {
		return err
	}
	pairs, _ := cmd.Flags().GetStringArray("input")
	inputs, err := parseInputs(pairs)
	if err != nil {
		return err
	}

	log.Info().
		Object("reqctx", rctx).
		Str("pattern", args[0]).
		Msg("executing pattern")

	result, err := a.runner.Run(cmd.Context(), rctx, args[0], inputs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"trace_id":         rctx.TraceID,
		"pricing_pack_id":  rctx.PricingPackID,
		"ledger_commit_id": rctx.LedgerCommitID,
		"asof_date":        rctx.AsOf.Format("2006-01-02"),
		"data":             result.Data,
		"trace":            result.Trace,
	})
}

func listPatterns(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd, true)
	if err != nil {
		return err
	}
	for _, id := range a.library.IDs() {
		p, err := a.library.Get(id)
		if err != nil {
			return err
		}
		fmt.Printf("%-32s %2d steps  %s\n", p.ID, len(p.Steps), p.Description)
	}
	return nil
}

func listCapabilities(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd, true)
	if err != nil {
		return err
	}
	for _, name := range a.registry.Capabilities() {
		fmt.Printf("%-32s agent=%s\n", name, a.registry.Owner(name))
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	demo, _ := cmd.Flags().GetBool("demo")
	a, err := buildApp(cmd, demo)
	if err != nil {
		return err
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Addr:            a.cfg.Server.Addr,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, a.registry, a.library)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		return server.Shutdown(context.Background())
	}
}
