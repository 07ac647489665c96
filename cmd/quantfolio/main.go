package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "quantfolio"
	version = "v0.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Portfolio analytics pattern engine",
		Version: version,
		Long: `quantfolio runs declarative analytics patterns over immutable portfolio
data: every run is pinned to a pricing pack and a ledger commit, so the same
request always produces the same numbers.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		levelStr, _ := cmd.Flags().GetString("log-level")
		level, err := zerolog.ParseLevel(levelStr)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", levelStr, err)
		}
		zerolog.SetGlobalLevel(level)
		return nil
	}

	runCmd := &cobra.Command{
		Use:   "run <pattern-id>",
		Short: "Execute a pattern and print its result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runPattern,
	}
	runCmd.Flags().StringArray("input", nil, "Pattern input as key=value (repeatable)")
	runCmd.Flags().String("pack", "", "Pricing pack id to pin the run to")
	runCmd.Flags().String("ledger-commit", "", "Ledger commit id to pin the run to")
	runCmd.Flags().String("asof", "", "As-of date (YYYY-MM-DD, default today)")
	runCmd.Flags().Bool("demo", false, "Use seeded in-memory stores instead of Postgres")

	patternsCmd := &cobra.Command{
		Use:   "patterns",
		Short: "Pattern library commands",
	}
	patternsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded patterns",
		RunE:  listPatterns,
	})

	capabilitiesCmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List registered capabilities and their owning agents",
		RunE:  listCapabilities,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the operational HTTP server",
		RunE:  runServe,
	}
	serveCmd.Flags().Bool("demo", false, "Use seeded in-memory stores instead of Postgres")

	rootCmd.AddCommand(runCmd, patternsCmd, capabilitiesCmd, serveCmd, newPackCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
