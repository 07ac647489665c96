package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
orchestrator:
  step_timeout: 5s
  max_parallel: 8
metrics:
  risk_free_annual: 0.03
  periods_per_year: 252
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Orchestrator.StepTimeout)
	assert.Equal(t, 8, cfg.Orchestrator.MaxParallel)
	assert.Equal(t, 0.03, cfg.Metrics.RiskFreeAnnual)
	assert.Equal(t, 252, cfg.Metrics.PeriodsPerYear)

	// Untouched fields keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "config/patterns", cfg.Patterns.Dir)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
orchestrator:
  max_parallel: -1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_parallel")
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
