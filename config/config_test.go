package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.Policy.DisableRWhenRedundant)
	assert.False(t, cfg.Policy.DisableRWhenNotRedundant)

	assert.Equal(t, 32, cfg.Compaction.DebtThreshold)
	assert.Equal(t, 1.5, cfg.Compaction.DensityRatio)
	assert.Equal(t, 64, cfg.Compaction.Window)
	assert.Equal(t, 8, cfg.Compaction.MaxReductionDepth)

	assert.Equal(t, "info", cfg.Replica.LogLevel)
	assert.True(t, cfg.Replica.MetricsEnabled)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	require.NoError(t, os.Setenv("CAUSALCRDT_COMPACTION_DEBT_THRESHOLD", "16"))
	require.NoError(t, os.Setenv("CAUSALCRDT_POLICY_DISABLE_R_WHEN_REDUNDANT", "true"))
	defer func() {
		_ = os.Unsetenv("CAUSALCRDT_COMPACTION_DEBT_THRESHOLD")
		_ = os.Unsetenv("CAUSALCRDT_POLICY_DISABLE_R_WHEN_REDUNDANT")
	}()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Compaction.DebtThreshold)
	assert.True(t, cfg.Policy.DisableRWhenRedundant)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load("/nonexistent/path/causalcrdt.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestConfig_ConvertsToCoreTypes(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	policy := cfg.Policy.AsPolicy()
	assert.Equal(t, cfg.Policy.DisableRWhenRedundant, policy.DisableRWhenRedundant)

	compaction := cfg.Compaction.AsCompactionConfig()
	assert.Equal(t, cfg.Compaction.DebtThreshold, compaction.DebtThreshold)
	assert.Equal(t, cfg.Compaction.DensityRatio, compaction.DensityRatio)
}
