// Package config binds the per-CRDT policy switches and compaction
// thresholds (spec §4.3, §4.2/§9) to a typed struct loadable from a YAML
// file, environment variables, or in-code defaults, so an operator can
// tune a deployment without touching code.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Polqt/causalcrdt/crdt"
	"github.com/Polqt/causalcrdt/polog"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// Config is the complete tunable surface of a causalcrdt deployment.
type Config struct {
	Policy     PolicyConfig     `mapstructure:"policy"`
	Compaction CompactionConfig `mapstructure:"compaction"`
	Replica    ReplicaConfig    `mapstructure:"replica"`
}

// PolicyConfig mirrors crdt.Policy (spec §4.3): short-circuits for the
// redundancy scans a data type's semantics don't need.
type PolicyConfig struct {
	DisableRWhenRedundant    bool `mapstructure:"disable_r_when_redundant"`
	DisableRWhenNotRedundant bool `mapstructure:"disable_r_when_not_redundant"`
}

// AsPolicy converts to crdt.Policy.
func (p PolicyConfig) AsPolicy() crdt.Policy {
	return crdt.Policy{
		DisableRWhenRedundant:    p.DisableRWhenRedundant,
		DisableRWhenNotRedundant: p.DisableRWhenNotRedundant,
	}
}

// CompactionConfig mirrors polog.CompactionConfig (spec §4.2/§9): the debt
// threshold T, density ratio R, and sliding window W that decide when a
// partial transitive reduction runs.
type CompactionConfig struct {
	DebtThreshold     int     `mapstructure:"debt_threshold"`
	DensityRatio      float64 `mapstructure:"density_ratio"`
	Window            int     `mapstructure:"window"`
	MaxReductionDepth int     `mapstructure:"max_reduction_depth"`
}

// AsCompactionConfig converts to polog.CompactionConfig.
func (c CompactionConfig) AsCompactionConfig() polog.CompactionConfig {
	return polog.CompactionConfig{
		DebtThreshold:     c.DebtThreshold,
		DensityRatio:      c.DensityRatio,
		Window:            c.Window,
		MaxReductionDepth: c.MaxReductionDepth,
	}
}

// ReplicaConfig holds replica-level operational knobs that have no
// existing core type to mirror.
type ReplicaConfig struct {
	LogLevel       string        `mapstructure:"log_level"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
	StabilizePoll  time.Duration `mapstructure:"stabilize_poll"`
}

// Load reads configuration from an optional file at path (if non-empty),
// then environment variables prefixed CAUSALCRDT_ (e.g.
// CAUSALCRDT_COMPACTION_DEBT_THRESHOLD), layered over the defaults set in
// setDefaults. A missing config file is not an error; missing environment
// variables fall back to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("causalcrdt")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("policy.disable_r_when_redundant", false)
	v.SetDefault("policy.disable_r_when_not_redundant", false)

	d := polog.DefaultCompactionConfig()
	v.SetDefault("compaction.debt_threshold", d.DebtThreshold)
	v.SetDefault("compaction.density_ratio", d.DensityRatio)
	v.SetDefault("compaction.window", d.Window)
	v.SetDefault("compaction.max_reduction_depth", d.MaxReductionDepth)

	v.SetDefault("replica.log_level", "info")
	v.SetDefault("replica.metrics_enabled", true)
	v.SetDefault("replica.stabilize_poll", "0s")
}
