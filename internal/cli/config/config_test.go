package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "nifpipe.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err == nil {
		// An explicit but missing config file is an error.
		t.Fatal("expected an error for an explicit missing config file")
	}

	cfg, err = LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Seed != DefaultSeed {
		t.Errorf("seed = %d, want %d", cfg.Seed, DefaultSeed)
	}
	if cfg.Forest.Trees != DefaultTrees || cfg.Forest.Target != DefaultTarget {
		t.Errorf("forest defaults = %+v", cfg.Forest)
	}
	if cfg.MCMC.Samples != DefaultSamples || cfg.MCMC.Chains != DefaultChains {
		t.Errorf("mcmc defaults = %+v", cfg.MCMC)
	}
	if cfg.Regression.Alpha != DefaultAlpha {
		t.Errorf("alpha = %g, want %g", cfg.Regression.Alpha, DefaultAlpha)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
seed: 7
forest:
  trees: 250
regression:
  alpha: 0.01
data_dir: inputs
`)

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Seed != 7 {
		t.Errorf("seed = %d, want 7", cfg.Seed)
	}
	if cfg.Forest.Trees != 250 {
		t.Errorf("trees = %d, want 250", cfg.Forest.Trees)
	}
	if cfg.Regression.Alpha != 0.01 {
		t.Errorf("alpha = %g, want 0.01", cfg.Regression.Alpha)
	}
	// Untouched keys keep their defaults.
	if cfg.MCMC.Chains != DefaultChains {
		t.Errorf("chains = %d, want default %d", cfg.MCMC.Chains, DefaultChains)
	}
	// Relative paths resolve against the config file directory.
	if want := filepath.Join(dir, "inputs"); cfg.DataDir != want {
		t.Errorf("data_dir = %s, want %s", cfg.DataDir, want)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "seed: 7\n")

	t.Setenv("NIFPIPE_SEED", "99")
	t.Setenv("NIFPIPE_MCMC__CHAINS", "2")

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Seed != 99 {
		t.Errorf("seed = %d, env should override file", cfg.Seed)
	}
	if cfg.MCMC.Chains != 2 {
		t.Errorf("chains = %d, want env override 2", cfg.MCMC.Chains)
	}
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("NIFPIPE_SEED", "99")
	t.Setenv("NIFPIPE_STATE_PATH", "/env/state.db")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int64("seed", 0, "")
	flags.String("state", "", "")
	flags.String("output", "", "")
	if err := flags.Parse([]string{"--seed=3", "--state=/flag/state.db"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadConfig("", flags)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Seed != 3 {
		t.Errorf("seed = %d, flag should win", cfg.Seed)
	}
	// --state maps onto the state_path key.
	if cfg.StatePath != "/flag/state.db" {
		t.Errorf("state_path = %s, want flag value", cfg.StatePath)
	}
	// Unset flags do not clobber lower layers.
	if cfg.Output != DefaultOutput {
		t.Errorf("output = %s, want default", cfg.Output)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DataDir:    "data",
			Output:     "auto",
			Regression: RegressionConfig{Alpha: 0.05},
			Forest:     ForestConfig{Trees: 100, Target: "nifH"},
			MCMC:       MCMCConfig{Samples: 10, Thin: 1, Chains: 2},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty data dir", mutate: func(c *Config) { c.DataDir = "" }},
		{name: "alpha too big", mutate: func(c *Config) { c.Regression.Alpha = 1.5 }},
		{name: "zero trees", mutate: func(c *Config) { c.Forest.Trees = 0 }},
		{name: "zero chains", mutate: func(c *Config) { c.MCMC.Chains = 0 }},
		{name: "bad output mode", mutate: func(c *Config) { c.Output = "yaml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
