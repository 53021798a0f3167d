// Package config loads CLI configuration from nifpipe.yaml,
// NIFPIPE_-prefixed environment variables and command-line flags.
// Precedence (highest to lowest): flags > env vars > config file >
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all CLI configuration options.
type Config struct {
	DataDir    string           `koanf:"data_dir"`
	OutDir     string           `koanf:"out_dir"`
	StatePath  string           `koanf:"state_path"`
	Seed       int64            `koanf:"seed"`
	Verbose    bool             `koanf:"verbose"`
	Output     string           `koanf:"output"`
	Regression RegressionConfig `koanf:"regression"`
	Forest     ForestConfig     `koanf:"forest"`
	MCMC       MCMCConfig       `koanf:"mcmc"`
}

// RegressionConfig holds the mixed-model settings.
type RegressionConfig struct {
	Alpha float64 `koanf:"alpha"`
}

// ForestConfig holds the random-forest settings.
type ForestConfig struct {
	Trees  int    `koanf:"trees"`
	Target string `koanf:"target"`
}

// MCMCConfig holds the sampler settings.
type MCMCConfig struct {
	Samples int `koanf:"samples"`
	Thin    int `koanf:"thin"`
	Chains  int `koanf:"chains"`
}

// Default configuration values.
const (
	DefaultDataDir   = "data"
	DefaultOutDir    = "."
	DefaultStateFile = ".nifpipe/state.db"
	DefaultSeed      = 42
	DefaultOutput    = "auto"
	DefaultAlpha     = 0.05
	DefaultTrees     = 1000
	DefaultTarget    = "nifH"
	DefaultSamples   = 205
	DefaultThin      = 1
	DefaultChains    = 4
)

// maxUpwardSearchLevels limits how far up the directory tree to search
// for config files.
const maxUpwardSearchLevels = 10

var configFileUsed string

// GetConfigFileUsed returns the path of the config file that was
// loaded, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

func configFileIn(dir string) string {
	for _, name := range []string{"nifpipe.yaml", "nifpipe.yml"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigFile resolves the config file to use: the explicit path if
// given, otherwise the nearest nifpipe.yaml walking up from CWD.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if found := configFileIn(dir); found != "" {
			return found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// LoadConfig builds the effective configuration. The flags parameter
// may be nil; only flags that were explicitly set participate.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults.
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"data_dir":         DefaultDataDir,
		"out_dir":          DefaultOutDir,
		"state_path":       DefaultStateFile,
		"seed":             DefaultSeed,
		"verbose":          false,
		"output":           DefaultOutput,
		"regression.alpha": DefaultAlpha,
		"forest.trees":     DefaultTrees,
		"forest.target":    DefaultTarget,
		"mcmc.samples":     DefaultSamples,
		"mcmc.thin":        DefaultThin,
		"mcmc.chains":      DefaultChains,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file.
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables. NIFPIPE_DATA_DIR maps to data_dir;
	// a double underscore descends into a section, so
	// NIFPIPE_MCMC__CHAINS maps to mcmc.chains.
	if err := k.Load(env.Provider("NIFPIPE_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "NIFPIPE_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, highest priority.
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			// The CLI uses --state for brevity; the config key is
			// state_path.
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Relative paths in the config file resolve against its directory.
	if configFileUsed != "" {
		base := filepath.Dir(configFileUsed)
		cfg.DataDir = resolveRelativeTo(cfg.DataDir, base)
		cfg.OutDir = resolveRelativeTo(cfg.OutDir, base)
		cfg.StatePath = resolveRelativeTo(cfg.StatePath, base)
	}

	return &cfg, nil
}

func resolveRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Validate checks the configuration for values no command can run
// with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Regression.Alpha <= 0 || c.Regression.Alpha >= 1 {
		return fmt.Errorf("regression.alpha must be in (0, 1), got %g", c.Regression.Alpha)
	}
	if c.Forest.Trees <= 0 {
		return fmt.Errorf("forest.trees must be positive, got %d", c.Forest.Trees)
	}
	if c.MCMC.Samples <= 0 || c.MCMC.Chains <= 0 {
		return fmt.Errorf("mcmc.samples and mcmc.chains must be positive")
	}
	switch c.Output {
	case "", "auto", "text", "json", "markdown":
	default:
		return fmt.Errorf("unknown output mode %q", c.Output)
	}
	return nil
}
