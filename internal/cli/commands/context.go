// Package commands implements the nifpipe subcommands.
package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/soilbiogeo/nifpipe/internal/cli/config"
	"github.com/soilbiogeo/nifpipe/internal/cli/output"
	"github.com/spf13/cobra"
)

type contextKey int

const (
	configKey contextKey = iota
	rendererKey
	loggerKey
)

// NewContext attaches the loaded config, renderer and logger for the
// subcommands to pick up.
func NewContext(ctx context.Context, cfg *config.Config, r *output.Renderer, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, rendererKey, r)
	ctx = context.WithValue(ctx, loggerKey, logger)
	return ctx
}

func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

func rendererFrom(cmd *cobra.Command) *output.Renderer {
	if r, ok := cmd.Context().Value(rendererKey).(*output.Renderer); ok {
		return r
	}
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ModeAuto)
}

func loggerFrom(cmd *cobra.Command) *slog.Logger {
	if l, ok := cmd.Context().Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// NewLogger builds the CLI logger: silent by default, debug-level text
// on stderr when verbose.
func NewLogger(verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
