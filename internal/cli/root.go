// Package cli provides the command-line interface for nifpipe.
package cli

import (
	"fmt"
	"os"

	"github.com/soilbiogeo/nifpipe/internal/cli/commands"
	"github.com/soilbiogeo/nifpipe/internal/cli/config"
	"github.com/soilbiogeo/nifpipe/internal/cli/output"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nifpipe",
		Short: "nifpipe - Soil nitrogen-fixation analysis pipeline",
		Long: `nifpipe runs the analysis stages of a soil nitrogen-fixation
study over CSV inputs: a sampling-site map, a distribution figure, a
mixed-effects regression, a random-forest importance ranking and a
hierarchical Bayesian joint model with variance partitioning.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := commands.NewLogger(cfg.Verbose)
			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))
			cmd.SetContext(commands.NewContext(cmd.Context(), cfg, renderer, logger))

			if cfg.Verbose {
				if used := config.GetConfigFileUsed(); used != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", used)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./nifpipe.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Path to the input CSV directory")
	rootCmd.PersistentFlags().String("out-dir", "", "Path for figure outputs")
	rootCmd.PersistentFlags().String("state", "", "Path to the run-state database")
	rootCmd.PersistentFlags().Int64("seed", 0, "Master random seed")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewSitemapCommand())
	rootCmd.AddCommand(commands.NewDistributionCommand())
	rootCmd.AddCommand(commands.NewRegressionCommand())
	rootCmd.AddCommand(commands.NewImportanceCommand())
	rootCmd.AddCommand(commands.NewJSDMCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())

	return rootCmd
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
