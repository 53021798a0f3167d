package commands

import (
	"path/filepath"

	"github.com/soilbiogeo/nifpipe/internal/stage/distribution"
	"github.com/soilbiogeo/nifpipe/internal/stage/importance"
	"github.com/soilbiogeo/nifpipe/internal/stage/jsdm"
	"github.com/soilbiogeo/nifpipe/internal/stage/regression"
	"github.com/soilbiogeo/nifpipe/internal/stage/sitemap"
	"github.com/soilbiogeo/nifpipe/internal/style"
	"github.com/spf13/cobra"
)

// NewSitemapCommand creates the sitemap command.
func NewSitemapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sitemap",
		Short: "Render the sampling-site map",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			artifact, err := sitemap.Render(cmd.Context(), sitemap.Config{
				WorldCSV: filepath.Join(cfg.DataDir, worldFile),
				SitesCSV: filepath.Join(cfg.DataDir, sitesFile),
				OutPath:  filepath.Join(cfg.OutDir, "map_clean.pdf"),
				Palette:  style.Default(),
				Logger:   loggerFrom(cmd),
			})
			if err != nil {
				return err
			}
			rendererFrom(cmd).Printf("Wrote %s\n", artifact)
			return nil
		},
	}
}

// NewDistributionCommand creates the distribution command.
func NewDistributionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "distribution",
		Short: "Render the nitrogen-fixation distribution figure",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			artifact, err := distribution.Render(cmd.Context(), distribution.Config{
				InputCSV: filepath.Join(cfg.DataDir, boxplotFile),
				OutPath:  filepath.Join(cfg.OutDir, "box_new.pdf"),
				Palette:  style.Default(),
				Seed:     cfg.Seed,
				Logger:   loggerFrom(cmd),
			})
			if err != nil {
				return err
			}
			rendererFrom(cmd).Printf("Wrote %s\n", artifact)
			return nil
		},
	}
}

// NewRegressionCommand creates the regression command.
func NewRegressionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "regression",
		Short: "Fit the mixed model of nitrogen fixation on soil carbon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			res, err := regression.Run(cmd.Context(), regression.Config{
				InputCSV: filepath.Join(cfg.DataDir, sandFile),
				OutPath:  filepath.Join(cfg.OutDir, "Sand3.pdf"),
				Alpha:    cfg.Regression.Alpha,
				Palette:  style.Default(),
				Logger:   loggerFrom(cmd),
			})
			if err != nil {
				return err
			}
			return renderRegression(rendererFrom(cmd), res)
		},
	}
}

// NewImportanceCommand creates the importance command.
func NewImportanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "importance",
		Short: "Rank predictors of nifH abundance with a random forest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			res, err := importance.Run(cmd.Context(), importance.Config{
				InputCSV: filepath.Join(cfg.DataDir, mydataFile),
				Target:   cfg.Forest.Target,
				Trees:    cfg.Forest.Trees,
				Seed:     cfg.Seed,
				Logger:   loggerFrom(cmd),
			})
			if err != nil {
				return err
			}
			return renderImportance(rendererFrom(cmd), res)
		},
	}
}

// NewJSDMCommand creates the jsdm command.
func NewJSDMCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "jsdm",
		Short: "Fit the hierarchical Bayesian model and partition variance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			res, err := jsdm.Run(cmd.Context(), jsdm.Config{
				InputCSV: filepath.Join(cfg.DataDir, forestFile),
				OutDir:   cfg.OutDir,
				Samples:  cfg.MCMC.Samples,
				Thin:     cfg.MCMC.Thin,
				Chains:   cfg.MCMC.Chains,
				Seed:     cfg.Seed,
				Logger:   loggerFrom(cmd),
			})
			if err != nil {
				return err
			}
			return renderJSDM(rendererFrom(cmd), res)
		},
	}
}
