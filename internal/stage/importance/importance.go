// Package importance ranks the numeric predictors of nifH gene
// abundance with a random-forest permutation test.
package importance

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/soilbiogeo/nifpipe/internal/dataset"
	"github.com/soilbiogeo/nifpipe/internal/stats/forest"
)

// Config holds the stage inputs.
type Config struct {
	InputCSV string
	Target   string // response column, typically nifH
	Trees    int
	Seed     int64
	Workers  int
	Logger   *slog.Logger
}

// Result is the ranked importance table.
type Result struct {
	Target   string
	Features int
	Rows     int
	Ranking  []forest.Importance
}

// Run loads the predictor table, fits the forest and returns the
// ranking in descending permutation-importance order.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := dataset.Open(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	f, err := store.LoadFrame(ctx, "predictors", cfg.InputCSV)
	if err != nil {
		return nil, err
	}

	y, err := f.Floats(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("response column: %w", err)
	}

	// All numeric columns except the response; label columns drop out
	// by type.
	features := f.NumericColumns(cfg.Target)
	if len(features) == 0 {
		return nil, fmt.Errorf("no numeric predictor columns besides %s", cfg.Target)
	}

	cols := make([][]float64, len(features))
	for j, name := range features {
		cols[j], err = f.Floats(name)
		if err != nil {
			return nil, fmt.Errorf("predictor %s: %w", name, err)
		}
	}

	rows := make([][]float64, f.Len())
	for i := range rows {
		row := make([]float64, len(features))
		for j := range features {
			v := cols[j][i]
			if math.IsNaN(v) {
				return nil, fmt.Errorf("predictor %s has a missing value in row %d", features[j], i+1)
			}
			row[j] = v
		}
		rows[i] = row
	}
	for i, v := range y {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("response %s has a missing value in row %d", cfg.Target, i+1)
		}
	}

	fit, err := forest.Fit(ctx, features, rows, y, forest.Config{
		Trees:   cfg.Trees,
		Seed:    cfg.Seed,
		Workers: cfg.Workers,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	ranking := fit.Importances()
	logger.Info("importance ranked",
		"target", cfg.Target,
		"predictors", len(features),
		"rows", len(rows),
		"top", ranking[0].Feature)

	return &Result{
		Target:   cfg.Target,
		Features: len(features),
		Rows:     len(rows),
		Ranking:  ranking,
	}, nil
}
