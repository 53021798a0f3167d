// Package dataset loads the study's CSV inputs through DuckDB and
// exposes them as in-memory typed frames. Routing every input through
// read_csv_auto gives uniform numeric coercion and a single failure
// mode for malformed files.
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Store is an in-memory DuckDB handle that CSV inputs are staged in.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to an in-memory DuckDB database.
func Open(ctx context.Context, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the DuckDB connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadCSV stages a CSV file as a table, inferring the schema.
func (s *Store) LoadCSV(ctx context.Context, tableName, filePath string) error {
	if s.db == nil {
		return fmt.Errorf("database connection not established")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	s.logger.Debug("loading csv", "table", tableName, "path", absPath)

	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
		tableName,
		absPath,
	)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV %s: %w", filePath, err)
	}
	return nil
}

// Frame reads a staged table back as a typed frame, preserving column
// order.
func (s *Store) Frame(ctx context.Context, tableName string) (*Frame, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	//nolint:gosec // table names originate from this package's callers
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for %s: %w", tableName, err)
	}

	f := newFrame(cols)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row from %s: %w", tableName, err)
		}
		if err := f.appendRow(values); err != nil {
			return nil, fmt.Errorf("table %s: %w", tableName, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", tableName, err)
	}

	s.logger.Debug("frame loaded", "table", tableName, "rows", f.Len(), "columns", len(cols))
	return f, nil
}

// LoadFrame stages a CSV and immediately reads it back as a frame.
func (s *Store) LoadFrame(ctx context.Context, tableName, filePath string) (*Frame, error) {
	if err := s.LoadCSV(ctx, tableName, filePath); err != nil {
		return nil, err
	}
	return s.Frame(ctx, tableName)
}
