// Package query runs SQL over exported tables with DuckDB.
//
// Attach registers one view per exported table, named after the table
// (eventsStart, spectrum, ...), plus one view per group (events, labels,
// features) that joins sibling tables on their row index.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/tonestore/internal/logging"
	"github.com/xtxerr/tonestore/internal/storage/config"
	"github.com/xtxerr/tonestore/internal/storage/parquet"
	"github.com/xtxerr/tonestore/internal/storage/schema"
)

// Service provides SQL over Parquet exports.
type Service struct {
	mu sync.RWMutex

	config *config.Config
	db     *sql.DB
	views  []string
	log    *slog.Logger

	// Statistics
	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	RowsTruncated   int64
	Errors          int64
}

// New creates a new query service backed by an in-memory DuckDB database.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// Views live in the connection's catalog; keep to one connection.
	db.SetMaxOpenConns(1)

	// Configure DuckDB
	if cfg.Query.MemoryLimit != "" {
		_, err = db.Exec(fmt.Sprintf("SET memory_limit='%s'", cfg.Query.MemoryLimit))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{
		config: cfg,
		db:     db,
		log:    logging.Component("query"),
	}, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Attach creates views over the Parquet files below dir. Tables without an
// exported file are skipped; a group view is created only when all of its
// tables are present. It returns the names of the views created.
func (s *Service) Attach(ctx context.Context, dir string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var views []string
	present := make(map[schema.Table]bool)

	for _, t := range schema.All() {
		path := parquet.FilePath(dir, t)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)",
			quoteIdent(t.String()), quoteLiteral(path))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.stats.Errors++
			return views, fmt.Errorf("create view %s: %w", t, err)
		}
		present[t] = true
		views = append(views, t.String())
	}

	for _, g := range schema.Groups() {
		tables := schema.InGroup(g)
		complete := true
		for _, t := range tables {
			complete = complete && present[t]
		}
		if !complete {
			continue
		}

		if _, err := s.db.ExecContext(ctx, groupView(g, tables)); err != nil {
			s.stats.Errors++
			return views, fmt.Errorf("create view %s: %w", g, err)
		}
		views = append(views, g)
	}

	s.views = views
	s.log.Debug("views attached", "dir", dir, "views", len(views))
	return views, nil
}

// groupView joins the tables of one group on their row index. Only rows
// present in every table appear.
func groupView(group string, tables []schema.Table) string {
	var cols, joins []string
	for i, t := range tables {
		alias := fmt.Sprintf("t%d", i)
		col := "value"
		if t.Info().Dim != schema.DimNone {
			col = "values"
		}
		cols = append(cols, fmt.Sprintf("%s.%s AS %s", alias, quoteIdent(col), quoteIdent(t.String())))
		if i == 0 {
			joins = append(joins, fmt.Sprintf("%s %s", quoteIdent(t.String()), alias))
		} else {
			joins = append(joins, fmt.Sprintf("JOIN %s %s ON %s.idx = t0.idx", quoteIdent(t.String()), alias, alias))
		}
	}

	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT t0.idx, %s FROM %s",
		quoteIdent(group), strings.Join(cols, ", "), strings.Join(joins, " "))
}

// Views returns the names of the attached views.
func (s *Service) Views() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.views...)
}

// ExecuteSQL executes a raw SQL query using DuckDB.
// At most Query.MaxRows rows are returned; the query is bounded by
// Query.Timeout.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Query.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Query.Timeout)
		defer cancel()
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	maxRows := s.config.Query.MaxRows

	for rows.Next() {
		if maxRows > 0 && len(results) >= maxRows {
			s.stats.RowsTruncated++
			s.log.Warn("query result truncated", "max_rows", maxRows)
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			s.stats.Errors++
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))

	return results, rows.Err()
}

// Stats returns query statistics.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
