package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/tonestore/internal/logging"
	"github.com/xtxerr/tonestore/internal/storage/aggregate"
	"github.com/xtxerr/tonestore/internal/storage/config"
	"github.com/xtxerr/tonestore/internal/storage/dataset"
	"github.com/xtxerr/tonestore/internal/storage/featuredb"
	"github.com/xtxerr/tonestore/internal/storage/parquet"
	"github.com/xtxerr/tonestore/internal/storage/publish"
	"github.com/xtxerr/tonestore/internal/storage/query"
	"github.com/xtxerr/tonestore/internal/storage/schema"
)

// summaryBatch is the number of rows read per step when summarizing.
const summaryBatch = 4096

// Service ties a feature database to its export, query and summary paths.
//
// Writes go through DB and are not safe for concurrent use. Export and
// Summarize flush the store and then read it through one read-only handle
// per table, so their per-table work runs in parallel.
type Service struct {
	mu sync.Mutex

	config *config.Config
	db     *featuredb.DB
	query  *query.Service
	log    *slog.Logger

	startTime time.Time
	stats     ServiceStats
}

// ServiceStats holds counters for the operations run by a Service.
type ServiceStats struct {
	Exports       int64
	TablesWritten int64
	RowsExported  int64
	Imports       int64
	Summaries     int64
	Published     int64
	Query         query.Stats
}

// Info describes an open store.
type Info struct {
	Path       string
	ID         string
	ReadOnly   bool
	Size       int64
	Geometry   config.GeometryConfig
	Counts     featuredb.Counts
	Records    map[string]int64
	Consistent bool
	Truncated  int64
	Uptime     time.Duration
}

// Create creates a new store at cfg.Path.
func Create(cfg *config.Config) (*Service, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}

	db, err := featuredb.Create(cfg.Path, cfg)
	if err != nil {
		return nil, err
	}
	return newService(cfg, db), nil
}

// Open opens the store at cfg.Path for reading and appending. The store
// must have been created with the same geometry.
func Open(cfg *config.Config) (*Service, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}

	db, err := featuredb.Open(cfg.Path, cfg)
	if err != nil {
		return nil, err
	}
	return newService(cfg, db), nil
}

// OpenReadOnly opens the store at cfg.Path for inspection. The geometry is
// taken from the file.
func OpenReadOnly(cfg *config.Config) (*Service, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}

	db, err := featuredb.OpenReadOnly(cfg.Path)
	if err != nil {
		return nil, err
	}
	cfg.Geometry = db.Geometry()
	return newService(cfg, db), nil
}

func prepare(cfg *config.Config) (*config.Config, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := *cfg
	return &c, nil
}

func newService(cfg *config.Config, db *featuredb.DB) *Service {
	s := &Service{
		config:    cfg,
		db:        db,
		log:       logging.Component("storage").With("path", cfg.Path),
		startTime: time.Now(),
	}
	s.log.Info("store opened", "id", db.File().ID().String(), "read_only", db.File().ReadOnly())
	return s
}

// DB returns the feature database.
func (s *Service) DB() *featuredb.DB {
	return s.db
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config {
	return s.config
}

// Close closes the query engine and the store.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var qerr error
	if s.query != nil {
		qerr = s.query.Close()
		s.query = nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return qerr
}

// Info returns the store's identity and row counts.
func (s *Service) Info() Info {
	f := s.db.File()
	counts := s.db.Counts()

	records := make(map[string]int64, len(schema.Groups()))
	for _, g := range schema.Groups() {
		records[g] = counts.Records(g)
	}

	return Info{
		Path:       f.Path(),
		ID:         f.ID().String(),
		ReadOnly:   f.ReadOnly(),
		Size:       f.Size(),
		Geometry:   s.db.Geometry(),
		Counts:     counts,
		Records:    records,
		Consistent: counts.Consistent(),
		Truncated:  f.Stats().TruncatedBytes,
		Uptime:     time.Since(s.startTime),
	}
}

// exportOptions converts the export configuration.
func (s *Service) exportOptions() parquet.Options {
	opts := parquet.DefaultOptions()
	opts.Compression = parquet.ParseCompressionType(s.config.Export.Compression)
	if s.config.Export.RowGroupSize > 0 {
		opts.RowGroupSize = s.config.Export.RowGroupSize
	}
	return opts
}

// eachTable flushes the store and runs fn for every table in parallel,
// each call with its own read-only handle. At most Export.Workers calls
// run at once. Results are returned in table order.
func eachTable[R any](ctx context.Context, s *Service, tables []schema.Table, fn func(*dataset.File, schema.Table) (R, error)) ([]R, error) {
	if !s.db.File().ReadOnly() {
		if err := s.db.Flush(); err != nil {
			return nil, fmt.Errorf("flush before read: %w", err)
		}
	}

	results := make([]R, len(tables))
	g, ctx := errgroup.WithContext(ctx)
	if s.config.Export.Workers > 0 {
		g.SetLimit(s.config.Export.Workers)
	}

	for i, t := range tables {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			f, err := dataset.OpenReadOnly(s.config.Path)
			if err != nil {
				return err
			}
			defer f.Close()

			r, err := fn(f, t)
			if err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Export writes every table to Parquet below dir. An empty dir means
// Export.Dir. Files of tables exported before a failure are left in place.
func (s *Service) Export(ctx context.Context, dir string) ([]parquet.Result, error) {
	if dir == "" {
		dir = s.config.Export.Dir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	opts := s.exportOptions()
	start := time.Now()

	results, err := eachTable(ctx, s, schema.All(), func(f *dataset.File, t schema.Table) (parquet.Result, error) {
		r, err := parquet.ExportTable(f, t, dir, opts)
		if err != nil {
			return r, err
		}
		s.log.Debug("table exported", "table", t.String(), "rows", r.Rows, "bytes", r.Bytes)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	var rows int64
	for _, r := range results {
		rows += r.Rows
	}

	s.mu.Lock()
	s.stats.Exports++
	s.stats.TablesWritten += int64(len(results))
	s.stats.RowsExported += rows
	s.mu.Unlock()

	s.log.Info("export complete",
		"dir", dir,
		"tables", len(results),
		"rows", rows,
		"duration", time.Since(start),
	)
	return results, nil
}

// Import appends the rows of every table exported below dir. Tables
// without a file are skipped. Imports run one table at a time since they
// write to the store.
func (s *Service) Import(ctx context.Context, dir string) ([]parquet.Result, error) {
	var results []parquet.Result

	for _, t := range schema.All() {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		path := parquet.FilePath(dir, t)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		r, err := parquet.ImportTable(s.db.File(), t, path, s.config.ChunkSize)
		if err != nil {
			return results, fmt.Errorf("import %s: %w", t, err)
		}
		results = append(results, r)
	}

	if err := s.db.Flush(); err != nil {
		return results, err
	}

	s.mu.Lock()
	s.stats.Imports++
	s.mu.Unlock()

	if !s.db.Consistent() {
		s.log.Warn("sibling tables differ in length after import", "dir", dir)
	}
	return results, nil
}

// Summarize computes a column summary for each table.
func (s *Service) Summarize(ctx context.Context, tables ...schema.Table) ([]aggregate.Result, error) {
	if len(tables) == 0 {
		tables = schema.All()
	}

	accuracy := s.config.Summary.Accuracy
	results, err := eachTable(ctx, s, tables, func(f *dataset.File, t schema.Table) (aggregate.Result, error) {
		return aggregate.SummarizeTable(f, t, accuracy, summaryBatch)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.stats.Summaries += int64(len(results))
	s.mu.Unlock()
	return results, nil
}

// Query runs sql against the tables exported below dir. With an empty
// dir the store is exported to a temporary directory first, which is
// removed before Query returns.
func (s *Service) Query(ctx context.Context, dir, sql string) ([]map[string]interface{}, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "tonestore-query-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmp)

		if _, err := s.Export(ctx, tmp); err != nil {
			return nil, err
		}
		dir = tmp
	}

	q, err := s.queryService()
	if err != nil {
		return nil, err
	}
	if _, err := q.Attach(ctx, dir); err != nil {
		return nil, err
	}
	return q.ExecuteSQL(ctx, sql)
}

func (s *Service) queryService() (*query.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.query == nil {
		q, err := query.New(s.config)
		if err != nil {
			return nil, err
		}
		s.query = q
	}
	return s.query, nil
}

// Publish uploads exported files with p. Keys are placed under the
// store's UUID.
func (s *Service) Publish(ctx context.Context, p *publish.Publisher, dir string, results []parquet.Result) ([]publish.Object, error) {
	if dir == "" {
		dir = s.config.Export.Dir
	}

	objects, err := p.Publish(ctx, s.db.File().ID().String(), dir, results)

	s.mu.Lock()
	s.stats.Published += int64(len(objects))
	s.mu.Unlock()

	return objects, err
}

// Stats returns service counters.
func (s *Service) Stats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	if s.query != nil {
		stats.Query = s.query.Stats()
	}
	return stats
}
