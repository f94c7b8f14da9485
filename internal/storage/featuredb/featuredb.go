// Package featuredb provides typed access to the events, labels and
// features tables of a tonestore file.
//
// Each domain record is spread over sibling tables, one column per field.
// A write checks every row's width against the store geometry first, then
// appends each column in a fixed order. An I/O failure partway through
// leaves the earlier columns appended and the later ones untouched.
// Nothing is rolled back; Counts and Consistent let callers detect the
// resulting row-count skew.
package featuredb

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/xtxerr/tonestore/internal/errors"
	"github.com/xtxerr/tonestore/internal/logging"
	"github.com/xtxerr/tonestore/internal/storage/config"
	"github.com/xtxerr/tonestore/internal/storage/dataset"
	"github.com/xtxerr/tonestore/internal/storage/schema"
	"github.com/xtxerr/tonestore/internal/storage/types"
)

// DB is an open feature database. Like the file underneath it, a DB is
// not safe for concurrent use.
type DB struct {
	file *dataset.File
	geo  config.GeometryConfig
	log  *slog.Logger
}

// Create creates a new store at path and initializes every table from cfg.
func Create(path string, cfg *config.Config) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	f, err := dataset.Create(path, dataset.Options{BufferSize: cfg.WriteBufferSize})
	if err != nil {
		return nil, err
	}

	if err := schema.CreateInFile(f, cfg.ChunkSize, cfg.Geometry); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("initialize %s: %w", path, err)
	}

	if err := f.Flush(); err != nil {
		f.Close()
		return nil, err
	}

	return newDB(f, cfg.Geometry), nil
}

// Open opens an existing store for reading and appending. With a non-nil
// cfg the file must match its geometry; with nil the geometry recorded in
// the file is used.
func Open(path string, cfg *config.Config) (*DB, error) {
	opts := dataset.DefaultOptions()
	if cfg != nil {
		opts.BufferSize = cfg.WriteBufferSize
	}

	f, err := dataset.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return attach(f, cfg)
}

// OpenReadOnly opens an existing store for reading only.
func OpenReadOnly(path string) (*DB, error) {
	f, err := dataset.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	return attach(f, nil)
}

func attach(f *dataset.File, cfg *config.Config) (*DB, error) {
	geo, err := schema.GeometryOf(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", f.Path(), err)
	}
	if cfg != nil {
		geo = cfg.Geometry
	}

	if err := schema.Verify(f, geo); err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", f.Path(), err)
	}
	return newDB(f, geo), nil
}

func newDB(f *dataset.File, geo config.GeometryConfig) *DB {
	return &DB{
		file: f,
		geo:  geo,
		log:  logging.Component("featuredb").With("path", f.Path()),
	}
}

// File returns the underlying store file.
func (db *DB) File() *dataset.File {
	return db.file
}

// Geometry returns the widths of the 2-D tables.
func (db *DB) Geometry() config.GeometryConfig {
	return db.geo
}

// Flush makes every write so far durable.
func (db *DB) Flush() error {
	return db.file.Flush()
}

// Close flushes and closes the store.
func (db *DB) Close() error {
	return db.file.Close()
}

// =============================================================================
// Events
// =============================================================================

// WriteEvents appends events to the four event tables, in the order start,
// duration, note, velocity. An empty batch performs four zero-length
// appends and writes nothing.
func (db *DB) WriteEvents(events []types.Event) error {
	n := len(events)
	starts := make([]int32, n)
	durations := make([]int32, n)
	notes := make([]int32, n)
	velocities := make([]float32, n)
	for i, e := range events {
		starts[i] = e.Start
		durations[i] = e.Duration
		notes[i] = e.Note
		velocities[i] = e.Velocity
	}

	if err := dataset.Append(db.file, schema.EventsStart.Path(), starts, dataset.Rows(n)); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	if err := dataset.Append(db.file, schema.EventsDuration.Path(), durations, dataset.Rows(n)); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	if err := dataset.Append(db.file, schema.EventsNote.Path(), notes, dataset.Rows(n)); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	if err := dataset.Append(db.file, schema.EventsVelocity.Path(), velocities, dataset.Rows(n)); err != nil {
		return fmt.Errorf("write events: %w", err)
	}

	db.log.Debug("events written", "count", n)
	return nil
}

// ReadEventAtIndex assembles the event stored at row index. It fails with
// the first column read that fails.
func (db *DB) ReadEventAtIndex(index int64) (types.Event, error) {
	var (
		e   types.Event
		err error
	)

	if e.Start, err = dataset.ReadScalar[int32](db.file, schema.EventsStart.Path(), index); err != nil {
		return types.Event{}, fmt.Errorf("read event %d: %w", index, err)
	}
	if e.Duration, err = dataset.ReadScalar[int32](db.file, schema.EventsDuration.Path(), index); err != nil {
		return types.Event{}, fmt.Errorf("read event %d: %w", index, err)
	}
	if e.Note, err = dataset.ReadScalar[int32](db.file, schema.EventsNote.Path(), index); err != nil {
		return types.Event{}, fmt.Errorf("read event %d: %w", index, err)
	}
	if e.Velocity, err = dataset.ReadScalar[float32](db.file, schema.EventsVelocity.Path(), index); err != nil {
		return types.Event{}, fmt.Errorf("read event %d: %w", index, err)
	}
	return e, nil
}

// =============================================================================
// Labels
// =============================================================================

// WriteLabels appends labels to the onset, polyphony and notes tables, in
// that order. Every label's notes must have the store's note width; a
// batch with any other row width is rejected before anything is written.
// An empty batch is a no-op.
func (db *DB) WriteLabels(labels []types.Label) error {
	n := len(labels)
	if n == 0 {
		return nil
	}

	width := db.geo.NoteCount
	for i, l := range labels {
		if len(l.Notes) != width {
			return fmt.Errorf("write labels: row %d: %w", i,
				errors.NewWidthMismatch(schema.LabelsNotes.Path(), width, len(l.Notes)))
		}
	}

	onsets := make([]float32, n)
	polyphony := make([]float32, n)
	notes := make([]float32, 0, n*width)
	for i, l := range labels {
		onsets[i] = l.Onset
		polyphony[i] = l.Polyphony
		notes = append(notes, l.Notes...)
	}

	if err := dataset.Append(db.file, schema.LabelsOnset.Path(), onsets, dataset.Rows(n)); err != nil {
		return fmt.Errorf("write labels: %w", err)
	}
	if err := dataset.Append(db.file, schema.LabelsPolyphony.Path(), polyphony, dataset.Rows(n)); err != nil {
		return fmt.Errorf("write labels: %w", err)
	}
	if err := dataset.Append(db.file, schema.LabelsNotes.Path(), notes, dataset.Matrix(n, width)); err != nil {
		return fmt.Errorf("write labels: %w", err)
	}

	db.log.Debug("labels written", "count", n)
	return nil
}

// ReadLabelAtIndex assembles the label stored at row index.
func (db *DB) ReadLabelAtIndex(index int64) (types.Label, error) {
	var (
		l   types.Label
		err error
	)

	if l.Onset, err = dataset.ReadScalar[float32](db.file, schema.LabelsOnset.Path(), index); err != nil {
		return types.Label{}, fmt.Errorf("read label %d: %w", index, err)
	}
	if l.Polyphony, err = dataset.ReadScalar[float32](db.file, schema.LabelsPolyphony.Path(), index); err != nil {
		return types.Label{}, fmt.Errorf("read label %d: %w", index, err)
	}
	if l.Notes, err = dataset.Read[float32](db.file, schema.LabelsNotes.Path(), index); err != nil {
		return types.Label{}, fmt.Errorf("read label %d: %w", index, err)
	}
	return l, nil
}

// =============================================================================
// Features
// =============================================================================

// featureChannels maps each feature table to the field it stores, in
// write order.
var featureChannels = []struct {
	table schema.Table
	get   func(*types.Feature) []float32
	set   func(*types.Feature, []float32)
}{
	{schema.FeaturesSpectrum,
		func(f *types.Feature) []float32 { return f.Spectrum },
		func(f *types.Feature, v []float32) { f.Spectrum = v }},
	{schema.FeaturesSpectralFlux,
		func(f *types.Feature) []float32 { return f.SpectralFlux },
		func(f *types.Feature, v []float32) { f.SpectralFlux = v }},
	{schema.FeaturesPeakHeights,
		func(f *types.Feature) []float32 { return f.PeakHeights },
		func(f *types.Feature, v []float32) { f.PeakHeights = v }},
	{schema.FeaturesPeakFlux,
		func(f *types.Feature) []float32 { return f.PeakFlux },
		func(f *types.Feature, v []float32) { f.PeakFlux = v }},
	{schema.FeaturesPeakLocations,
		func(f *types.Feature) []float32 { return f.PeakLocations },
		func(f *types.Feature, v []float32) { f.PeakLocations = v }},
}

// WriteFeatures appends features to the five feature tables. Every channel
// of every feature must have the store's band width; a batch with any
// other row width is rejected before anything is written. An empty batch
// is a no-op.
func (db *DB) WriteFeatures(features []types.Feature) error {
	n := len(features)
	if n == 0 {
		return nil
	}

	width := db.geo.BandCount
	for i := range features {
		for _, ch := range featureChannels {
			if got := len(ch.get(&features[i])); got != width {
				return fmt.Errorf("write features: row %d: %w", i,
					errors.NewWidthMismatch(ch.table.Path(), width, got))
			}
		}
	}

	for _, ch := range featureChannels {
		values := make([]float32, 0, n*width)
		for i := range features {
			values = append(values, ch.get(&features[i])...)
		}

		if err := dataset.Append(db.file, ch.table.Path(), values, dataset.Matrix(n, width)); err != nil {
			return fmt.Errorf("write features: %w", err)
		}
	}

	db.log.Debug("features written", "count", n, "width", width)
	return nil
}

// ReadFeatureAtIndex assembles the feature stored at row index.
func (db *DB) ReadFeatureAtIndex(index int64) (types.Feature, error) {
	var f types.Feature
	for _, ch := range featureChannels {
		row, err := dataset.Read[float32](db.file, ch.table.Path(), index)
		if err != nil {
			return types.Feature{}, fmt.Errorf("read feature %d: %w", index, err)
		}
		ch.set(&f, row)
	}
	return f, nil
}

// =============================================================================
// Row counts
// =============================================================================

// Counts maps each table to its row count.
type Counts map[schema.Table]int64

// Counts returns the row count of every table.
func (db *DB) Counts() Counts {
	counts := make(Counts, len(schema.All()))
	for _, t := range schema.All() {
		rows, err := db.file.Rows(t.Path())
		if err != nil {
			// Verified at open; a missing table counts as empty.
			continue
		}
		counts[t] = rows
	}
	return counts
}

// Records returns the number of complete records in a group: the smallest
// row count among its tables.
func (c Counts) Records(group string) int64 {
	tables := schema.InGroup(group)
	if len(tables) == 0 {
		return 0
	}

	least := c[tables[0]]
	for _, t := range tables[1:] {
		least = min(least, c[t])
	}
	return least
}

// Consistent reports whether every group's tables have the same row count.
func (c Counts) Consistent() bool {
	for _, g := range schema.Groups() {
		tables := schema.InGroup(g)
		for _, t := range tables[1:] {
			if c[t] != c[tables[0]] {
				return false
			}
		}
	}
	return true
}

// Consistent reports whether sibling tables agree on their row counts.
// A false result means an earlier write failed partway.
func (db *DB) Consistent() bool {
	return db.Counts().Consistent()
}
