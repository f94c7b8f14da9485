// Package config provides configuration defaults for tonestore.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultStorePath is the store file used when none is configured.
	// Override via config: path
	DefaultStorePath = "tonestore.tone"

	// DefaultChunkSize is the number of rows per chunk record.
	// Affects I/O granularity only; readers see the same rows for any value.
	// Override via config: chunk_size
	DefaultChunkSize = 1024

	// DefaultWriteBufferSize is the size of the store's buffered writer.
	// Override via config: write_buffer_size
	DefaultWriteBufferSize = 64 * 1024

	// MaxRecordSize bounds a single record on disk. Larger records are
	// treated as corruption when a store is opened.
	MaxRecordSize = 256 * 1024 * 1024
)

// =============================================================================
// Geometry Defaults
// =============================================================================

const (
	// DefaultBandCount is the width of every features/* row.
	// Override via config: geometry.band_count
	DefaultBandCount = 512

	// DefaultNoteCount is the width of labels/labelsNotes rows, one entry
	// per MIDI pitch.
	// Override via config: geometry.note_count
	DefaultNoteCount = 128
)

// =============================================================================
// Peak Extraction Defaults
// =============================================================================

const (
	// DefaultHeightCutoff drops candidate peaks whose magnitude is at or
	// below this value.
	// Override via config: peaks.height_cutoff
	DefaultHeightCutoff = 0.005

	// DefaultMinNoteDistance is the minimum spacing in semitones between
	// two retained peaks.
	// Override via config: peaks.min_note_distance
	DefaultMinNoteDistance = 0.5

	// ReferenceFrequency and ReferenceNote anchor the 12-TET pitch mapping
	// (A4 = 440 Hz = MIDI note 69).
	ReferenceFrequency = 440.0
	ReferenceNote      = 69.0
)

// =============================================================================
// Export / Query Defaults
// =============================================================================

const (
	// DefaultExportDir is where Parquet exports are written.
	// Override via config: export.dir
	DefaultExportDir = "export"

	// DefaultExportCompression is the Parquet codec for exports.
	// Override via config: export.compression
	DefaultExportCompression = "zstd"

	// DefaultRowGroupSize is the target number of rows per Parquet row group.
	// Override via config: export.row_group_size
	DefaultRowGroupSize = 100000

	// DefaultExportWorkers bounds the number of tables exported in parallel.
	// Override via config: export.workers
	DefaultExportWorkers = 4

	// DefaultQueryMemoryLimit is the DuckDB memory limit.
	// Override via config: query.memory_limit
	DefaultQueryMemoryLimit = "1GB"

	// DefaultQueryTimeout bounds a single SQL query.
	// Override via config: query.timeout
	DefaultQueryTimeout = 30 * time.Second

	// DefaultQueryMaxRows caps rows returned from a SQL query.
	// Override via config: query.max_rows
	DefaultQueryMaxRows = 10000

	// DefaultSummaryAccuracy is the DDSketch relative accuracy for column
	// summaries (0.01 = 1% error).
	// Override via config: summary.accuracy
	DefaultSummaryAccuracy = 0.01
)
