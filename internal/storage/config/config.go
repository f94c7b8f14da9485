package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/tonestore/config"
)

// Config represents the complete tonestore configuration.
type Config struct {
	// Path is the store file.
	Path string `yaml:"path"`

	// ChunkSize is the number of rows per chunk record.
	ChunkSize int `yaml:"chunk_size"`

	// WriteBufferSize is the size of the store's buffered writer in bytes.
	WriteBufferSize int `yaml:"write_buffer_size"`

	// Geometry fixes the width of the 2-D tables.
	Geometry GeometryConfig `yaml:"geometry"`

	// Peaks configures the peak extractor.
	Peaks PeaksConfig `yaml:"peaks"`

	// Export configures Parquet export.
	Export ExportConfig `yaml:"export"`

	// Query configures the SQL inspection service.
	Query QueryConfig `yaml:"query"`

	// Summary configures column summaries.
	Summary SummaryConfig `yaml:"summary"`

	// Publish configures uploads of exports to an object store.
	Publish PublishConfig `yaml:"publish"`
}

// GeometryConfig fixes the secondary dimension of the 2-D tables.
// The widths are recorded in the store file when it is created and every
// later append must match them.
type GeometryConfig struct {
	// BandCount is the width of the features/* tables.
	BandCount int `yaml:"band_count"`

	// NoteCount is the width of labels/labelsNotes.
	NoteCount int `yaml:"note_count"`
}

// PeaksConfig configures the peak extractor.
type PeaksConfig struct {
	// HeightCutoff drops peaks with magnitude <= this value.
	HeightCutoff float64 `yaml:"height_cutoff"`

	// MinNoteDistance is the minimum spacing between peaks in semitones.
	MinNoteDistance float64 `yaml:"min_note_distance"`
}

// ExportConfig configures Parquet export.
type ExportConfig struct {
	// Dir is the export root. One file per table is written below it.
	Dir string `yaml:"dir"`

	// Compression is the Parquet codec: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// RowGroupSize is the target number of rows per row group.
	RowGroupSize int `yaml:"row_group_size"`

	// Workers bounds the number of tables exported concurrently.
	Workers int `yaml:"workers"`
}

// QueryConfig configures the SQL inspection service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the query timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRows is the maximum number of rows returned.
	MaxRows int `yaml:"max_rows"`
}

// SummaryConfig configures column summaries.
type SummaryConfig struct {
	// Accuracy is the DDSketch relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// PublishConfig configures uploads of Parquet exports.
// Publishing is disabled while Endpoint is empty.
type PublishConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// Enabled reports whether an upload target is configured.
func (c *PublishConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Path:            defaults.DefaultStorePath,
		ChunkSize:       defaults.DefaultChunkSize,
		WriteBufferSize: defaults.DefaultWriteBufferSize,
		Geometry: GeometryConfig{
			BandCount: defaults.DefaultBandCount,
			NoteCount: defaults.DefaultNoteCount,
		},
		Peaks: PeaksConfig{
			HeightCutoff:    defaults.DefaultHeightCutoff,
			MinNoteDistance: defaults.DefaultMinNoteDistance,
		},
		Export: ExportConfig{
			Dir:          defaults.DefaultExportDir,
			Compression:  defaults.DefaultExportCompression,
			RowGroupSize: defaults.DefaultRowGroupSize,
			Workers:      defaults.DefaultExportWorkers,
		},
		Query: QueryConfig{
			MemoryLimit: defaults.DefaultQueryMemoryLimit,
			Timeout:     defaults.DefaultQueryTimeout,
			MaxRows:     defaults.DefaultQueryMaxRows,
		},
		Summary: SummaryConfig{
			Accuracy: defaults.DefaultSummaryAccuracy,
		},
	}
}
