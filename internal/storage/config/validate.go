package config

import (
	"fmt"

	"github.com/xtxerr/tonestore/internal/errors"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	if c.Path == "" {
		v.AddMissing("path")
	}

	if c.ChunkSize <= 0 {
		v.AddField("chunk_size", "must be positive")
	}

	if c.WriteBufferSize < 0 {
		v.AddField("write_buffer_size", "must not be negative")
	}

	if err := c.Geometry.Validate(); err != nil {
		v.Add(errors.Wrap(err, "geometry"))
	}

	if err := c.Peaks.Validate(); err != nil {
		v.Add(errors.Wrap(err, "peaks"))
	}

	if err := c.Export.Validate(); err != nil {
		v.Add(errors.Wrap(err, "export"))
	}

	if err := c.Query.Validate(); err != nil {
		v.Add(errors.Wrap(err, "query"))
	}

	if c.Summary.Accuracy <= 0 || c.Summary.Accuracy >= 1 {
		v.AddField("summary.accuracy", "must be between 0 and 1")
	}

	if err := c.Publish.Validate(); err != nil {
		v.Add(errors.Wrap(err, "publish"))
	}

	return v.Err()
}

// Validate checks the table geometry.
func (c *GeometryConfig) Validate() error {
	var errs []error

	if c.BandCount <= 0 {
		errs = append(errs, errors.NewValidation("band_count", "must be positive"))
	}

	if c.NoteCount <= 0 {
		errs = append(errs, errors.NewValidation("note_count", "must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks the peak extractor constants.
func (c *PeaksConfig) Validate() error {
	var errs []error

	if c.HeightCutoff < 0 {
		errs = append(errs, errors.NewValidation("height_cutoff", "must not be negative"))
	}

	if c.MinNoteDistance <= 0 {
		errs = append(errs, errors.NewValidation("min_note_distance", "must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	var errs []error

	switch c.Compression {
	case "snappy", "zstd", "lz4", "gzip", "none", "":
	default:
		errs = append(errs, errors.NewValidation("compression", fmt.Sprintf("unknown algorithm %q", c.Compression)))
	}

	if c.RowGroupSize <= 0 {
		errs = append(errs, errors.NewValidation("row_group_size", "must be positive"))
	}

	if c.Workers <= 0 {
		errs = append(errs, errors.NewValidation("workers", "must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.Timeout < 0 {
		errs = append(errs, errors.NewValidation("timeout", "must not be negative"))
	}

	if c.MaxRows < 0 {
		errs = append(errs, errors.NewValidation("max_rows", "must not be negative"))
	}

	return errors.Join(errs...)
}

// Validate checks the publish configuration. An empty endpoint disables
// publishing and skips the remaining checks.
func (c *PublishConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}

	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.NewMissingField("bucket"))
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		errs = append(errs, errors.NewMissingField("access_key/secret_key"))
	}

	return errors.Join(errs...)
}
