package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// Reader reads rows of one type from a Parquet file.
type Reader[R Row] struct {
	file   *os.File
	reader *parquet.GenericReader[R]
	path   string
}

// NewReader opens a Parquet file for reading.
func NewReader[R Row](path string) (*Reader[R], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[R](f)

	return &Reader[R]{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// Read reads up to n rows. It returns io.EOF once every row has been read.
func (r *Reader[R]) Read(n int) ([]R, error) {
	rows := make([]R, n)
	count, err := r.reader.Read(rows)
	if count > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return rows[:count], nil
}

// ReadAll reads every remaining row.
func (r *Reader[R]) ReadAll() ([]R, error) {
	all := make([]R, 0, r.reader.NumRows())
	for {
		rows, err := r.Read(4096)
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return all, nil
		}
		all = append(all, rows...)
	}
}

// NumRows returns the total number of rows in the file.
func (r *Reader[R]) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader[R]) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader[R]) Path() string {
	return r.path
}
