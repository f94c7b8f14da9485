package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tserrors "github.com/xtxerr/tonestore/internal/errors"
	"github.com/xtxerr/tonestore/internal/storage/dataset"
	"github.com/xtxerr/tonestore/internal/storage/schema"
	"github.com/xtxerr/tonestore/internal/storage/types"
)

// Result describes one exported or imported table.
type Result struct {
	Table schema.Table
	Path  string
	Rows  int64
	Bytes int64
}

// FilePath returns where table t is exported below dir.
func FilePath(dir string, t schema.Table) string {
	return filepath.Join(dir, t.Info().Group, t.String()+".parquet")
}

// ExportTable writes every row of table t in f to FilePath(dir, t).
// Rows are read from the store and written one row group at a time.
func ExportTable(f *dataset.File, t schema.Table, dir string, opts Options) (Result, error) {
	if opts.RowGroupSize <= 0 {
		opts.RowGroupSize = DefaultOptions().RowGroupSize
	}

	info, err := f.Info(t.Path())
	if err != nil {
		return Result{}, err
	}

	path := FilePath(dir, t)
	switch {
	case info.Spec.Elem == types.ElemInt32 && info.Spec.Rank == types.Scalar:
		err = exportRows(f, info, path, opts, func(start int64, v []int32) []IntRow {
			rows := make([]IntRow, len(v))
			for i := range v {
				rows[i] = IntRow{Row: start + int64(i), Value: v[i]}
			}
			return rows
		})
	case info.Spec.Elem == types.ElemFloat32 && info.Spec.Rank == types.Scalar:
		err = exportRows(f, info, path, opts, func(start int64, v []float32) []FloatRow {
			rows := make([]FloatRow, len(v))
			for i := range v {
				rows[i] = FloatRow{Row: start + int64(i), Value: v[i]}
			}
			return rows
		})
	case info.Spec.Elem == types.ElemFloat32 && info.Spec.Rank == types.Vector:
		width := info.Spec.Width
		err = exportRows(f, info, path, opts, func(start int64, v []float32) []VectorRow {
			rows := make([]VectorRow, len(v)/width)
			for i := range rows {
				rows[i] = VectorRow{Row: start + int64(i), Values: v[i*width : (i+1)*width]}
			}
			return rows
		})
	default:
		err = tserrors.NewNotCompatible(t.Path(), fmt.Sprintf("no export row for %s %s", info.Spec.Rank, info.Spec.Elem))
	}
	if err != nil {
		return Result{}, fmt.Errorf("export %s: %w", t, err)
	}

	st, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("export %s: %w", t, err)
	}
	return Result{Table: t, Path: path, Rows: info.Rows, Bytes: st.Size()}, nil
}

func exportRows[T types.Element, R Row](f *dataset.File, info dataset.Info, path string, opts Options, convert func(int64, []T) []R) error {
	w, err := NewWriter[R](path, opts)
	if err != nil {
		return err
	}

	batch := int64(opts.RowGroupSize)
	for start := int64(0); start < info.Rows; start += batch {
		count := min(batch, info.Rows-start)

		values, err := dataset.ReadRange[T](f, info.Path, start, count)
		if err != nil {
			w.Close()
			return err
		}
		if err := w.Write(convert(start, values)); err != nil {
			w.Close()
			return err
		}
		if err := w.Flush(); err != nil {
			w.Close()
			return err
		}
	}

	return w.Close()
}

// ImportTable appends the rows of an exported file to table t in f. The
// file's row indices must continue the table: the first row is the table's
// current row count and each following row is one more. Vector rows must
// have the table's width. Rows are checked and appended one batch at a
// time, so batches before a bad row stay appended.
func ImportTable(f *dataset.File, t schema.Table, path string, batch int) (Result, error) {
	if batch <= 0 {
		batch = DefaultOptions().RowGroupSize
	}

	info, err := f.Info(t.Path())
	if err != nil {
		return Result{}, err
	}

	var n int64
	switch {
	case info.Spec.Elem == types.ElemInt32 && info.Spec.Rank == types.Scalar:
		n, err = importRows(f, info, path, batch, func(next int64, rows []IntRow) ([]int32, error) {
			values := make([]int32, len(rows))
			for i, r := range rows {
				if err := checkIndex(r.Row, next+int64(i)); err != nil {
					return nil, err
				}
				values[i] = r.Value
			}
			return values, nil
		})
	case info.Spec.Elem == types.ElemFloat32 && info.Spec.Rank == types.Scalar:
		n, err = importRows(f, info, path, batch, func(next int64, rows []FloatRow) ([]float32, error) {
			values := make([]float32, len(rows))
			for i, r := range rows {
				if err := checkIndex(r.Row, next+int64(i)); err != nil {
					return nil, err
				}
				values[i] = r.Value
			}
			return values, nil
		})
	case info.Spec.Elem == types.ElemFloat32 && info.Spec.Rank == types.Vector:
		width := info.Spec.Width
		n, err = importRows(f, info, path, batch, func(next int64, rows []VectorRow) ([]float32, error) {
			values := make([]float32, 0, len(rows)*width)
			for i, r := range rows {
				if err := checkIndex(r.Row, next+int64(i)); err != nil {
					return nil, err
				}
				if len(r.Values) != width {
					return nil, fmt.Errorf("row %d: %w", r.Row, tserrors.NewWidthMismatch(info.Path, width, len(r.Values)))
				}
				values = append(values, r.Values...)
			}
			return values, nil
		})
	default:
		err = tserrors.NewNotCompatible(t.Path(), fmt.Sprintf("no import row for %s %s", info.Spec.Rank, info.Spec.Elem))
	}
	if err != nil {
		return Result{}, fmt.Errorf("import %s: %w", t, err)
	}

	return Result{Table: t, Path: path, Rows: n}, nil
}

func checkIndex(got, want int64) error {
	if got != want {
		return fmt.Errorf("row %d where row %d was expected: %w", got, want, tserrors.ErrInvalidInput)
	}
	return nil
}

func importRows[T types.Element, R Row](f *dataset.File, info dataset.Info, path string, batch int, convert func(int64, []R) ([]T, error)) (int64, error) {
	r, err := NewReader[R](path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	next := info.Rows
	var imported int64
	for {
		rows, err := r.Read(batch)
		if errors.Is(err, io.EOF) || (err == nil && len(rows) == 0) {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}

		values, err := convert(next, rows)
		if err != nil {
			return imported, err
		}

		shape := dataset.Rows(len(rows))
		if info.Spec.Rank == types.Vector {
			shape = dataset.Matrix(len(rows), info.Spec.Width)
		}
		if err := dataset.Append(f, info.Path, values, shape); err != nil {
			return imported, err
		}

		next += int64(len(rows))
		imported += int64(len(rows))
	}
}
