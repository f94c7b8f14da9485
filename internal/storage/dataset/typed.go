package dataset

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xtxerr/tonestore/internal/errors"
	"github.com/xtxerr/tonestore/internal/storage/types"
)

// Shape is the shape of a batch: {rows} for scalar datasets and
// {rows, width} for vector datasets.
type Shape []int

// Rows returns the shape of a batch of n scalar rows.
func Rows(n int) Shape {
	return Shape{n}
}

// Matrix returns the shape of a batch of n rows of the given width.
func Matrix(n, width int) Shape {
	return Shape{n, width}
}

// Append extends the dataset at path by shape[0] rows and writes values,
// row-major, starting at the previous end of the dataset.
//
// It fails without writing anything if the dataset is missing, stores a
// different element type or rank, has a different row width, or if
// len(values) does not equal the number of elements shape describes.
// An empty batch is a no-op once those checks pass.
func Append[T types.Element](f *File, path string, values []T, shape Shape) error {
	ds, rows, err := f.prepareAppend(path, types.ElemOf[T](), len(values), shape)
	if err != nil {
		return err
	}
	if rows == 0 {
		return nil
	}
	return f.writeRows(ds, rows, encodeValues(values))
}

// Read returns row index of the dataset at path: one element for a scalar
// dataset, the full fixed-width vector otherwise.
func Read[T types.Element](f *File, path string, index int64) ([]T, error) {
	return ReadRange[T](f, path, index, 1)
}

// ReadRange returns count rows starting at start, flattened row-major.
func ReadRange[T types.Element](f *File, path string, start, count int64) ([]T, error) {
	if f.closed {
		return nil, errors.ErrStoreClosed
	}

	ds, err := f.lookup(path, types.ElemOf[T]())
	if err != nil {
		return nil, err
	}

	data, err := f.readRows(ds, start, count)
	if err != nil {
		return nil, err
	}
	return decodeValues[T](data), nil
}

// ReadScalar returns row index of a scalar dataset as a single value.
func ReadScalar[T types.Element](f *File, path string, index int64) (T, error) {
	var zero T

	info, err := f.Info(path)
	if err != nil {
		return zero, err
	}
	if info.Spec.Rank != types.Scalar {
		return zero, errors.NewNotCompatible(path, fmt.Sprintf("%s dataset read as scalar", info.Spec.Rank))
	}

	values, err := Read[T](f, path, index)
	if err != nil {
		return zero, err
	}
	return values[0], nil
}

// encodeValues converts values to little-endian bytes.
func encodeValues[T types.Element](values []T) []byte {
	buf := make([]byte, 0, len(values)*4)
	switch vs := any(values).(type) {
	case []int32:
		for _, v := range vs {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
		}
	case []float32:
		for _, v := range vs {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return buf
}

// decodeValues converts little-endian bytes back to values.
func decodeValues[T types.Element](data []byte) []T {
	out := make([]T, len(data)/4)
	switch vs := any(out).(type) {
	case []int32:
		for i := range vs {
			vs[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
	case []float32:
		for i := range vs {
			vs[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
	}
	return out
}
