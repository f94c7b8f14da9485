package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/tonestore/internal/storage/types"
)

func newTestFile(t *testing.T) (*File, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.tone")
	f, err := Create(path, DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	require.NoError(t, f.CreateGroup("events"))
	require.NoError(t, f.CreateGroup("features"))
	require.NoError(t, f.CreateDataset("events/start", Spec{Elem: types.ElemInt32, Rank: types.Scalar, ChunkRows: 3}))
	require.NoError(t, f.CreateDataset("events/velocity", Spec{Elem: types.ElemFloat32, Rank: types.Scalar, ChunkRows: 3}))
	require.NoError(t, f.CreateDataset("features/spectrum", Spec{Elem: types.ElemFloat32, Rank: types.Vector, Width: 4, ChunkRows: 2}))
	return f, path
}

func TestCreateSchema(t *testing.T) {
	f, _ := newTestFile(t)

	assert.Equal(t, []string{"events", "features"}, f.Groups())
	assert.True(t, f.Has("events/start"))
	assert.False(t, f.Has("events/missing"))

	info, err := f.Info("events/start")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Spec.Width, "scalar width defaults to 1")
	assert.Equal(t, int64(0), info.Rows)

	datasets := f.Datasets()
	require.Len(t, datasets, 3)
	assert.Equal(t, "features/spectrum", datasets[2].Path)

	assert.NotEqual(t, uuid.Nil, f.ID())
}

func TestCreateSchemaErrors(t *testing.T) {
	f, _ := newTestFile(t)

	assert.ErrorIs(t, f.CreateGroup("events"), ErrGroupExists)
	assert.Error(t, f.CreateGroup("a/b"))
	assert.ErrorIs(t, f.CreateDataset("labels/onset", Spec{Elem: types.ElemFloat32, Rank: types.Scalar, ChunkRows: 1}), ErrGroupMissing)
	assert.ErrorIs(t, f.CreateDataset("events/start", Spec{Elem: types.ElemInt32, Rank: types.Scalar, ChunkRows: 1}), ErrDatasetExists)
	assert.Error(t, f.CreateDataset("events/bad", Spec{Elem: types.ElemInt32, Rank: types.Vector, Width: 0, ChunkRows: 1}))
	assert.Error(t, f.CreateDataset("events/bad", Spec{Elem: types.ElemInvalid, Rank: types.Scalar, ChunkRows: 1}))
	assert.Error(t, f.CreateDataset("events/bad", Spec{Elem: types.ElemInt32, Rank: types.Scalar, ChunkRows: 0}))
	assert.Error(t, f.CreateDataset("nogroup", Spec{Elem: types.ElemInt32, Rank: types.Scalar, ChunkRows: 1}))
}

func TestAppendAndReadScalar(t *testing.T) {
	f, _ := newTestFile(t)

	starts := []int32{0, 480, 960, 1440, 1920, 2400, 2880}
	require.NoError(t, Append(f, "events/start", starts, Rows(len(starts))))

	rows, err := f.Rows("events/start")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rows)

	info, _ := f.Info("events/start")
	assert.Equal(t, 3, info.Chunks, "7 rows at 3 rows per chunk")

	for i, want := range starts {
		got, err := ReadScalar[int32](f, "events/start", int64(i))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Range across chunk boundaries
	got, err := ReadRange[int32](f, "events/start", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, starts[2:6], got)

	// Second batch continues at the previous end
	require.NoError(t, Append(f, "events/start", []int32{3360}, Rows(1)))
	got, err = Read[int32](f, "events/start", 7)
	require.NoError(t, err)
	assert.Equal(t, []int32{3360}, got)
}

func TestAppendAndReadVector(t *testing.T) {
	f, _ := newTestFile(t)

	values := []float32{
		0.1, 0.2, 0.3, 0.4,
		1.1, 1.2, 1.3, 1.4,
		2.1, 2.2, 2.3, 2.4,
	}
	require.NoError(t, Append(f, "features/spectrum", values, Matrix(3, 4)))

	row, err := Read[float32](f, "features/spectrum", 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.1, 1.2, 1.3, 1.4}, row)

	all, err := ReadRange[float32](f, "features/spectrum", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, values, all)

	_, err = ReadScalar[float32](f, "features/spectrum", 0)
	assert.ErrorIs(t, err, ErrDatasetNotCompatible)
}

func TestAppendErrors(t *testing.T) {
	f, _ := newTestFile(t)
	require.NoError(t, Append(f, "features/spectrum", make([]float32, 8), Matrix(2, 4)))

	tests := []struct {
		name   string
		append func() error
		target error
	}{
		{"missing dataset", func() error {
			return Append(f, "events/missing", []int32{1}, Rows(1))
		}, ErrDatasetNotFound},
		{"missing dataset empty batch", func() error {
			return Append(f, "events/missing", []int32{}, Rows(0))
		}, ErrDatasetNotFound},
		{"element type", func() error {
			return Append(f, "events/start", []float32{1}, Rows(1))
		}, ErrDatasetNotCompatible},
		{"rank", func() error {
			return Append(f, "features/spectrum", make([]float32, 4), Rows(1))
		}, ErrDatasetNotCompatible},
		{"width", func() error {
			return Append(f, "features/spectrum", make([]float32, 2), Matrix(1, 2))
		}, ErrWidthMismatch},
		{"too few values", func() error {
			return Append(f, "events/start", []int32{1, 2}, Rows(3))
		}, ErrShapeMismatch},
		{"too many values", func() error {
			return Append(f, "features/spectrum", make([]float32, 9), Matrix(2, 4))
		}, ErrShapeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.append(), tt.target)
		})
	}

	// Nothing above changed the datasets
	rows, _ := f.Rows("features/spectrum")
	assert.Equal(t, int64(2), rows)
	rows, _ = f.Rows("events/start")
	assert.Equal(t, int64(0), rows)
}

func TestReadErrors(t *testing.T) {
	f, _ := newTestFile(t)
	require.NoError(t, Append(f, "events/start", []int32{5}, Rows(1)))

	_, err := Read[int32](f, "events/missing", 0)
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	_, err = Read[float32](f, "events/start", 0)
	assert.ErrorIs(t, err, ErrDatasetNotCompatible)

	_, err = Read[int32](f, "events/start", 1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = Read[int32](f, "events/start", -1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestReadRangeBounds(t *testing.T) {
	f, _ := newTestFile(t)
	require.NoError(t, Append(f, "events/start", []int32{1, 2, 3, 4}, Rows(4)))

	tests := []struct {
		name         string
		start, count int64
		ok           bool
	}{
		{"whole", 0, 4, true},
		{"tail", 3, 1, true},
		{"empty at end", 4, 0, true},
		{"past end", 3, 2, false},
		{"start past end", 5, 0, false},
		{"negative count", 0, -1, false},
		{"huge count", 1, math.MaxInt64, false},
		{"huge start", math.MaxInt64, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := ReadRange[int32](f, "events/start", tt.start, tt.count)
			if tt.ok {
				require.NoError(t, err)
				assert.Len(t, values, int(tt.count))
				return
			}
			assert.ErrorIs(t, err, ErrIndexOutOfRange)
		})
	}
}

func TestEmptyAppendIsNoop(t *testing.T) {
	f, _ := newTestFile(t)
	before := f.Stats().RecordsWritten

	require.NoError(t, Append(f, "events/start", []int32{}, Rows(0)))
	require.NoError(t, Append(f, "features/spectrum", []float32{}, Matrix(0, 4)))

	assert.Equal(t, before, f.Stats().RecordsWritten)
	rows, _ := f.Rows("events/start")
	assert.Equal(t, int64(0), rows)
}

func TestFlushIdempotent(t *testing.T) {
	for _, flushes := range []int{0, 1, 5} {
		f, path := newTestFile(t)
		require.NoError(t, Append(f, "events/velocity", []float32{0.25, 0.5, 0.75}, Rows(3)))

		for range flushes {
			require.NoError(t, f.Flush())
		}

		got, err := ReadRange[float32](f, "events/velocity", 0, 3)
		require.NoError(t, err)
		assert.Equal(t, []float32{0.25, 0.5, 0.75}, got, "flushes=%d", flushes)

		require.NoError(t, f.Close())

		reopened, err := OpenReadOnly(path)
		require.NoError(t, err)
		got, err = ReadRange[float32](reopened, "events/velocity", 0, 3)
		require.NoError(t, err)
		assert.Equal(t, []float32{0.25, 0.5, 0.75}, got, "flushes=%d", flushes)
		require.NoError(t, reopened.Close())
	}
}

func TestReopenAndContinue(t *testing.T) {
	f, path := newTestFile(t)
	id := f.ID()

	require.NoError(t, Append(f, "events/start", []int32{1, 2, 3, 4}, Rows(4)))
	require.NoError(t, Append(f, "features/spectrum", []float32{1, 2, 3, 4}, Matrix(1, 4)))
	require.NoError(t, f.Close())
	require.NoError(t, f.Close(), "second close is a no-op")

	f, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, id, f.ID())
	assert.Equal(t, []string{"events", "features"}, f.Groups())

	info, err := f.Info("features/spectrum")
	require.NoError(t, err)
	assert.Equal(t, 4, info.Spec.Width, "width survives reopen")

	require.NoError(t, Append(f, "events/start", []int32{5}, Rows(1)))
	got, err := ReadRange[int32](f, "events/start", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, got)

	assert.ErrorIs(t, Append(f, "features/spectrum", []float32{1, 2}, Matrix(1, 2)), ErrWidthMismatch)
}

func TestTornTailIsTruncated(t *testing.T) {
	f, path := newTestFile(t)
	require.NoError(t, Append(f, "events/start", []int32{10, 20, 30}, Rows(3)))
	require.NoError(t, f.Close())

	st, err := os.Stat(path)
	require.NoError(t, err)
	good := st.Size()

	// Simulate a crash in the middle of writing a record
	out, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = out.Write([]byte{40, 0, 0, 0, 0xde, 0xad, 0xbe, 0xef, 3, 0})
	require.NoError(t, err)
	require.NoError(t, out.Close())

	f, err = Open(path, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, int64(10), f.Stats().TruncatedBytes)
	got, err := ReadRange[int32](f, "events/start", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20, 30}, got)

	require.NoError(t, Append(f, "events/start", []int32{40}, Rows(1)))
	require.NoError(t, f.Close())

	st, err = os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), good)

	f, err = OpenReadOnly(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(0), f.Stats().TruncatedBytes)
	got, err = ReadRange[int32](f, "events/start", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20, 30, 40}, got)
}

func TestOpenRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.tone")
	require.NoError(t, os.WriteFile(path, []byte("this is not a store file at all"), 0644))

	_, err := Open(path, DefaultOptions())
	assert.ErrorIs(t, err, ErrCorruptStore)

	_, err = Open(filepath.Join(t.TempDir(), "missing.tone"), DefaultOptions())
	assert.Error(t, err)
}

func TestCreateRefusesExisting(t *testing.T) {
	_, path := newTestFile(t)
	_, err := Create(path, DefaultOptions())
	assert.Error(t, err)
}

func TestReadOnlyAndClosed(t *testing.T) {
	f, path := newTestFile(t)
	require.NoError(t, f.Close())

	assert.ErrorIs(t, Append(f, "events/start", []int32{1}, Rows(1)), ErrStoreClosed)
	assert.ErrorIs(t, f.Flush(), ErrStoreClosed)
	_, err := Read[int32](f, "events/start", 0)
	assert.ErrorIs(t, err, ErrStoreClosed)

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()

	assert.True(t, ro.ReadOnly())
	assert.ErrorIs(t, Append(ro, "events/start", []int32{1}, Rows(1)), ErrReadOnly)
	assert.ErrorIs(t, ro.CreateGroup("labels"), ErrReadOnly)
	assert.NoError(t, ro.Flush())
}

func TestStats(t *testing.T) {
	f, _ := newTestFile(t)
	require.NoError(t, Append(f, "events/start", []int32{1, 2, 3, 4, 5}, Rows(5)))
	_, err := ReadRange[int32](f, "events/start", 0, 5)
	require.NoError(t, err)
	require.NoError(t, f.Flush())

	st := f.Stats()
	assert.Equal(t, int64(2), st.ChunksWritten)
	assert.Equal(t, int64(5), st.RowsAppended)
	assert.Equal(t, int64(5), st.RowsRead)
	assert.Equal(t, int64(1), st.Syncs)
	assert.Equal(t, f.Size(), st.BytesWritten+headerSize)
}
