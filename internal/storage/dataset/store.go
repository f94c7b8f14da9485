package dataset

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/xtxerr/tonestore/config"
	"github.com/xtxerr/tonestore/internal/errors"
	"github.com/xtxerr/tonestore/internal/logging"
	"github.com/xtxerr/tonestore/internal/storage/types"
)

// File is an open store: a single file holding groups of extensible,
// chunked datasets. Records are only ever appended to the file.
//
// A File is not safe for concurrent use. One writer owns it; readers that
// need their own handle open the flushed file with OpenReadOnly.
type File struct {
	path     string
	file     *os.File
	writer   *bufio.Writer
	readOnly bool
	closed   bool

	id uuid.UUID

	// size is the logical end of the file including buffered bytes;
	// visible is how much of it has been handed to the OS.
	size    int64
	visible int64

	groups   map[string]struct{}
	order    []string
	datasets map[string]*dataset
	byID     []*dataset

	opts  Options
	stats Stats
	log   *slog.Logger
}

// Options configures a store file.
type Options struct {
	// BufferSize is the size of the write buffer.
	// Default: 64KB
	BufferSize int
}

// DefaultOptions returns default store options.
func DefaultOptions() Options {
	return Options{
		BufferSize: config.DefaultWriteBufferSize,
	}
}

// Stats holds store statistics.
type Stats struct {
	RecordsWritten int64
	BytesWritten   int64
	ChunksWritten  int64
	RowsAppended   int64
	RowsRead       int64
	Syncs          int64
	TruncatedBytes int64
	Errors         int64
}

// Spec describes the layout of a dataset.
type Spec struct {
	Elem types.Elem
	Rank types.Rank

	// Width is the fixed row width. It is 1 for scalar datasets.
	Width int

	// ChunkRows is the maximum number of rows per chunk record.
	ChunkRows int
}

// Info describes a dataset for callers.
type Info struct {
	Path   string
	Spec   Spec
	Rows   int64
	Chunks int
}

type dataset struct {
	id      uint32
	path    string
	spec    Spec
	rows    int64
	extents []extent
}

// extent locates one chunk record's element data in the file.
type extent struct {
	start  int64
	rows   int64
	offset int64
}

// Create creates a new, empty store file. It fails if path already exists.
func Create(path string, opts Options) (*File, error) {
	opts = opts.withDefaults()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create store %s: %w", path, err)
	}

	s := newFile(path, f, opts, false)
	s.id = uuid.New()

	if _, err := s.writer.Write(encodeHeader(s.id)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write header: %w", err)
	}
	s.size = headerSize

	s.log.Info("store created", "path", path, "id", s.id)
	return s, nil
}

// Open opens an existing store for appending and reading. A torn record at
// the end of the file, left by a crash before Flush, is truncated away.
func Open(path string, opts Options) (*File, error) {
	return open(path, opts.withDefaults(), false)
}

// OpenReadOnly opens an existing store for reading only. A torn tail is
// ignored rather than truncated.
func OpenReadOnly(path string) (*File, error) {
	return open(path, DefaultOptions(), true)
}

func open(path string, opts Options, readOnly bool) (*File, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	s := newFile(path, f, opts, readOnly)
	if err := s.load(); err != nil {
		f.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	if !readOnly {
		if _, err := f.Seek(s.size, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek to end: %w", err)
		}
	}

	s.log.Debug("store opened",
		"path", path,
		"id", s.id,
		"groups", len(s.order),
		"datasets", len(s.byID),
		"read_only", readOnly)
	return s, nil
}

func newFile(path string, f *os.File, opts Options, readOnly bool) *File {
	s := &File{
		path:     path,
		file:     f,
		readOnly: readOnly,
		groups:   make(map[string]struct{}),
		datasets: make(map[string]*dataset),
		opts:     opts,
		log:      logging.Component("dataset"),
	}
	if !readOnly {
		s.writer = bufio.NewWriterSize(f, opts.BufferSize)
	}
	return s
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultOptions().BufferSize
	}
	return o
}

// load scans every record and rebuilds the in-memory index.
func (s *File) load() error {
	r := bufio.NewReaderSize(io.NewSectionReader(s.file, 0, 1<<62), 256*1024)

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("read header: %w", errors.ErrCorruptStore)
	}
	id, err := decodeHeader(header)
	if err != nil {
		return err
	}
	s.id = id

	offset := int64(headerSize)
	for {
		payload, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.tornTail(offset, err)
		}

		if err := s.apply(payload, offset); err != nil {
			return fmt.Errorf("record at offset %d: %w", offset, err)
		}
		offset += int64(recordHeaderSize + len(payload))
	}

	s.size = offset
	s.visible = offset
	return nil
}

// tornTail handles an incomplete or corrupt record at offset. Everything
// before it is kept.
func (s *File) tornTail(offset int64, cause error) error {
	st, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	dropped := st.Size() - offset

	s.log.Warn("discarding torn tail",
		"path", s.path,
		"offset", offset,
		"bytes", dropped,
		"error", cause)

	if !s.readOnly {
		if err := s.file.Truncate(offset); err != nil {
			return fmt.Errorf("truncate torn tail: %w", err)
		}
	}

	s.stats.TruncatedBytes += dropped
	s.size = offset
	s.visible = offset
	return nil
}

// readRecord reads the next framed record. It returns io.EOF only at a
// clean record boundary.
func readRecord(r io.Reader) ([]byte, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read record header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	expectedCRC := binary.LittleEndian.Uint32(header[4:8])

	if length == 0 || length > config.MaxRecordSize {
		return nil, fmt.Errorf("bad record length: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	if actual := crc32.ChecksumIEEE(payload); actual != expectedCRC {
		return nil, fmt.Errorf("CRC mismatch: expected %x, got %x", expectedCRC, actual)
	}
	return payload, nil
}

// apply adds one checksummed record to the index. Failures here mean the
// writer produced something this reader cannot understand.
func (s *File) apply(payload []byte, offset int64) error {
	switch kind := recordKind(payload[0]); kind {
	case kindGroup:
		name, err := decodeGroup(payload)
		if err != nil {
			return fmt.Errorf("group: %v: %w", err, errors.ErrCorruptStore)
		}
		s.addGroup(name)

	case kindDataset:
		d, err := decodeDescriptor(payload)
		if err != nil {
			return fmt.Errorf("dataset: %v: %w", err, errors.ErrCorruptStore)
		}
		if _, ok := s.groups[d.group]; !ok {
			return fmt.Errorf("dataset %s/%s before its group: %w", d.group, d.name, errors.ErrCorruptStore)
		}
		if err := d.spec.validate(); err != nil {
			return fmt.Errorf("dataset %s/%s: %v: %w", d.group, d.name, err, errors.ErrCorruptStore)
		}
		s.addDataset(d.group+"/"+d.name, d.spec)

	case kindChunk:
		id, start, rows, err := decodeChunkHeader(payload)
		if err != nil {
			return fmt.Errorf("chunk: %v: %w", err, errors.ErrCorruptStore)
		}
		if int(id) >= len(s.byID) {
			return fmt.Errorf("chunk for unknown dataset id %d: %w", id, errors.ErrCorruptStore)
		}
		ds := s.byID[id]
		if start != ds.rows {
			return fmt.Errorf("chunk for %s starts at row %d, expected %d: %w", ds.path, start, ds.rows, errors.ErrCorruptStore)
		}
		if want := rows * ds.spec.Width * ds.spec.Elem.Size(); len(payload)-chunkHeaderSize != want {
			return fmt.Errorf("chunk for %s holds %d bytes, expected %d: %w", ds.path, len(payload)-chunkHeaderSize, want, errors.ErrCorruptStore)
		}
		ds.addExtent(rows, offset+recordHeaderSize+chunkHeaderSize)

	default:
		return fmt.Errorf("unknown record %s: %w", kind, errors.ErrCorruptStore)
	}
	return nil
}

func (s *File) addGroup(name string) {
	s.groups[name] = struct{}{}
	s.order = append(s.order, name)
}

func (s *File) addDataset(path string, spec Spec) *dataset {
	ds := &dataset{
		id:   uint32(len(s.byID)),
		path: path,
		spec: spec,
	}
	s.datasets[path] = ds
	s.byID = append(s.byID, ds)
	return ds
}

func (ds *dataset) addExtent(rows int, offset int64) {
	ds.extents = append(ds.extents, extent{
		start:  ds.rows,
		rows:   int64(rows),
		offset: offset,
	})
	ds.rows += int64(rows)
}

// =============================================================================
// Schema operations
// =============================================================================

// CreateGroup adds a top-level group.
func (s *File) CreateGroup(name string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("group name %q: %w", name, errors.ErrInvalidInput)
	}
	if _, ok := s.groups[name]; ok {
		return fmt.Errorf("group '%s': %w", name, errors.ErrGroupAlreadyExists)
	}

	if err := s.writePayload(encodeGroup(name)); err != nil {
		return fmt.Errorf("create group %s: %w", name, err)
	}
	s.addGroup(name)
	return nil
}

// CreateDataset adds an empty dataset at "group/name". The row dimension
// is unbounded; the width is fixed here and never changes.
func (s *File) CreateDataset(path string, spec Spec) error {
	if err := s.writable(); err != nil {
		return err
	}

	group, name, ok := strings.Cut(path, "/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("dataset path %q: %w", path, errors.ErrInvalidInput)
	}
	if _, ok := s.groups[group]; !ok {
		return fmt.Errorf("group '%s': %w", group, errors.ErrGroupNotFound)
	}
	if _, ok := s.datasets[path]; ok {
		return fmt.Errorf("dataset '%s': %w", path, errors.ErrDatasetAlreadyExists)
	}

	if spec.Rank == types.Scalar && spec.Width == 0 {
		spec.Width = 1
	}
	if err := spec.validate(); err != nil {
		return fmt.Errorf("dataset %s: %v: %w", path, err, errors.ErrInvalidInput)
	}

	d := descriptor{group: group, name: name, spec: spec}
	if err := s.writePayload(encodeDescriptor(d)); err != nil {
		return fmt.Errorf("create dataset %s: %w", path, err)
	}
	s.addDataset(path, spec)
	return nil
}

func (sp Spec) validate() error {
	if !sp.Elem.Valid() {
		return fmt.Errorf("element type %s", sp.Elem)
	}
	switch sp.Rank {
	case types.Scalar:
		if sp.Width != 1 {
			return fmt.Errorf("scalar width %d", sp.Width)
		}
	case types.Vector:
		if sp.Width <= 0 {
			return fmt.Errorf("vector width %d", sp.Width)
		}
	default:
		return fmt.Errorf("rank %s", sp.Rank)
	}
	if sp.ChunkRows <= 0 {
		return fmt.Errorf("chunk rows %d", sp.ChunkRows)
	}
	if chunkHeaderSize+sp.ChunkRows*sp.Width*sp.Elem.Size() > config.MaxRecordSize {
		return fmt.Errorf("chunk of %d rows exceeds the record size limit", sp.ChunkRows)
	}
	return nil
}

// =============================================================================
// Append / Read primitives
// =============================================================================

// prepareAppend checks that a batch of n values with the given shape can be
// appended to path as elem. It returns the dataset and row count.
func (s *File) prepareAppend(path string, elem types.Elem, n int, shape Shape) (*dataset, int, error) {
	if err := s.writable(); err != nil {
		return nil, 0, err
	}

	ds, err := s.lookup(path, elem)
	if err != nil {
		return nil, 0, err
	}

	if len(shape) != int(ds.spec.Rank) {
		return nil, 0, errors.NewNotCompatible(path, fmt.Sprintf("%s dataset, batch shape has %d dimensions", ds.spec.Rank, len(shape)))
	}

	rows := shape[0]
	if rows < 0 {
		return nil, 0, errors.NewShapeMismatch(path, 0, n)
	}

	width := 1
	if ds.spec.Rank == types.Vector {
		width = shape[1]
		if width != ds.spec.Width {
			return nil, 0, errors.NewWidthMismatch(path, ds.spec.Width, width)
		}
	}

	if want := rows * width; n != want {
		return nil, 0, errors.NewShapeMismatch(path, want, n)
	}
	return ds, rows, nil
}

// writeRows appends encoded rows to ds, one chunk record per ChunkRows rows.
func (s *File) writeRows(ds *dataset, rows int, data []byte) error {
	rowBytes := ds.spec.Width * ds.spec.Elem.Size()

	for done := 0; done < rows; {
		n := min(ds.spec.ChunkRows, rows-done)
		chunk := data[done*rowBytes : (done+n)*rowBytes]

		payload := encodeChunkHeader(ds.id, ds.rows, n)
		payload = append(payload, chunk...)

		offset := s.size
		if err := s.writePayload(payload); err != nil {
			return fmt.Errorf("append %s at row %d: %w", ds.path, ds.rows, err)
		}
		ds.addExtent(n, offset+recordHeaderSize+chunkHeaderSize)

		s.stats.ChunksWritten++
		s.stats.RowsAppended += int64(n)
		done += n
	}
	return nil
}

// readRows returns the encoded bytes of rows [start, start+count) of ds.
func (s *File) readRows(ds *dataset, start, count int64) ([]byte, error) {
	if start < 0 || start > ds.rows || count < 0 || count > ds.rows-start {
		return nil, errors.NewIndexOutOfRange(ds.path, start, ds.rows)
	}

	rowBytes := int64(ds.spec.Width * ds.spec.Elem.Size())
	out := make([]byte, count*rowBytes)
	if count == 0 {
		return out, nil
	}

	i := sort.Search(len(ds.extents), func(i int) bool {
		e := ds.extents[i]
		return e.start+e.rows > start
	})

	end := start + count
	pos := int64(0)
	for ; i < len(ds.extents) && pos < int64(len(out)); i++ {
		e := ds.extents[i]
		from := max(start, e.start)
		to := min(end, e.start+e.rows)

		off := e.offset + (from-e.start)*rowBytes
		n := (to - from) * rowBytes
		if err := s.ensureVisible(off + n); err != nil {
			return nil, err
		}
		if _, err := s.file.ReadAt(out[pos:pos+n], off); err != nil {
			s.stats.Errors++
			return nil, fmt.Errorf("read %s rows %d-%d: %w", ds.path, from, to, err)
		}
		pos += n
	}

	s.stats.RowsRead += count
	return out, nil
}

// ensureVisible hands buffered bytes to the OS when a read reaches past
// what the file already holds. It does not sync.
func (s *File) ensureVisible(end int64) error {
	if end <= s.visible || s.writer == nil {
		return nil
	}
	if err := s.writer.Flush(); err != nil {
		s.stats.Errors++
		return fmt.Errorf("flush buffer: %w", err)
	}
	s.visible = s.size
	return nil
}

// lookup finds path and checks its element type.
func (s *File) lookup(path string, elem types.Elem) (*dataset, error) {
	ds, ok := s.datasets[path]
	if !ok {
		return nil, errors.NewDatasetNotFound(path)
	}
	if ds.spec.Elem != elem {
		return nil, errors.NewNotCompatible(path, fmt.Sprintf("stored %s, requested %s", ds.spec.Elem, elem))
	}
	return ds, nil
}

func (s *File) writePayload(payload []byte) error {
	n, err := writeRecord(s.writer, payload)
	if err != nil {
		s.stats.Errors++
		return err
	}
	s.size += int64(n)
	s.stats.RecordsWritten++
	s.stats.BytesWritten += int64(n)
	return nil
}

func (s *File) writable() error {
	if s.closed {
		return errors.ErrStoreClosed
	}
	if s.readOnly {
		return errors.ErrReadOnly
	}
	return nil
}

// =============================================================================
// Durability
// =============================================================================

// Flush writes all buffered records and syncs the file to stable storage.
// It may be called any number of times; a read-only store has nothing to flush.
func (s *File) Flush() error {
	if s.closed {
		return errors.ErrStoreClosed
	}
	if s.readOnly {
		return nil
	}

	if err := s.writer.Flush(); err != nil {
		s.stats.Errors++
		return fmt.Errorf("flush buffer: %w", err)
	}
	s.visible = s.size

	if err := s.file.Sync(); err != nil {
		s.stats.Errors++
		return fmt.Errorf("sync: %w", err)
	}

	s.stats.Syncs++
	s.log.Debug("store flushed", "path", s.path, "bytes", s.size)
	return nil
}

// Close flushes and closes the store. Closing twice is a no-op.
func (s *File) Close() error {
	if s.closed {
		return nil
	}

	var flushErr error
	if !s.readOnly {
		flushErr = s.Flush()
	}
	s.closed = true

	if err := s.file.Close(); err != nil {
		return err
	}
	return flushErr
}

// =============================================================================
// Introspection
// =============================================================================

// ID returns the store's UUID, assigned at creation.
func (s *File) ID() uuid.UUID {
	return s.id
}

// Path returns the file path.
func (s *File) Path() string {
	return s.path
}

// ReadOnly reports whether the store was opened with OpenReadOnly.
func (s *File) ReadOnly() bool {
	return s.readOnly
}

// Size returns the logical file size including buffered records.
func (s *File) Size() int64 {
	return s.size
}

// Groups returns group names in creation order.
func (s *File) Groups() []string {
	return append([]string(nil), s.order...)
}

// Has reports whether a dataset exists at path.
func (s *File) Has(path string) bool {
	_, ok := s.datasets[path]
	return ok
}

// Info returns the description of the dataset at path.
func (s *File) Info(path string) (Info, error) {
	ds, ok := s.datasets[path]
	if !ok {
		return Info{}, errors.NewDatasetNotFound(path)
	}
	return ds.info(), nil
}

// Rows returns the number of rows in the dataset at path.
func (s *File) Rows(path string) (int64, error) {
	ds, ok := s.datasets[path]
	if !ok {
		return 0, errors.NewDatasetNotFound(path)
	}
	return ds.rows, nil
}

// Datasets returns every dataset in creation order.
func (s *File) Datasets() []Info {
	infos := make([]Info, len(s.byID))
	for i, ds := range s.byID {
		infos[i] = ds.info()
	}
	return infos
}

// Stats returns store statistics.
func (s *File) Stats() Stats {
	return s.stats
}

func (ds *dataset) info() Info {
	return Info{
		Path:   ds.path,
		Spec:   ds.spec,
		Rows:   ds.rows,
		Chunks: len(ds.extents),
	}
}
