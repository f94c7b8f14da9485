package dataset

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xtxerr/tonestore/internal/storage/types"
)

func TestHeader(t *testing.T) {
	id := uuid.New()
	header := encodeHeader(id)
	require.Len(t, header, headerSize)

	got, err := decodeHeader(header)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	bad := append([]byte(nil), header...)
	bad[0] ^= 0xff
	_, err = decodeHeader(bad)
	assert.ErrorIs(t, err, ErrCorruptStore)

	newer := append([]byte(nil), header...)
	binary.LittleEndian.PutUint32(newer[8:12], storeVersion+1)
	_, err = decodeHeader(newer)
	assert.ErrorIs(t, err, ErrUnsupportedStore)

	_, err = decodeHeader(header[:10])
	assert.ErrorIs(t, err, ErrCorruptStore)
}

func TestRecordFraming(t *testing.T) {
	var buf bytes.Buffer

	n, err := writeRecord(&buf, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, recordHeaderSize+5, n)
	_, err = writeRecord(&buf, []byte("second"))
	require.NoError(t, err)

	r := bytes.NewReader(buf.Bytes())
	p, err := readRecord(r)
	require.NoError(t, err)
	assert.Equal(t, "first", string(p))
	p, err = readRecord(r)
	require.NoError(t, err)
	assert.Equal(t, "second", string(p))
	_, err = readRecord(r)
	assert.Equal(t, io.EOF, err)
}

func TestRecordCorruption(t *testing.T) {
	var buf bytes.Buffer
	_, err := writeRecord(&buf, []byte("payload"))
	require.NoError(t, err)
	data := buf.Bytes()

	t.Run("flipped payload byte", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[len(bad)-1] ^= 0x01
		_, err := readRecord(bytes.NewReader(bad))
		assert.Error(t, err)
		assert.NotEqual(t, io.EOF, err)
	})

	t.Run("short payload", func(t *testing.T) {
		_, err := readRecord(bytes.NewReader(data[:len(data)-2]))
		assert.Error(t, err)
		assert.NotEqual(t, io.EOF, err)
	})

	t.Run("short header", func(t *testing.T) {
		_, err := readRecord(bytes.NewReader(data[:3]))
		assert.Error(t, err)
		assert.NotEqual(t, io.EOF, err)
	})

	t.Run("zero length", func(t *testing.T) {
		_, err := readRecord(bytes.NewReader(make([]byte, recordHeaderSize)))
		assert.Error(t, err)
	})
}

func TestGroupRecord(t *testing.T) {
	payload := encodeGroup("features")
	assert.Equal(t, byte(kindGroup), payload[0])

	name, err := decodeGroup(payload)
	require.NoError(t, err)
	assert.Equal(t, "features", name)

	_, err = decodeGroup(payload[:4])
	assert.Error(t, err)
}

func TestDescriptorRoundTrip(t *testing.T) {
	d := descriptor{
		group: "features",
		name:  "spectrum",
		spec: Spec{
			Elem:      types.ElemFloat32,
			Rank:      types.Vector,
			Width:     512,
			ChunkRows: 1024,
		},
	}

	got, err := decodeDescriptor(encodeDescriptor(d))
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDescriptorSkipsUnknownFields(t *testing.T) {
	d := descriptor{
		group: "events",
		name:  "note",
		spec:  Spec{Elem: types.ElemInt32, Rank: types.Scalar, Width: 1, ChunkRows: 64},
	}

	payload := encodeDescriptor(d)
	payload = protowire.AppendTag(payload, 42, protowire.BytesType)
	payload = protowire.AppendString(payload, "added later")
	payload = protowire.AppendTag(payload, 43, protowire.Fixed64Type)
	payload = protowire.AppendFixed64(payload, 7)
	payload = protowire.AppendTag(payload, 44, protowire.VarintType)
	payload = protowire.AppendVarint(payload, 9)

	got, err := decodeDescriptor(payload)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = decodeDescriptor(payload[:len(payload)-1])
	assert.Error(t, err)
}

func TestChunkHeader(t *testing.T) {
	payload := encodeChunkHeader(7, 1<<33, 1024)
	require.Len(t, payload, chunkHeaderSize)
	assert.Equal(t, byte(kindChunk), payload[0])

	id, start, rows, err := decodeChunkHeader(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), id)
	assert.Equal(t, int64(1<<33), start)
	assert.Equal(t, 1024, rows)

	_, _, _, err = decodeChunkHeader(payload[:5])
	assert.Error(t, err)
}

func TestRecordKindString(t *testing.T) {
	assert.Equal(t, "group", kindGroup.String())
	assert.Equal(t, "dataset", kindDataset.String())
	assert.Equal(t, "chunk", kindChunk.String())
	assert.Equal(t, "kind(9)", recordKind(9).String())
}
