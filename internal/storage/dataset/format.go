package dataset

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xtxerr/tonestore/internal/errors"
	"github.com/xtxerr/tonestore/internal/storage/types"
)

// Store file format (binary, little-endian):
//
//	Header: 8 bytes magic + 4 bytes version + 16 bytes store UUID
//	Records: [4 bytes length][4 bytes crc32][payload]
//
// The first payload byte is the record kind:
//
//	group:   kind + name length (2 bytes) + name
//	dataset: kind + protobuf wire descriptor (see encodeDescriptor)
//	chunk:   kind + dataset id (4 bytes) + start row (8 bytes)
//	         + row count (4 bytes) + element data
const (
	storeMagic       = 0x544F4E4553540001 // "TONEST" + format 1
	storeVersion     = 1
	headerSize       = 28 // 8 bytes magic + 4 bytes version + 16 bytes uuid
	recordHeaderSize = 8  // 4 bytes length + 4 bytes crc
	chunkHeaderSize  = 1 + 4 + 8 + 4
)

type recordKind byte

const (
	kindGroup   recordKind = 1
	kindDataset recordKind = 2
	kindChunk   recordKind = 3
)

func (k recordKind) String() string {
	switch k {
	case kindGroup:
		return "group"
	case kindDataset:
		return "dataset"
	case kindChunk:
		return "chunk"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Descriptor field numbers.
const (
	fieldGroup     protowire.Number = 1
	fieldName      protowire.Number = 2
	fieldElem      protowire.Number = 3
	fieldRank      protowire.Number = 4
	fieldWidth     protowire.Number = 5
	fieldChunkRows protowire.Number = 6
)

// encodeHeader builds the fixed file header.
func encodeHeader(id uuid.UUID) []byte {
	buf := make([]byte, 0, headerSize)
	buf = binary.LittleEndian.AppendUint64(buf, storeMagic)
	buf = binary.LittleEndian.AppendUint32(buf, storeVersion)
	return append(buf, id[:]...)
}

// decodeHeader validates the file header and returns the store UUID.
func decodeHeader(header []byte) (uuid.UUID, error) {
	if len(header) < headerSize {
		return uuid.Nil, fmt.Errorf("header too short: %w", errors.ErrCorruptStore)
	}

	magic := binary.LittleEndian.Uint64(header[0:8])
	if magic != storeMagic {
		return uuid.Nil, fmt.Errorf("invalid magic: expected %x, got %x: %w", uint64(storeMagic), magic, errors.ErrCorruptStore)
	}

	version := binary.LittleEndian.Uint32(header[8:12])
	if version != storeVersion {
		return uuid.Nil, fmt.Errorf("version %d: %w", version, errors.ErrUnsupportedStore)
	}

	id, err := uuid.FromBytes(header[12:28])
	if err != nil {
		return uuid.Nil, fmt.Errorf("store id: %w", errors.ErrCorruptStore)
	}
	return id, nil
}

// writeRecord frames payload with its length and checksum.
func writeRecord(w io.Writer, payload []byte) (int, error) {
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))

	if _, err := w.Write(header[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(payload); err != nil {
		return recordHeaderSize, err
	}
	return recordHeaderSize + len(payload), nil
}

func encodeGroup(name string) []byte {
	buf := make([]byte, 0, 3+len(name))
	buf = append(buf, byte(kindGroup))
	return appendString(buf, name)
}

func decodeGroup(payload []byte) (string, error) {
	name, _, err := readString(payload, 1)
	return name, err
}

// descriptor is the persisted definition of a dataset.
type descriptor struct {
	group string
	name  string
	spec  Spec
}

// encodeDescriptor writes the dataset definition as a protobuf message so
// new fields can be added without breaking older readers.
func encodeDescriptor(d descriptor) []byte {
	buf := []byte{byte(kindDataset)}
	buf = protowire.AppendTag(buf, fieldGroup, protowire.BytesType)
	buf = protowire.AppendString(buf, d.group)
	buf = protowire.AppendTag(buf, fieldName, protowire.BytesType)
	buf = protowire.AppendString(buf, d.name)
	buf = protowire.AppendTag(buf, fieldElem, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(d.spec.Elem))
	buf = protowire.AppendTag(buf, fieldRank, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(d.spec.Rank))
	buf = protowire.AppendTag(buf, fieldWidth, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(d.spec.Width))
	buf = protowire.AppendTag(buf, fieldChunkRows, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(d.spec.ChunkRows))
	return buf
}

func decodeDescriptor(payload []byte) (descriptor, error) {
	var d descriptor
	b := payload[1:]

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, fmt.Errorf("descriptor tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldGroup && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return d, fmt.Errorf("descriptor group: %w", protowire.ParseError(n))
			}
			d.group = v
			b = b[n:]
		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return d, fmt.Errorf("descriptor name: %w", protowire.ParseError(n))
			}
			d.name = v
			b = b[n:]
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, fmt.Errorf("descriptor field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case fieldElem:
				d.spec.Elem = types.Elem(v)
			case fieldRank:
				d.spec.Rank = types.Rank(v)
			case fieldWidth:
				d.spec.Width = int(v)
			case fieldChunkRows:
				d.spec.ChunkRows = int(v)
			}
			b = b[n:]
		default:
			// Unknown field from a newer writer
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, fmt.Errorf("descriptor field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	return d, nil
}

// encodeChunkHeader builds the fixed prefix of a chunk record. The element
// data follows it in the same payload.
func encodeChunkHeader(id uint32, start int64, rows int) []byte {
	buf := make([]byte, 0, chunkHeaderSize)
	buf = append(buf, byte(kindChunk))
	buf = binary.LittleEndian.AppendUint32(buf, id)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(start))
	return binary.LittleEndian.AppendUint32(buf, uint32(rows))
}

func decodeChunkHeader(payload []byte) (id uint32, start int64, rows int, err error) {
	if len(payload) < chunkHeaderSize {
		return 0, 0, 0, fmt.Errorf("chunk header too short")
	}
	id = binary.LittleEndian.Uint32(payload[1:5])
	start = int64(binary.LittleEndian.Uint64(payload[5:13]))
	rows = int(binary.LittleEndian.Uint32(payload[13:17]))
	return id, start, rows, nil
}

// appendString appends a length-prefixed string to the buffer.
func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// readString reads a length-prefixed string from the buffer.
func readString(data []byte, offset int) (string, int, error) {
	if offset+2 > len(data) {
		return "", offset, fmt.Errorf("data too short for string length")
	}

	length := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2

	if offset+length > len(data) {
		return "", offset, fmt.Errorf("data too short for string content")
	}

	s := string(data[offset : offset+length])
	return s, offset + length, nil
}
