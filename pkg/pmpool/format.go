package pmpool

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/google/uuid"
)

// Pool file format constants.
const (
	// Pool metadata signature, NUL padded to 8 bytes.
	poolSignature = "PMEMOBJ\x00"

	// Format major version.
	poolMajor = 1

	// Fixed metadata size; the data region starts here.
	headerSize = 4096

	// MinPoolSize is the smallest pool [Create] accepts, and the smallest
	// file [Open] treats as a pool.
	MinPoolSize = 8 << 20

	// MaxLayoutLen is the size of the on-disk layout field, including the
	// terminating NUL. Layout names must be shorter than this.
	MaxLayoutLen = 1024
)

// Header field offsets (bytes from file start).
const (
	offSignature  = 0x000 // [8]byte
	offMajor      = 0x008 // uint32
	offFlags      = 0x00C // uint32
	offUUID       = 0x010 // [16]byte
	offCreated    = 0x020 // int64, unix nanos
	offPoolSize   = 0x028 // uint64
	offDataOffset = 0x030 // uint64
	offChecksum   = 0x038 // uint32, CRC32C with this field zeroed
	offReserved   = 0x03C // uint32, must be zero
	offLayout     = 0x040 // [MaxLayoutLen]byte
	offTail       = offLayout + MaxLayoutLen
)

// knownFlags is the set of header flags this version understands.
const knownFlags uint32 = 0

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// header is the decoded pool metadata.
type header struct {
	Major      uint32
	Flags      uint32
	UUID       uuid.UUID
	Created    time.Time
	PoolSize   uint64
	DataOffset uint64
	Layout     string
}

// newHeader returns metadata for a fresh pool of the given size.
func newHeader(layout string, size uint64) header {
	return header{
		Major:      poolMajor,
		UUID:       uuid.New(),
		Created:    time.Now(),
		PoolSize:   size,
		DataOffset: headerSize,
		Layout:     layout,
	}
}

// encodeHeader serializes h into a headerSize buffer with its checksum set.
func encodeHeader(h *header) []byte {
	buf := make([]byte, headerSize)

	copy(buf[offSignature:], poolSignature)
	binary.LittleEndian.PutUint32(buf[offMajor:], h.Major)
	binary.LittleEndian.PutUint32(buf[offFlags:], h.Flags)
	copy(buf[offUUID:], h.UUID[:])
	binary.LittleEndian.PutUint64(buf[offCreated:], uint64(h.Created.UnixNano()))
	binary.LittleEndian.PutUint64(buf[offPoolSize:], h.PoolSize)
	binary.LittleEndian.PutUint64(buf[offDataOffset:], h.DataOffset)
	copy(buf[offLayout:offTail-1], h.Layout)

	binary.LittleEndian.PutUint32(buf[offChecksum:], headerChecksum(buf))

	return buf
}

// decodeHeader validates and parses pool metadata.
//
// Possible errors:
//   - [ErrNotPool]: short buffer or bad signature
//   - [ErrCorrupt]: checksum mismatch, bad data offset, unterminated layout
//   - [ErrIncompatible]: unknown major version or flags
func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("metadata is %d bytes, want %d: %w", len(buf), headerSize, ErrNotPool)
	}

	buf = buf[:headerSize]

	if !bytes.Equal(buf[offSignature:offSignature+len(poolSignature)], []byte(poolSignature)) {
		return header{}, fmt.Errorf("invalid signature %q: %w", buf[offSignature:offSignature+len(poolSignature)], ErrNotPool)
	}

	stored := binary.LittleEndian.Uint32(buf[offChecksum:])
	if computed := headerChecksum(buf); stored != computed {
		return header{}, fmt.Errorf("header checksum %#08x, computed %#08x: %w", stored, computed, ErrCorrupt)
	}

	major := binary.LittleEndian.Uint32(buf[offMajor:])
	if major != poolMajor {
		return header{}, fmt.Errorf("unsupported major version %d, expected %d: %w", major, poolMajor, ErrIncompatible)
	}

	flags := binary.LittleEndian.Uint32(buf[offFlags:])
	if flags&^knownFlags != 0 {
		return header{}, fmt.Errorf("unknown flags 0x%08x: %w", flags&^knownFlags, ErrIncompatible)
	}

	if binary.LittleEndian.Uint32(buf[offReserved:]) != 0 || !isZero(buf[offTail:]) {
		return header{}, fmt.Errorf("reserved bytes are non-zero: %w", ErrCorrupt)
	}

	layoutField := buf[offLayout:offTail]

	end := bytes.IndexByte(layoutField, 0)
	if end < 0 {
		return header{}, fmt.Errorf("layout is not NUL terminated: %w", ErrCorrupt)
	}

	if !isZero(layoutField[end:]) {
		return header{}, fmt.Errorf("layout has bytes after terminator: %w", ErrCorrupt)
	}

	h := header{
		Major:      major,
		Flags:      flags,
		Created:    time.Unix(0, int64(binary.LittleEndian.Uint64(buf[offCreated:]))),
		PoolSize:   binary.LittleEndian.Uint64(buf[offPoolSize:]),
		DataOffset: binary.LittleEndian.Uint64(buf[offDataOffset:]),
		Layout:     string(layoutField[:end]),
	}
	copy(h.UUID[:], buf[offUUID:offUUID+16])

	if h.DataOffset != headerSize {
		return header{}, fmt.Errorf("data offset %d != %d: %w", h.DataOffset, headerSize, ErrCorrupt)
	}

	if h.PoolSize < MinPoolSize {
		return header{}, fmt.Errorf("pool size %d below minimum %d: %w", h.PoolSize, MinPoolSize, ErrCorrupt)
	}

	return h, nil
}

// headerChecksum computes CRC32C over buf[:headerSize] with the checksum
// field treated as zero.
func headerChecksum(buf []byte) uint32 {
	var zero [4]byte

	crc := crc32.Update(0, castagnoli, buf[:offChecksum])
	crc = crc32.Update(crc, castagnoli, zero[:])

	return crc32.Update(crc, castagnoli, buf[offChecksum+4:headerSize])
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}

	return true
}

// validateLayout rejects layout names that do not fit the on-disk field.
func validateLayout(layout string) error {
	if len(layout) >= MaxLayoutLen {
		return fmt.Errorf("layout is %d bytes, max %d: %w", len(layout), MaxLayoutLen-1, ErrInvalidInput)
	}

	if bytes.IndexByte([]byte(layout), 0) >= 0 {
		return fmt.Errorf("layout contains NUL: %w", ErrInvalidInput)
	}

	return nil
}
