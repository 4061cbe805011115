// TicKV object codec: the physical {version, flags, length, hashed_key,
// value, checksum} layout plus the Tock-layer sub-header wrapped
// inside the value, per spec 3's "TicKV region" data model entry.
// Grounded on the same length-prefixed, checksum-trailed record shape
// apache-mynewt-newt's artifact/image.ImageTlv uses for TLVs, adapted
// to TicKV's fixed header fields and trailing (rather than absent)
// checksum.
package tickv

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/tock/tockloader/errs"
)

// objectHeaderSize is version(1) + flags(1) + length(2) + hashed_key(8).
const objectHeaderSize = 1 + 1 + 2 + 8

// checksumSize is the trailing CRC-32 width.
const checksumSize = 4

// minObjectSize is the smallest possible encoded object: header plus
// checksum, zero-length value.
const minObjectSize = objectHeaderSize + checksumSize

const objectVersion = 1

// flagValid marks a live (not-yet-invalidated) object.
const flagValid = 1 << 0

// Object is one decoded TicKV record.
type Object struct {
	Version   uint8
	Valid     bool
	HashedKey uint64
	Value     []byte
}

// Encode serializes obj into its on-flash byte representation:
// header, value, then a CRC-32 over header+value.
func Encode(obj Object) []byte {
	total := objectHeaderSize + len(obj.Value) + checksumSize
	buf := make([]byte, total)

	buf[0] = objectVersion
	flags := uint8(0)
	if obj.Valid {
		flags |= flagValid
	}
	buf[1] = flags

	// length covers everything after the length field itself: hashed_key + value + checksum.
	recLen := uint16(8 + len(obj.Value) + checksumSize)
	binary.BigEndian.PutUint16(buf[2:4], recLen)

	binary.LittleEndian.PutUint64(buf[4:12], obj.HashedKey)
	copy(buf[12:12+len(obj.Value)], obj.Value)

	crc := crc32.ChecksumIEEE(buf[:12+len(obj.Value)])
	binary.LittleEndian.PutUint32(buf[12+len(obj.Value):], crc)

	return buf
}

// Size returns the total encoded byte length Encode would produce for
// a value of valueLen bytes: the fixed 16-byte header+checksum budget
// (12-byte header, 4-byte CRC), plus the value.
func Size(valueLen int) int {
	return objectHeaderSize + valueLen + checksumSize
}

// Decode parses one object starting at the beginning of buf. It
// returns the object, the number of bytes it occupies, and an error if
// buf doesn't begin with a well-formed object (bad version, truncated
// record, or checksum mismatch).
func Decode(buf []byte) (Object, int, error) {
	if len(buf) < minObjectSize {
		return Object{}, 0, errs.New(errs.KindProtocol, "buffer too short for a TicKV object header")
	}

	version := buf[0]
	if version != objectVersion {
		return Object{}, 0, errs.Newf(errs.KindProtocol, "unsupported TicKV object version %d", version)
	}
	flags := buf[1]
	recLen := binary.BigEndian.Uint16(buf[2:4])

	total := 4 + int(recLen)
	if total > len(buf) {
		return Object{}, 0, errs.New(errs.KindProtocol, "TicKV object length overruns buffer")
	}
	if int(recLen) < 8+checksumSize {
		return Object{}, 0, errs.New(errs.KindProtocol, "TicKV object length too small for hashed_key+checksum")
	}

	hashedKey := binary.LittleEndian.Uint64(buf[4:12])
	valueLen := int(recLen) - 8 - checksumSize
	value := make([]byte, valueLen)
	copy(value, buf[12:12+valueLen])

	wantCrc := binary.LittleEndian.Uint32(buf[12+valueLen : 12+valueLen+checksumSize])
	gotCrc := crc32.ChecksumIEEE(buf[:12+valueLen])
	if gotCrc != wantCrc {
		return Object{}, 0, errs.New(errs.KindProtocol, "TicKV object checksum mismatch")
	}

	return Object{
		Version:   version,
		Valid:     flags&flagValid != 0,
		HashedKey: hashedKey,
		Value:     value,
	}, total, nil
}

// TockSubHeaderSize is the size of the Tock-layer sub-header embedded
// in a TicKV value: version(1), write_id(4), value_length(2).
const TockSubHeaderSize = 1 + 4 + 2

// WrapTockValue prepends the Tock-layer sub-header to value.
func WrapTockValue(writeId uint32, value []byte) []byte {
	out := make([]byte, TockSubHeaderSize+len(value))
	out[0] = objectVersion
	binary.LittleEndian.PutUint32(out[1:5], writeId)
	binary.LittleEndian.PutUint16(out[5:7], uint16(len(value)))
	copy(out[7:], value)
	return out
}

// UnwrapTockValue strips the Tock-layer sub-header, returning the
// write ID and the inner value bytes.
func UnwrapTockValue(wrapped []byte) (writeId uint32, value []byte, err error) {
	if len(wrapped) < TockSubHeaderSize {
		return 0, nil, errs.New(errs.KindProtocol, "Tock value too short for sub-header")
	}
	writeId = binary.LittleEndian.Uint32(wrapped[1:5])
	length := binary.LittleEndian.Uint16(wrapped[5:7])
	if int(length) != len(wrapped)-TockSubHeaderSize {
		return 0, nil, errs.New(errs.KindProtocol, "Tock value length field does not match payload")
	}
	value = make([]byte, length)
	copy(value, wrapped[TockSubHeaderSize:])
	return writeId, value, nil
}
