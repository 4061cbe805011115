// SipHash-2-4 key hashing for TicKV object keys, per spec 4.4: "Key
// hashing: SipHash-2-4 with a 16-byte key of zero. Determinism across
// processes is required." No SipHash implementation appears anywhere
// in the retrieval pack, so this is a standard-library-only
// implementation (math/bits and encoding/binary), hand-rolled directly
// from the published SipHash-2-4 algorithm rather than grounded on any
// example file — see the grounding ledger's standard-library
// justification entry for this package.
package tickv

import (
	"encoding/binary"
	"math/bits"
)

// siphashKey is the all-zero 16-byte key spec 4.4 mandates, split into
// its two 64-bit little-endian halves.
var siphashKey = [2]uint64{0, 0}

// HashKey returns the SipHash-2-4 digest of key using the fixed
// all-zero key, matching every other tockloader process's hash for
// the same key string.
func HashKey(key string) uint64 {
	return siphash24(siphashKey[0], siphashKey[1], []byte(key))
}

func siphash24(k0, k1 uint64, data []byte) uint64 {
	v0 := k0 ^ 0x736f6d6570736575
	v1 := k1 ^ 0x646f72616e646f6d
	v2 := k0 ^ 0x6c7967656e657261
	v3 := k1 ^ 0x7465646279746573

	round := func() {
		v0 += v1
		v1 = bits.RotateLeft64(v1, 13)
		v1 ^= v0
		v0 = bits.RotateLeft64(v0, 32)

		v2 += v3
		v3 = bits.RotateLeft64(v3, 16)
		v3 ^= v2

		v0 += v3
		v3 = bits.RotateLeft64(v3, 21)
		v3 ^= v0

		v2 += v1
		v1 = bits.RotateLeft64(v1, 17)
		v1 ^= v2
		v2 = bits.RotateLeft64(v2, 32)
	}

	n := len(data)
	end := n - (n % 8)

	for off := 0; off < end; off += 8 {
		m := binary.LittleEndian.Uint64(data[off : off+8])
		v3 ^= m
		round()
		round()
		v0 ^= m
	}

	// Final partial block, packed with the length in its top byte per
	// the SipHash spec.
	var last [8]byte
	copy(last[:], data[end:])
	last[7] = byte(n)
	m := binary.LittleEndian.Uint64(last[:])

	v3 ^= m
	round()
	round()
	v0 ^= m

	v2 ^= 0xff
	round()
	round()
	round()
	round()

	return v0 ^ v1 ^ v2 ^ v3
}
