package tbf

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"

	"github.com/tock/tockloader/errs"
)

// Credential kind IDs, matching the Credentials TLV's type field.
const (
	CredentialReserved      uint16 = 0
	CredentialCleartextId   uint16 = 1
	CredentialRsa2048       uint16 = 2
	CredentialRsa4096       uint16 = 3
	CredentialSha256        uint16 = 4
	CredentialSha384        uint16 = 5
	CredentialSha512        uint16 = 6
	CredentialHmacSha256    uint16 = 7
	CredentialHmacSha384    uint16 = 8
	CredentialHmacSha512    uint16 = 9
	CredentialEcdsaNistP256 uint16 = 10
)

// Credential is one entry of a footer's TLV sequence: a kind plus its
// raw data bytes (digest, MAC, signature, or cleartext ID), exactly as
// they appear on flash.
type Credential struct {
	Kind uint16
	Data []byte
}

// Footer is the region following an app's binary, up to total_length,
// filled entirely by a sequence of Credentials TLVs per spec 4.2: "The
// footer region ... is filled exactly by a sequence of Credentials
// TLVs with no gaps."
type Footer struct {
	Credentials []Credential
}

// credentialDataLen returns the expected Data length for kind, or -1
// if kind is a variable-length credential (CleartextId has no fixed
// size; RSA/ECDSA signature lengths are fixed per scheme but RSA
// varies by modulus).
func credentialDataLen(kind uint16) int {
	switch kind {
	case CredentialSha256, CredentialHmacSha256:
		return 32
	case CredentialSha384, CredentialHmacSha384:
		return 48
	case CredentialSha512, CredentialHmacSha512:
		return 64
	case CredentialEcdsaNistP256:
		return 64 // r||s, 32 bytes each
	case CredentialRsa2048:
		return 256
	case CredentialRsa4096:
		return 512
	default:
		return -1
	}
}

// ParseFooter reads a sequence of Credentials TLVs from buf[start:end],
// which must be filled exactly (spec 4.2): any leftover bytes that
// don't form a complete TLV is a footer parse error.
func ParseFooter(buf []byte, start, end int) (*Footer, error) {
	f := &Footer{}
	off := start
	for off < end {
		if off+tlvHdrSize > end {
			return nil, errs.Newf(errs.KindInvalidFooter,
				"footer TLV header at offset %d overruns footer region", off).WithAddr(int64(off))
		}
		kind := binary.LittleEndian.Uint16(buf[off : off+2])
		length := binary.LittleEndian.Uint16(buf[off+2 : off+4])

		dataStart := off + tlvHdrSize
		dataEnd := dataStart + int(length)
		if dataEnd > end {
			return nil, errs.Newf(errs.KindInvalidFooter,
				"footer TLV kind %d length %d crosses footer boundary", kind, length).
				WithAddr(int64(off)).WithTlv(int(kind))
		}

		if want := credentialDataLen(kind); want >= 0 && int(length) != want {
			return nil, errs.Newf(errs.KindInvalidFooter,
				"credential kind %d has length %d, expected %d", kind, length, want).
				WithTlv(int(kind))
		}

		data := make([]byte, length)
		copy(data, buf[dataStart:dataEnd])
		f.Credentials = append(f.Credentials, Credential{Kind: kind, Data: data})

		off = dataEnd
	}
	if off != end {
		return nil, errs.Newf(errs.KindInvalidFooter,
			"footer region not filled exactly by its TLVs (%d bytes left over)", end-off)
	}
	return f, nil
}

// Encode serializes the footer's credentials back into their TLV
// sequence, in the order they're stored (callers control ordering by
// editing Credentials or via DeleteCredential).
func (f *Footer) Encode() []byte {
	var out []byte
	for _, c := range f.Credentials {
		out = appendU16(out, c.Kind)
		out = appendU16(out, uint16(len(c.Data)))
		out = append(out, c.Data...)
	}
	return out
}

// Size returns the encoded size of the footer in bytes.
func (f *Footer) Size() int {
	n := 0
	for _, c := range f.Credentials {
		n += tlvHdrSize + len(c.Data)
	}
	return n
}

// FindCredential returns the first credential of the given kind, or
// nil.
func (f *Footer) FindCredential(kind uint16) *Credential {
	for i := range f.Credentials {
		if f.Credentials[i].Kind == kind {
			return &f.Credentials[i]
		}
	}
	return nil
}

// DeleteCredential removes the first credential of the given kind and
// reports whether one was found.
func (f *Footer) DeleteCredential(kind uint16) bool {
	for i := range f.Credentials {
		if f.Credentials[i].Kind == kind {
			f.Credentials = append(f.Credentials[:i], f.Credentials[i+1:]...)
			return true
		}
	}
	return false
}

// IntegrityBlob returns the bytes a credential is computed over: the
// app's header plus its binary, up to binary_end_offset, per spec 4.2
// ("the integrity blob: the header plus the binary, up to
// binary_end_offset"). appBytes is the complete on-flash app image
// starting at its header.
func IntegrityBlob(appBytes []byte, binaryEndOffset uint32) ([]byte, error) {
	if int(binaryEndOffset) > len(appBytes) {
		return nil, errs.Newf(errs.KindInvalidFooter,
			"binary_end_offset %d exceeds app image length %d", binaryEndOffset, len(appBytes))
	}
	return appBytes[:binaryEndOffset], nil
}

// digest computes the plain hash credential for kind over blob.
func digest(kind uint16, blob []byte) ([]byte, error) {
	switch kind {
	case CredentialSha256:
		sum := sha256.Sum256(blob)
		return sum[:], nil
	case CredentialSha384:
		sum := sha512.Sum384(blob)
		return sum[:], nil
	case CredentialSha512:
		sum := sha512.Sum512(blob)
		return sum[:], nil
	default:
		return nil, errs.Newf(errs.KindUnsupportedCredential,
			"kind %d is not a plain digest credential", kind).WithTlv(int(kind))
	}
}
