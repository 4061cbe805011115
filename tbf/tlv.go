package tbf

import (
	"bytes"
	"encoding/binary"

	"github.com/tock/tockloader/errs"
)

// TLV type IDs, per spec 3 "Recognized TLV kinds".
const (
	TlvMain                  uint16 = 1
	TlvWriteableFlashRegions uint16 = 2
	TlvPackageName           uint16 = 3
	TlvPicOption1            uint16 = 4
	TlvFixedAddresses        uint16 = 5
	TlvKernelVersion         uint16 = 8
	TlvProgram               uint16 = 9
	TlvPermissions           uint16 = 10
	TlvPersistentAcl         uint16 = 11
	TlvShortId               uint16 = 12
)

// tlvHdrSize is the size of a TLV's type+length prefix.
const tlvHdrSize = 4

// Body is implemented by every recognized TLV's decoded form, plus
// Unknown for anything this codec doesn't recognize by ID.
type Body interface {
	// kind returns this body's TLV type ID.
	kind() uint16
	// encode appends this body's raw value bytes (not the type/length
	// prefix) to buf and returns the result.
	encode(buf []byte) []byte
}

// TLV is one type-length-value record within a header or footer.
type TLV struct {
	Type   uint16
	Length uint16
	Body   Body
}

// --- Known TLV bodies ---

type Main struct {
	InitFn    uint32
	ProtectFn uint32
	MinRamSz  uint32
}

func (m *Main) kind() uint16 { return TlvMain }
func (m *Main) encode(buf []byte) []byte {
	return appendU32s(buf, m.InitFn, m.ProtectFn, m.MinRamSz)
}

// Program additionally carries the binary-end offset, enabling a
// footer for this app (spec 3: "Program additionally carries the
// binary-end offset, thereby enabling footers").
type Program struct {
	InitFn           uint32
	ProtectFn        uint32
	MinRamSz         uint32
	BinaryEndOffset  uint32
	Version          uint32
}

func (p *Program) kind() uint16 { return TlvProgram }
func (p *Program) encode(buf []byte) []byte {
	return appendU32s(buf, p.InitFn, p.ProtectFn, p.MinRamSz, p.BinaryEndOffset, p.Version)
}

type WriteableFlashRegion struct {
	Offset uint32
	Size   uint32
}

type WriteableFlashRegions struct {
	Regions []WriteableFlashRegion
}

func (w *WriteableFlashRegions) kind() uint16 { return TlvWriteableFlashRegions }
func (w *WriteableFlashRegions) encode(buf []byte) []byte {
	for _, r := range w.Regions {
		buf = appendU32s(buf, r.Offset, r.Size)
	}
	return buf
}

type PackageName struct {
	Name string
}

func (p *PackageName) kind() uint16 { return TlvPackageName }
func (p *PackageName) encode(buf []byte) []byte {
	return append(buf, []byte(p.Name)...)
}

type PicOption1 struct {
	TextOffset      uint32
	DataOffset      uint32
	DataSize        uint32
	BssMemOffset    uint32
	BssSize         uint32
	RelocDataOffset uint32
	RelocDataSize   uint32
	GotOffset       uint32
	GotSize         uint32
	MinStackSize    uint32
}

func (p *PicOption1) kind() uint16 { return TlvPicOption1 }
func (p *PicOption1) encode(buf []byte) []byte {
	return appendU32s(buf, p.TextOffset, p.DataOffset, p.DataSize, p.BssMemOffset,
		p.BssSize, p.RelocDataOffset, p.RelocDataSize, p.GotOffset, p.GotSize, p.MinStackSize)
}

// FixedAddresses requests specific flash and RAM addresses for this
// app; the layout engine's placement algorithm reads FlashAddress when
// computing candidate starts and rewrites it via
// Header.AdjustStartingAddress after choosing a final address.
type FixedAddresses struct {
	RamAddress   uint32
	FlashAddress uint32
}

func (f *FixedAddresses) kind() uint16 { return TlvFixedAddresses }
func (f *FixedAddresses) encode(buf []byte) []byte {
	return appendU32s(buf, f.RamAddress, f.FlashAddress)
}

type KernelVersion struct {
	Major uint16
	Minor uint16
}

func (k *KernelVersion) kind() uint16 { return TlvKernelVersion }
func (k *KernelVersion) encode(buf []byte) []byte {
	buf = appendU16(buf, k.Major)
	return appendU16(buf, k.Minor)
}

type Permissions struct {
	// Pairs of (driver number, allowed commands bitmask), stored flat
	// since the exact permission encoding is board/kernel specific and
	// opaque beyond "a list of driver/command entries" at this layer.
	Entries []uint64
}

func (p *Permissions) kind() uint16 { return TlvPermissions }
func (p *Permissions) encode(buf []byte) []byte {
	out := make([]byte, 2+8*len(p.Entries))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(p.Entries)))
	for i, e := range p.Entries {
		binary.LittleEndian.PutUint64(out[2+8*i:2+8*i+8], e)
	}
	return append(buf, out...)
}

type PersistentAcl struct {
	WriteId  uint32
	ReadIds  []uint32
	AccessIds []uint32
}

func (p *PersistentAcl) kind() uint16 { return TlvPersistentAcl }
func (p *PersistentAcl) encode(buf []byte) []byte {
	buf = appendU32s(buf, p.WriteId)
	buf = appendU16(buf, uint16(len(p.ReadIds)))
	buf = appendU16(buf, uint16(len(p.AccessIds)))
	buf = appendU32s(buf, p.ReadIds...)
	buf = appendU32s(buf, p.AccessIds...)
	return buf
}

type ShortId struct {
	Id uint32
}

func (s *ShortId) kind() uint16 { return TlvShortId }
func (s *ShortId) encode(buf []byte) []byte {
	return appendU32s(buf, s.Id)
}

// Unknown preserves the raw bytes of any TLV ID this codec doesn't
// decode structurally, per spec 4.1: "Unknown TLV IDs produce an
// Unknown TLV that preserves raw bytes".
type Unknown struct {
	Type uint16
	Raw  []byte
}

func (u *Unknown) kind() uint16 { return u.Type }
func (u *Unknown) encode(buf []byte) []byte {
	return append(buf, u.Raw...)
}

func appendU32s(buf []byte, vals ...uint32) []byte {
	for _, v := range vals {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

// parseTlvs walks TLV records in buf[start:end], where end is the
// offset at which the header's declared header_length is exhausted.
// Duplicate known TLVs are header corruption per spec 4.1; a TLV
// whose length would cross end is a hard parse error.
func parseTlvs(buf []byte, start, end int) ([]TLV, error) {
	var tlvs []TLV
	seen := map[uint16]bool{}

	off := start
	for off < end {
		if off+tlvHdrSize > end {
			// Encode pads header_length up to 4 bytes with zeros: a
			// shorter all-zero tail is that padding, not a TLV.
			allZero := true
			for _, c := range buf[off:end] {
				allZero = allZero && c == 0
			}
			if allZero {
				break
			}
			return nil, errs.Newf(errs.KindInvalidTlv,
				"TLV header at offset %d overruns header_length", off).WithAddr(int64(off))
		}

		typ := binary.LittleEndian.Uint16(buf[off : off+2])
		length := binary.LittleEndian.Uint16(buf[off+2 : off+4])

		valStart := off + tlvHdrSize
		valEnd := valStart + int(length)
		if valEnd > end {
			return nil, errs.Newf(errs.KindInvalidTlv,
				"TLV type %d length %d crosses header_length boundary", typ, length).
				WithAddr(int64(off)).WithTlv(int(typ))
		}

		value := buf[valStart:valEnd]

		if isKnownKind(typ) {
			if seen[typ] {
				return nil, errs.Newf(errs.KindInvalidHeader,
					"duplicate TLV type %d", typ).WithTlv(int(typ))
			}
			seen[typ] = true
		}

		body, err := decodeBody(typ, value)
		if err != nil {
			return nil, err
		}

		tlvs = append(tlvs, TLV{Type: typ, Length: length, Body: body})
		off = valEnd
	}

	return tlvs, nil
}

func isKnownKind(typ uint16) bool {
	switch typ {
	case TlvMain, TlvWriteableFlashRegions, TlvPackageName, TlvPicOption1,
		TlvFixedAddresses, TlvKernelVersion, TlvProgram, TlvPermissions,
		TlvPersistentAcl, TlvShortId:
		return true
	default:
		return false
	}
}

func decodeBody(typ uint16, value []byte) (Body, error) {
	r := bytes.NewReader(value)
	readU32 := func() uint32 {
		var v uint32
		binary.Read(r, binary.LittleEndian, &v)
		return v
	}
	readU16 := func() uint16 {
		var v uint16
		binary.Read(r, binary.LittleEndian, &v)
		return v
	}

	switch typ {
	case TlvMain:
		if len(value) < 12 {
			return nil, errs.Newf(errs.KindInvalidTlv, "Main TLV too short").WithTlv(int(typ))
		}
		return &Main{InitFn: readU32(), ProtectFn: readU32(), MinRamSz: readU32()}, nil

	case TlvProgram:
		if len(value) < 20 {
			return nil, errs.Newf(errs.KindInvalidTlv, "Program TLV too short").WithTlv(int(typ))
		}
		return &Program{
			InitFn: readU32(), ProtectFn: readU32(), MinRamSz: readU32(),
			BinaryEndOffset: readU32(), Version: readU32(),
		}, nil

	case TlvWriteableFlashRegions:
		if len(value)%8 != 0 {
			return nil, errs.Newf(errs.KindInvalidTlv,
				"WriteableFlashRegions TLV length not a multiple of 8").WithTlv(int(typ))
		}
		w := &WriteableFlashRegions{}
		for r.Len() > 0 {
			w.Regions = append(w.Regions, WriteableFlashRegion{Offset: readU32(), Size: readU32()})
		}
		return w, nil

	case TlvPackageName:
		return &PackageName{Name: string(value)}, nil

	case TlvPicOption1:
		if len(value) < 40 {
			return nil, errs.Newf(errs.KindInvalidTlv, "PicOption1 TLV too short").WithTlv(int(typ))
		}
		return &PicOption1{
			TextOffset: readU32(), DataOffset: readU32(), DataSize: readU32(),
			BssMemOffset: readU32(), BssSize: readU32(), RelocDataOffset: readU32(),
			RelocDataSize: readU32(), GotOffset: readU32(), GotSize: readU32(),
			MinStackSize: readU32(),
		}, nil

	case TlvFixedAddresses:
		if len(value) < 8 {
			return nil, errs.Newf(errs.KindInvalidTlv, "FixedAddresses TLV too short").WithTlv(int(typ))
		}
		return &FixedAddresses{RamAddress: readU32(), FlashAddress: readU32()}, nil

	case TlvKernelVersion:
		if len(value) < 4 {
			return nil, errs.Newf(errs.KindInvalidTlv, "KernelVersion TLV too short").WithTlv(int(typ))
		}
		return &KernelVersion{Major: readU16(), Minor: readU16()}, nil

	case TlvPermissions:
		if len(value) < 2 {
			return nil, errs.Newf(errs.KindInvalidTlv, "Permissions TLV too short").WithTlv(int(typ))
		}
		count := int(readU16())
		if len(value) != 2+8*count {
			return nil, errs.Newf(errs.KindInvalidTlv, "Permissions TLV length mismatch").WithTlv(int(typ))
		}
		p := &Permissions{}
		for i := 0; i < count; i++ {
			var e uint64
			binary.Read(r, binary.LittleEndian, &e)
			p.Entries = append(p.Entries, e)
		}
		return p, nil

	case TlvPersistentAcl:
		if len(value) < 8 {
			return nil, errs.Newf(errs.KindInvalidTlv, "PersistentACL TLV too short").WithTlv(int(typ))
		}
		writeID := readU32()
		nRead := int(readU16())
		nAccess := int(readU16())
		if len(value) != 8+4*nRead+4*nAccess {
			return nil, errs.Newf(errs.KindInvalidTlv, "PersistentACL TLV length mismatch").WithTlv(int(typ))
		}
		p := &PersistentAcl{WriteId: writeID}
		for i := 0; i < nRead; i++ {
			p.ReadIds = append(p.ReadIds, readU32())
		}
		for i := 0; i < nAccess; i++ {
			p.AccessIds = append(p.AccessIds, readU32())
		}
		return p, nil

	case TlvShortId:
		if len(value) < 4 {
			return nil, errs.Newf(errs.KindInvalidTlv, "ShortId TLV too short").WithTlv(int(typ))
		}
		return &ShortId{Id: readU32()}, nil

	default:
		raw := make([]byte, len(value))
		copy(raw, value)
		return &Unknown{Type: typ, Raw: raw}, nil
	}
}

// canonicalOrder returns the emission-order rank for a TLV type, per
// spec 4.1(a): Main/Program first, then WriteableFlashRegions,
// PackageName, FixedAddresses, KernelVersion, remaining known TLVs,
// Unknown last.
func canonicalOrder(typ uint16) int {
	switch typ {
	case TlvMain, TlvProgram:
		return 0
	case TlvWriteableFlashRegions:
		return 1
	case TlvPackageName:
		return 2
	case TlvFixedAddresses:
		return 3
	case TlvKernelVersion:
		return 4
	case TlvPicOption1, TlvPermissions, TlvPersistentAcl, TlvShortId:
		return 5
	default:
		return 6 // Unknown
	}
}

// Encode serializes h into a complete TBF header: TLVs in canonical
// order, header_length aligned up to 4 bytes with zero padding, and
// the base checksum finalized over the result.
func (h *Header) Encode() ([]byte, error) {
	ordered := make([]TLV, len(h.Tlvs))
	copy(ordered, h.Tlvs)
	stableSortTlvs(ordered)

	var body []byte
	for _, t := range ordered {
		valBuf := t.Body.encode(nil)
		body = appendU16(body, t.Body.kind())
		body = appendU16(body, uint16(len(valBuf)))
		body = append(body, valBuf...)
	}

	headerLen := HeaderBaseSize + len(body)
	if pad := headerLen % 4; pad != 0 {
		padding := 4 - pad
		body = append(body, make([]byte, padding)...)
		headerLen += padding
	}

	h.Base.HeaderLength = uint16(headerLen)
	if h.Base.TotalLength < uint32(headerLen) {
		h.Base.TotalLength = uint32(headerLen)
	}

	out := make([]byte, HeaderBaseSize)
	binary.LittleEndian.PutUint16(out[0:2], h.Base.Version)
	binary.LittleEndian.PutUint16(out[2:4], h.Base.HeaderLength)
	binary.LittleEndian.PutUint32(out[4:8], h.Base.TotalLength)
	binary.LittleEndian.PutUint32(out[8:12], h.Base.Flags)
	binary.LittleEndian.PutUint32(out[12:16], 0)
	out = append(out, body...)

	checksum := xorWords(out)
	binary.LittleEndian.PutUint32(out[12:16], checksum)
	h.Base.BaseChecksum = checksum

	return out, nil
}

// stableSortTlvs performs an in-place stable sort by canonicalOrder,
// preserving relative order within a rank (insertion sort: header TLV
// counts are small enough that this is both simple and fast).
func stableSortTlvs(tlvs []TLV) {
	for i := 1; i < len(tlvs); i++ {
		j := i
		for j > 0 && canonicalOrder(tlvs[j-1].Body.kind()) > canonicalOrder(tlvs[j].Body.kind()) {
			tlvs[j-1], tlvs[j] = tlvs[j], tlvs[j-1]
			j--
		}
	}
}

// FindTlv returns the first TLV of the given type, or nil.
func (h *Header) FindTlv(typ uint16) *TLV {
	for i := range h.Tlvs {
		if h.Tlvs[i].Body.kind() == typ {
			return &h.Tlvs[i]
		}
	}
	return nil
}

// DeleteTlv removes the first TLV of the given type, if present, and
// reports whether it found one to remove. The caller is responsible
// for re-running Encode to restore 4-byte header_length alignment.
func (h *Header) DeleteTlv(typ uint16) bool {
	for i := range h.Tlvs {
		if h.Tlvs[i].Body.kind() == typ {
			h.Tlvs = append(h.Tlvs[:i], h.Tlvs[i+1:]...)
			return true
		}
	}
	return false
}

// ModifyTlv replaces the first TLV of the given type with newBody, or
// appends it if absent.
func (h *Header) ModifyTlv(typ uint16, newBody Body) {
	for i := range h.Tlvs {
		if h.Tlvs[i].Body.kind() == typ {
			h.Tlvs[i].Body = newBody
			return
		}
	}
	h.Tlvs = append(h.Tlvs, TLV{Type: typ, Body: newBody})
}
