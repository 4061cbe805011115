// Package board defines the transport-agnostic interface every
// backend (serial bootloader, flash file, and future JTAG/stlink
// backends) implements, plus the board attribute table codec shared
// by all of them. Grounded on apache-mynewt-newt's
// newtmgr/transport/conn.go Conn interface: that interface lets
// cmdrunner drive a device over serial, BLE, or UDP through one small
// Open/ReadPacket/WritePacket surface. This file generalizes the same
// "one narrow interface, many transports" shape to tockloader's wider
// flashing/attribute surface.
package board

import (
	"context"

	"github.com/tock/tockloader/errs"
)

// AttributeCount is the number of slots in the board attribute table.
const AttributeCount = 16

// AttributeSlotSize is the size in bytes of one attribute slot.
const AttributeSlotSize = 64

// Attribute is one decoded (key, value) slot, or the zero value for an
// empty slot.
type Attribute struct {
	Key   string
	Value string
}

// Empty reports whether this slot carries no key.
func (a Attribute) Empty() bool { return a.Key == "" }

// Well-known attribute keys, per the data model's "recognized keys".
const (
	KeyBoard              = "board"
	KeyArch               = "arch"
	KeyAppAddr            = "appaddr"
	KeyBootloaderVersion  = "bootloader_version"
	KeyAppsStartAddress   = "apps_start_address"
	KeyPageSize           = "pagesize"
)

// Interface is the capability surface every transport backend
// exposes. The layout engine and CLI subcommands depend only on this
// interface, never on a concrete transport, mirroring Conn's role in
// cmdrunner.
type Interface interface {
	// Open establishes the underlying connection (serial port, file
	// handle, JTAG probe) without yet entering bootloader mode.
	Open(ctx context.Context) error
	// Close releases the underlying connection.
	Close() error

	// EnterBootloaderMode performs whatever handshake is required
	// before flash operations are accepted (entry strategies for
	// serial; a no-op for a flash file).
	EnterBootloaderMode(ctx context.Context) error
	// ExitBootloaderMode resumes normal execution on the device. Called
	// on both the success and Abort paths of the install state machine.
	ExitBootloaderMode(ctx context.Context) error

	ReadRange(ctx context.Context, addr uint32, length uint32) ([]byte, error)
	FlashBinary(ctx context.Context, addr uint32, data []byte) error
	ErasePage(ctx context.Context, addr uint32) error
	ClearBytes(ctx context.Context, addr uint32, length uint32) error

	GetAttribute(ctx context.Context, index int) (Attribute, error)
	SetAttribute(ctx context.Context, index int, attr Attribute) error
	GetAllAttributes(ctx context.Context) ([AttributeCount]Attribute, error)

	GetBoardName() string
	GetBoardArch() string
	GetPageSize() uint32
	GetAppsStartAddress() uint32

	// TranslateAddress converts a kernel-visible address into the
	// address this transport's read/write calls expect, supporting
	// boards whose kernel view differs from the programmer's view
	// (memory-mapped QSPI, a flash-file offset).
	TranslateAddress(addr uint32) uint32

	AttachedBoardExists(ctx context.Context) (bool, error)
	// BootloaderIsPresent reports whether a bootloader is present, or
	// (false, false) when that can't be determined for this transport.
	BootloaderIsPresent(ctx context.Context) (present bool, known bool, err error)
}

// EncodeAttribute serializes attr into one 64-byte slot: a
// null-terminated key, then a null-terminated value, zero-padded to
// fill the slot. Slots longer than the key+value+two-NUL budget are a
// caller error, surfaced as KindProtocol since it reflects a malformed
// board rather than bad user input.
func EncodeAttribute(attr Attribute) ([]byte, error) {
	out := make([]byte, AttributeSlotSize)
	if attr.Empty() {
		for i := range out {
			out[i] = 0xFF
		}
		return out, nil
	}

	key := []byte(attr.Key)
	val := []byte(attr.Value)
	if len(key)+1+len(val)+1 > AttributeSlotSize {
		return nil, errs.Newf(errs.KindProtocol,
			"attribute %q=%q does not fit in a %d-byte slot", attr.Key, attr.Value, AttributeSlotSize)
	}

	off := 0
	copy(out[off:], key)
	off += len(key) + 1 // leave the NUL terminator as the zero-initialized byte
	copy(out[off:], val)
	return out, nil
}

// DecodeAttribute parses one 64-byte slot. An all-0xFF or all-zero
// slot decodes to the empty Attribute.
func DecodeAttribute(raw []byte) Attribute {
	if len(raw) != AttributeSlotSize {
		return Attribute{}
	}
	if isErasedOrZero(raw) {
		return Attribute{}
	}

	keyEnd := indexNul(raw, 0)
	if keyEnd < 0 {
		return Attribute{}
	}
	valStart := keyEnd + 1
	valEnd := indexNul(raw, valStart)
	if valEnd < 0 {
		valEnd = len(raw)
	}

	return Attribute{Key: string(raw[0:keyEnd]), Value: string(raw[valStart:valEnd])}
}

func indexNul(b []byte, from int) int {
	for i := from; i < len(b); i++ {
		if b[i] == 0 {
			return i
		}
	}
	return -1
}

func isErasedOrZero(b []byte) bool {
	allFF, allZero := true, true
	for _, c := range b {
		if c != 0xFF {
			allFF = false
		}
		if c != 0x00 {
			allZero = false
		}
	}
	return allFF || allZero
}
