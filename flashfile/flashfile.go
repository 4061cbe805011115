// Package flashfile implements board.Interface over a local file
// standing in for a device's flash, used both as a standalone backend
// (the spec's "flash file" transport) and as test harness
// infrastructure for the layout engine and TicKV packages. Grounded on
// apache-mynewt-newt's newtmgr/transport.Conn pattern of wrapping a
// concrete medium (there, a serial/BLE/UDP link; here, a file) behind
// the shared capability interface.
package flashfile

import (
	"context"
	"os"

	"github.com/tock/tockloader/board"
	"github.com/tock/tockloader/errs"
)

// Transport backs board.Interface with a flat file: offset 0 in the
// file corresponds to BaseAddr in the device's address space, so
// TranslateAddress subtracts BaseAddr to get a file offset.
type Transport struct {
	Path     string
	BaseAddr uint32

	BoardName string
	BoardArch string
	PageSize  uint32
	AppsStart uint32

	f *os.File
}

var _ board.Interface = (*Transport)(nil)

func New(path string, baseAddr, pageSize, appsStart uint32, boardName, boardArch string) *Transport {
	return &Transport{
		Path: path, BaseAddr: baseAddr, PageSize: pageSize, AppsStart: appsStart,
		BoardName: boardName, BoardArch: boardArch,
	}
}

func (t *Transport) Open(ctx context.Context) error {
	f, err := os.OpenFile(t.Path, os.O_RDWR, 0644)
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "opening flash file %s", t.Path)
	}
	t.f = f
	return nil
}

func (t *Transport) Close() error {
	if t.f == nil {
		return nil
	}
	return t.f.Close()
}

// EnterBootloaderMode and ExitBootloaderMode are no-ops: a flash file
// has no bootloader to enter or exit.
func (t *Transport) EnterBootloaderMode(ctx context.Context) error { return nil }
func (t *Transport) ExitBootloaderMode(ctx context.Context) error  { return nil }

func (t *Transport) ReadRange(ctx context.Context, addr uint32, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	n, err := t.f.ReadAt(buf, int64(addr))
	if err != nil && n == 0 {
		return nil, errs.Wrap(errs.KindTransport, err, "reading flash file at 0x%x", addr)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0xFF
	}
	return buf, nil
}

func (t *Transport) FlashBinary(ctx context.Context, addr uint32, data []byte) error {
	if _, err := t.f.WriteAt(data, int64(addr)); err != nil {
		return errs.Wrap(errs.KindTransport, err, "writing flash file at 0x%x", addr)
	}
	return nil
}

func (t *Transport) ErasePage(ctx context.Context, addr uint32) error {
	blank := make([]byte, t.PageSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	return t.FlashBinary(ctx, addr, blank)
}

func (t *Transport) ClearBytes(ctx context.Context, addr uint32, length uint32) error {
	blank := make([]byte, length)
	for i := range blank {
		blank[i] = 0xFF
	}
	return t.FlashBinary(ctx, addr, blank)
}

func (t *Transport) attrOffset(index int) int64 {
	return int64(t.BaseAddr) + int64(index)*int64(board.AttributeSlotSize)
}

func (t *Transport) GetAttribute(ctx context.Context, index int) (board.Attribute, error) {
	raw := make([]byte, board.AttributeSlotSize)
	if _, err := t.f.ReadAt(raw, t.attrOffset(index)); err != nil {
		return board.Attribute{}, errs.Wrap(errs.KindTransport, err, "reading attribute slot %d", index)
	}
	return board.DecodeAttribute(raw), nil
}

func (t *Transport) SetAttribute(ctx context.Context, index int, attr board.Attribute) error {
	raw, err := board.EncodeAttribute(attr)
	if err != nil {
		return err
	}
	if _, err := t.f.WriteAt(raw, t.attrOffset(index)); err != nil {
		return errs.Wrap(errs.KindTransport, err, "writing attribute slot %d", index)
	}
	return nil
}

func (t *Transport) GetAllAttributes(ctx context.Context) ([board.AttributeCount]board.Attribute, error) {
	var out [board.AttributeCount]board.Attribute
	for i := 0; i < board.AttributeCount; i++ {
		a, err := t.GetAttribute(ctx, i)
		if err != nil {
			return out, err
		}
		out[i] = a
	}
	return out, nil
}

func (t *Transport) GetBoardName() string        { return t.BoardName }
func (t *Transport) GetBoardArch() string        { return t.BoardArch }
func (t *Transport) GetPageSize() uint32         { return t.PageSize }
func (t *Transport) GetAppsStartAddress() uint32 { return t.AppsStart }

// TranslateAddress maps a kernel-visible address onto a file offset by
// subtracting BaseAddr.
func (t *Transport) TranslateAddress(addr uint32) uint32 {
	return addr - t.BaseAddr
}

func (t *Transport) AttachedBoardExists(ctx context.Context) (bool, error) {
	_, err := os.Stat(t.Path)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// BootloaderIsPresent is not meaningful for a flash file: there is no
// bootloader, but there's also no failure in determining that.
func (t *Transport) BootloaderIsPresent(ctx context.Context) (bool, bool, error) {
	return false, false, nil
}

// Create initializes a new flash file of the given total size, filled
// with erased (0xFF) bytes, for use as a test fixture or a local
// flash-file backend.
func Create(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "creating flash file %s", path)
	}
	defer f.Close()

	const chunkSize = 1 << 16
	chunk := make([]byte, chunkSize)
	for i := range chunk {
		chunk[i] = 0xFF
	}

	written := int64(0)
	for written < size {
		n := chunkSize
		if remaining := size - written; remaining < int64(chunkSize) {
			n = int(remaining)
		}
		if _, err := f.Write(chunk[:n]); err != nil {
			return errs.Wrap(errs.KindTransport, err, "initializing flash file %s", path)
		}
		written += int64(n)
	}
	return nil
}
