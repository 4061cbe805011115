// SerialTransport implements board.Interface over the Tock bootloader
// serial protocol, grounded on apache-mynewt-newt's
// newtmgr/transport/connserial.go ConnSerial: that file opens a
// serial port and exposes ReadPacket/WritePacket on top of it. Here
// the concrete library is go.bug.st/serial rather than
// jacobsa/go-serial, since the bootloader's entry sequence needs
// explicit DTR/RTS control that jacobsa/go-serial's plain
// io.ReadWriteCloser doesn't expose — the "open a port, frame
// packets over it" concern is the same, the serial library differs.
package bootloader

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/tock/tockloader/board"
	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/logging"
)

// Default and negotiated baud rates, per spec 4.3 baud negotiation.
const (
	DefaultBaud    = 115200
	NegotiatedBaud = 921600
)

// FlashVerifyRetries bounds how many times a page write is retried
// after a CRC mismatch before surfacing FlashVerifyFailed.
const FlashVerifyRetries = 3

// SerialTransport drives one Tock bootloader over a serial port.
type SerialTransport struct {
	path string
	port serial.Port

	runner *Runner

	pageSize     uint32
	appsStart    uint32
	boardName    string
	boardArch    string
	skipCrcCheck bool

	lock *PortLock
}

var _ board.Interface = (*SerialTransport)(nil)

// NewSerialTransport constructs a transport for the serial device at
// path. Board metadata is filled in once ReadAttributes (via
// GetAllAttributes) has run; until then GetPageSize/GetBoardName
// return zero values.
func NewSerialTransport(path string) *SerialTransport {
	return &SerialTransport{path: path}
}

func (t *SerialTransport) Open(ctx context.Context) error {
	lock, err := AcquirePortLock(t.path)
	if err != nil {
		return err
	}
	t.lock = lock

	mode := &serial.Mode{BaudRate: DefaultBaud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(t.path, mode)
	if err != nil {
		t.lock.Release()
		return errs.Wrap(errs.KindTransport, err, "opening serial port %s", t.path)
	}
	t.port = port
	t.runner = NewRunner(port)
	return nil
}

func (t *SerialTransport) Close() error {
	var err error
	if t.port != nil {
		err = t.port.Close()
	}
	if t.lock != nil {
		t.lock.Release()
	}
	return err
}

// EnterBootloaderMode tries the DTR/RTS reset strategy first, falling
// back to the 1200-baud touch strategy, per spec 4.3 entry.
func (t *SerialTransport) EnterBootloaderMode(ctx context.Context) error {
	if err := t.enterViaDtrReset(ctx); err == nil {
		return nil
	}
	if err := t.enterVia1200BaudTouch(ctx); err != nil {
		return errs.Wrap(errs.KindTransport, err, "no entry strategy reached the bootloader on %s", t.path)
	}
	return nil
}

// enterViaDtrReset toggles DTR high and RTS low, pulses a reset via
// DTR, releases RTS, then pings.
func (t *SerialTransport) enterViaDtrReset(ctx context.Context) error {
	if err := t.port.SetDTR(true); err != nil {
		return err
	}
	if err := t.port.SetRTS(false); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := t.port.SetDTR(false); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := t.port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)

	return t.pingWithRetries(ctx, 3)
}

// enterVia1200BaudTouch opens at 1200 baud briefly then reopens at the
// nominal baud, waiting for the device to reappear.
func (t *SerialTransport) enterVia1200BaudTouch(ctx context.Context) error {
	touchMode := &serial.Mode{BaudRate: 1200}
	if err := t.port.SetMode(touchMode); err != nil {
		return err
	}
	time.Sleep(250 * time.Millisecond)

	nominal := &serial.Mode{BaudRate: DefaultBaud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}

	deadline := time.Now().Add(5 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		if err := t.port.SetMode(nominal); err == nil {
			if pingErr := t.pingWithRetries(ctx, 3); pingErr == nil {
				return nil
			} else {
				lastErr = pingErr
			}
		} else {
			lastErr = err
		}
		time.Sleep(200 * time.Millisecond)
	}
	return errs.Wrap(errs.KindTransport, lastErr, "device did not reappear after 1200-baud touch")
}

func (t *SerialTransport) pingWithRetries(ctx context.Context, retries int) error {
	var lastErr error
	for i := 0; i < retries; i++ {
		cctx, cancel := WithTimeout(ctx)
		_, err := t.runner.Do(cctx, CmdPing, nil, 0, int(RspPong))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// NegotiateBaud attempts CHANGE_BAUD up to NegotiatedBaud, reverting to
// DefaultBaud if the confirm step fails, per spec 4.3 baud negotiation.
func (t *SerialTransport) NegotiateBaud(ctx context.Context) error {
	cctx, cancel := WithTimeout(ctx)
	defer cancel()

	payload := append([]byte{byte(ChangeBaudSet)}, le32(NegotiatedBaud)...)
	if _, err := t.runner.Do(cctx, CmdChangeBaud, payload, 0, int(RspOk)); err != nil {
		logging.Status(logging.VerbosityVerbose, "baud negotiation declined, staying at %d\n", DefaultBaud)
		return nil
	}

	newMode := &serial.Mode{BaudRate: NegotiatedBaud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	if err := t.port.SetMode(newMode); err != nil {
		return errs.Wrap(errs.KindTransport, err, "reopening port at negotiated baud")
	}

	confirmCtx, confirmCancel := WithTimeout(ctx)
	defer confirmCancel()
	confirmPayload := append([]byte{byte(ChangeBaudConfirm)}, le32(NegotiatedBaud)...)
	if _, err := t.runner.Do(confirmCtx, CmdChangeBaud, confirmPayload, 0, int(RspOk)); err != nil {
		// Revert.
		oldMode := &serial.Mode{BaudRate: DefaultBaud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
		t.port.SetMode(oldMode)
		return errs.Wrap(errs.KindTransport, err, "baud confirm failed, reverted to %d", DefaultBaud)
	}

	return nil
}

func (t *SerialTransport) ExitBootloaderMode(ctx context.Context) error {
	cctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := t.runner.Do(cctx, CmdExit, nil, 0, -1)
	return err
}

func (t *SerialTransport) ReadRange(ctx context.Context, addr uint32, length uint32) ([]byte, error) {
	cctx, cancel := WithTimeout(ctx)
	defer cancel()

	payload := append(le32(addr), le16(uint16(length))...)
	data, err := t.runner.Do(cctx, CmdReadRange, payload, int(length), int(RspReadRange))
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "READ_RANGE addr=0x%x len=%d", addr, length)
	}
	return data, nil
}

// FlashBinary writes data starting at addr, one page per WRITE_PAGE
// command, then verifies each contiguous run with CRC_IFLASH and
// retries affected pages on mismatch, per spec 4.3 write semantics.
func (t *SerialTransport) FlashBinary(ctx context.Context, addr uint32, data []byte) error {
	pageSize := t.pageSize
	if pageSize == 0 {
		return errs.New(errs.KindProtocol, "page size unknown; call GetAllAttributes first")
	}
	if addr%pageSize != 0 {
		return errs.Newf(errs.KindProtocol, "flash_binary address 0x%x is not page-aligned", addr)
	}
	if len(data)%int(pageSize) != 0 {
		return errs.Newf(errs.KindProtocol, "flash_binary length %d is not a multiple of page size %d", len(data), pageSize)
	}

	for off := 0; off < len(data); off += int(pageSize) {
		pageAddr := addr + uint32(off)
		page := data[off : off+int(pageSize)]
		if err := t.writePageWithRetry(ctx, pageAddr, page); err != nil {
			return err
		}
	}
	return nil
}

func (t *SerialTransport) writePageWithRetry(ctx context.Context, addr uint32, page []byte) error {
	var lastErr error
	for attempt := 0; attempt <= FlashVerifyRetries; attempt++ {
		cctx, cancel := WithTimeout(ctx)
		payload := append(le32(addr), page...)
		_, err := t.runner.Do(cctx, CmdWritePage, payload, 0, int(RspOk))
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		if t.skipCrcCheck {
			return nil
		}

		want := crc32.ChecksumIEEE(page)
		cctx2, cancel2 := WithTimeout(ctx)
		crcPayload := append(le32(addr), le32(uint32(len(page)))...)
		resp, err := t.runner.Do(cctx2, CmdCrcInternalFlash, crcPayload, 4, int(RspCrcInternal))
		cancel2()
		if err != nil {
			lastErr = err
			continue
		}
		got := binary.LittleEndian.Uint32(resp)
		if got == want {
			return nil
		}
		lastErr = errs.Newf(errs.KindFlashVerifyFailed,
			"CRC mismatch at 0x%x: device=0x%08x want=0x%08x", addr, got, want).WithAddr(int64(addr))
	}
	return lastErr
}

func (t *SerialTransport) ErasePage(ctx context.Context, addr uint32) error {
	cctx, cancel := WithTimeout(ctx)
	defer cancel()
	_, err := t.runner.Do(cctx, CmdErasePage, le32(addr), 0, int(RspOk))
	return err
}

func (t *SerialTransport) ClearBytes(ctx context.Context, addr uint32, length uint32) error {
	pageSize := t.pageSize
	if pageSize == 0 {
		pageSize = 512
	}
	blank := make([]byte, pageSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	for off := uint32(0); off < length; off += pageSize {
		if err := t.ErasePage(ctx, addr+off); err != nil {
			return err
		}
	}
	return nil
}

func (t *SerialTransport) GetAttribute(ctx context.Context, index int) (board.Attribute, error) {
	cctx, cancel := WithTimeout(ctx)
	defer cancel()
	resp, err := t.runner.Do(cctx, CmdGetAttribute, []byte{byte(index)}, board.AttributeSlotSize, int(RspOk))
	if err != nil {
		return board.Attribute{}, err
	}
	return board.DecodeAttribute(resp), nil
}

func (t *SerialTransport) SetAttribute(ctx context.Context, index int, attr board.Attribute) error {
	raw, err := board.EncodeAttribute(attr)
	if err != nil {
		return err
	}
	cctx, cancel := WithTimeout(ctx)
	defer cancel()
	payload := append([]byte{byte(index)}, raw...)
	_, err = t.runner.Do(cctx, CmdSetAttribute, payload, 0, int(RspOk))
	return err
}

func (t *SerialTransport) GetAllAttributes(ctx context.Context) ([board.AttributeCount]board.Attribute, error) {
	var out [board.AttributeCount]board.Attribute
	for i := 0; i < board.AttributeCount; i++ {
		attr, err := t.GetAttribute(ctx, i)
		if err != nil {
			return out, err
		}
		out[i] = attr

		switch attr.Key {
		case board.KeyBoard:
			t.boardName = attr.Value
		case board.KeyArch:
			t.boardArch = attr.Value
		case board.KeyAppsStartAddress:
			t.appsStart = parseAttrUint32(attr.Value)
		case board.KeyPageSize:
			t.pageSize = parseAttrUint32(attr.Value)
		}
	}
	return out, nil
}

func (t *SerialTransport) GetBoardName() string        { return t.boardName }
func (t *SerialTransport) GetBoardArch() string        { return t.boardArch }
func (t *SerialTransport) GetPageSize() uint32         { return t.pageSize }
func (t *SerialTransport) GetAppsStartAddress() uint32 { return t.appsStart }

// TranslateAddress is the identity mapping for serial: the programmer
// and the kernel see the same address space over this transport.
func (t *SerialTransport) TranslateAddress(addr uint32) uint32 { return addr }

func (t *SerialTransport) AttachedBoardExists(ctx context.Context) (bool, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return false, errs.Wrap(errs.KindTransport, err, "listing serial ports")
	}
	for _, p := range ports {
		if p == t.path {
			return true, nil
		}
	}
	return false, nil
}

func (t *SerialTransport) BootloaderIsPresent(ctx context.Context) (bool, bool, error) {
	err := t.pingWithRetries(ctx, 1)
	if err != nil {
		return false, true, nil
	}
	return true, true, nil
}

// parseAttrUint32 parses an attribute value as either a decimal or
// 0x-prefixed hexadecimal integer, returning 0 if it parses as
// neither (malformed board attributes shouldn't panic the CLI).
func parseAttrUint32(s string) uint32 {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}
