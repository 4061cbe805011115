// Frame encoding/decoding for the bootloader serial protocol,
// grounded on apache-mynewt-newt's newtmgr/protocol/nmgr.go
// NmgrReq.SerializeRequest/DeserializeNmgrReq: that file turns a
// logical request into a flat byte buffer and back. This file does
// the same job for the bootloader's ESC-framed command/response wire
// format instead of newtmgr's fixed 8-byte header.
package bootloader

import (
	"bytes"

	"github.com/tock/tockloader/errs"
)

// EncodeCommand frames cmd and its payload as ESC CMD [payload], with
// every ESC byte inside payload doubled.
func EncodeCommand(cmd byte, payload []byte) []byte {
	out := make([]byte, 0, 2+len(payload)+4)
	out = append(out, Esc, cmd)
	out = appendEscaped(out, payload)
	return out
}

// EncodeResponse frames code and its payload as ESC RSP_START CODE
// [payload], matching the device's own framing so test harnesses (the
// flash-file and loopback transports) can emit responses identically
// to a real bootloader.
func EncodeResponse(code byte, payload []byte) []byte {
	out := make([]byte, 0, 3+len(payload)+4)
	out = append(out, Esc, RspStart, code)
	out = appendEscaped(out, payload)
	return out
}

func appendEscaped(out []byte, payload []byte) []byte {
	for _, b := range payload {
		if b == Esc {
			out = append(out, Esc)
		}
		out = append(out, b)
	}
	return out
}

// responseScanner pulls framed responses off of a raw, unescaped byte
// stream. It is driven by a caller-supplied readByte function so it
// can sit on top of either a real serial port or an in-memory buffer
// (the flash-file test transport).
type responseScanner struct {
	readByte func() (byte, error)
}

// Next reads one complete response frame: RSP_CODE followed by
// payloadLen bytes (after un-escaping), skipping any bytes before the
// first unescaped ESC RSP_START marker. payloadLen is supplied by the
// caller because the bootloader protocol's response lengths are
// command-specific, not self-describing.
func (s *responseScanner) Next(payloadLen int) (code byte, payload []byte, err error) {
	if err := s.syncToFrameStart(); err != nil {
		return 0, nil, err
	}

	code, err = s.readUnescaped()
	if err != nil {
		return 0, nil, err
	}

	payload = make([]byte, 0, payloadLen)
	for len(payload) < payloadLen {
		b, err := s.readUnescaped()
		if err != nil {
			return 0, nil, err
		}
		payload = append(payload, b)
	}

	return code, payload, nil
}

// syncToFrameStart discards bytes until it has consumed an unescaped
// ESC RSP_START pair.
func (s *responseScanner) syncToFrameStart() error {
	for {
		b, err := s.readByte()
		if err != nil {
			return errs.Wrap(errs.KindTransport, err, "reading for response frame start")
		}
		if b != Esc {
			continue
		}
		next, err := s.readByte()
		if err != nil {
			return errs.Wrap(errs.KindTransport, err, "reading for response frame start")
		}
		if next == RspStart {
			return nil
		}
		// An escaped ESC (ESC ESC) mid-noise; keep scanning.
	}
}

// readUnescaped reads one logical byte, collapsing an ESC ESC pair
// into a single ESC.
func (s *responseScanner) readUnescaped() (byte, error) {
	b, err := s.readByte()
	if err != nil {
		return 0, errs.Wrap(errs.KindTransport, err, "reading response byte")
	}
	if b != Esc {
		return b, nil
	}
	b2, err := s.readByte()
	if err != nil {
		return 0, errs.Wrap(errs.KindTransport, err, "reading escaped response byte")
	}
	return b2, nil
}

func newByteReaderFunc(buf *bytes.Reader) func() (byte, error) {
	return func() (byte, error) {
		return buf.ReadByte()
	}
}
