// Runner drives the request/response loop over a framed connection,
// grounded on apache-mynewt-newt's newtmgr/protocol/cmdrunner.go
// CmdRunner: WriteReq serializes and writes a request, ReadResp reads
// and deserializes the next response packet. This adapts that same
// write-then-read shape to the bootloader's ESC-framed commands, with
// a per-call response length (the bootloader protocol has no
// self-describing length prefix) and a context deadline in place of
// newtmgr's unbounded blocking read.
package bootloader

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/tock/tockloader/errs"
)

// DefaultCommandTimeout is the per-command response budget used when
// the caller's context carries no earlier deadline.
const DefaultCommandTimeout = 3 * time.Second

// Runner issues framed commands over conn and parses their responses.
// conn is any byte-oriented transport: a real serial port, or an
// in-memory pipe in tests.
type Runner struct {
	conn io.ReadWriter
}

func NewRunner(conn io.ReadWriter) *Runner {
	return &Runner{conn: conn}
}

// Do sends cmd with payload and reads back a response whose payload is
// exactly respLen bytes. It fails with KindProtocol if the response
// code doesn't equal wantCode (when wantCode is non-negative).
func (r *Runner) Do(ctx context.Context, cmd byte, payload []byte, respLen int, wantCode int) ([]byte, error) {
	frame := EncodeCommand(cmd, payload)
	if _, err := r.conn.Write(frame); err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "writing %s command", commandName(cmd))
	}

	type result struct {
		code byte
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		scanner := &responseScanner{readByte: byteReaderFrom(r.conn)}
		code, data, err := scanner.Next(respLen)
		done <- result{code, data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, errs.Wrap(errs.KindTransport, ctx.Err(), "waiting for %s response", commandName(cmd))
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if wantCode >= 0 && int(res.code) != wantCode {
			return nil, errs.Newf(errs.KindProtocol,
				"%s: unexpected response code 0x%02x", commandName(cmd), res.code)
		}
		return res.data, nil
	}
}

// byteReaderFrom adapts an io.Reader to the one-byte-at-a-time
// function responseScanner expects.
func byteReaderFrom(r io.Reader) func() (byte, error) {
	var buf [1]byte
	return func() (byte, error) {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return buf[0], nil
	}
}

// WithTimeout returns a context bounded by DefaultCommandTimeout
// unless ctx already carries an earlier deadline.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= DefaultCommandTimeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultCommandTimeout)
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func readLe32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
