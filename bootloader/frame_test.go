package bootloader

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeCommandEscapesEsc(t *testing.T) {
	frame := EncodeCommand(CmdPing, []byte{Esc, 0x01})
	require.Equal(t, []byte{Esc, CmdPing, Esc, Esc, 0x01}, frame)
}

func TestEncodeResponseFraming(t *testing.T) {
	frame := EncodeResponse(RspPong, []byte{0xAA})
	require.Equal(t, []byte{Esc, RspStart, RspPong, 0xAA}, frame)
}

func TestResponseScannerNextSkipsNoise(t *testing.T) {
	buf := bytes.NewReader(append([]byte{0x00, 0x11}, EncodeResponse(RspOk, []byte{0x42, 0x43})...))
	scanner := &responseScanner{readByte: newByteReaderFunc(buf)}

	code, payload, err := scanner.Next(2)
	require.NoError(t, err)
	require.Equal(t, RspOk, code)
	require.Equal(t, []byte{0x42, 0x43}, payload)
}

func TestResponseScannerUnescapesPayload(t *testing.T) {
	frame := EncodeResponse(RspReadRange, []byte{Esc, 0x99})
	buf := bytes.NewReader(frame)
	scanner := &responseScanner{readByte: newByteReaderFunc(buf)}

	code, payload, err := scanner.Next(2)
	require.NoError(t, err)
	require.Equal(t, RspReadRange, code)
	require.Equal(t, []byte{Esc, 0x99}, payload)
}
