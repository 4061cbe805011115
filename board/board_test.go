package board_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/board"
)

func TestEncodeDecodeAttributeRoundTrip(t *testing.T) {
	attr := board.Attribute{Key: "board", Value: "hail"}
	raw, err := board.EncodeAttribute(attr)
	require.NoError(t, err)
	require.Len(t, raw, board.AttributeSlotSize)

	got := board.DecodeAttribute(raw)
	require.Equal(t, attr, got)
}

func TestEncodeAttributeEmpty(t *testing.T) {
	raw, err := board.EncodeAttribute(board.Attribute{})
	require.NoError(t, err)
	for _, b := range raw {
		require.Equal(t, byte(0xFF), b)
	}
	require.True(t, board.DecodeAttribute(raw).Empty())
}

func TestEncodeAttributeTooLong(t *testing.T) {
	big := make([]byte, board.AttributeSlotSize)
	_, err := board.EncodeAttribute(board.Attribute{Key: "k", Value: string(big)})
	require.Error(t, err)
}

func TestDecodeAttributeAllZero(t *testing.T) {
	raw := make([]byte, board.AttributeSlotSize)
	require.True(t, board.DecodeAttribute(raw).Empty())
}

func TestDecodeAttributeWrongSize(t *testing.T) {
	require.True(t, board.DecodeAttribute([]byte{1, 2, 3}).Empty())
}

func TestDecodeAttributeNoValueTerminator(t *testing.T) {
	raw := make([]byte, board.AttributeSlotSize)
	copy(raw, []byte("board\x00imix"))
	got := board.DecodeAttribute(raw)
	require.Equal(t, "board", got.Key)
	require.Equal(t, "imix", got.Value)
}
