package tickv_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/tickv"
)

func TestObjectEncodeDecodeRoundTrip(t *testing.T) {
	obj := tickv.Object{Valid: true, HashedKey: 0xdeadbeefcafef00d, Value: []byte("hello")}
	raw := tickv.Encode(obj)
	require.Len(t, raw, tickv.Size(len(obj.Value)))

	got, n, err := tickv.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, len(raw), n)
	require.Equal(t, obj.HashedKey, got.HashedKey)
	require.Equal(t, obj.Value, got.Value)
	require.True(t, got.Valid)
}

func TestObjectDecodeChecksumMismatch(t *testing.T) {
	raw := tickv.Encode(tickv.Object{Valid: true, HashedKey: 1, Value: []byte("x")})
	raw[len(raw)-1] ^= 0xFF

	_, _, err := tickv.Decode(raw)
	require.Error(t, err)
}

func TestObjectDecodeTooShort(t *testing.T) {
	_, _, err := tickv.Decode([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestWrapUnwrapTockValue(t *testing.T) {
	wrapped := tickv.WrapTockValue(42, []byte("payload"))
	writeId, value, err := tickv.UnwrapTockValue(wrapped)
	require.NoError(t, err)
	require.Equal(t, uint32(42), writeId)
	require.Equal(t, []byte("payload"), value)
}

func TestUnwrapTockValueBadLength(t *testing.T) {
	wrapped := tickv.WrapTockValue(1, []byte("payload"))
	wrapped = wrapped[:len(wrapped)-1] // truncate so the declared length no longer matches
	_, _, err := tickv.UnwrapTockValue(wrapped)
	require.Error(t, err)
}
