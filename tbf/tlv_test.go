package tbf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/tbf"
)

func freshHeader() *tbf.Header {
	return &tbf.Header{
		Base: tbf.HeaderBase{Version: tbf.Version, Flags: tbf.FlagEnable},
		Tlvs: []tbf.TLV{
			{Body: &tbf.Main{MinRamSz: 2048}},
			{Body: &tbf.PackageName{Name: "blink"}},
		},
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	h := freshHeader()
	h.Base.TotalLength = 4096

	raw, err := h.Encode()
	require.NoError(t, err)
	require.Len(t, raw, int(h.Base.HeaderLength))

	buf := make([]byte, 4096)
	copy(buf, raw)

	got, total, err := tbf.ParseHeader(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 4096, total)
	require.Equal(t, "blink", got.Name())

	main, program := got.BinaryDescriptor()
	require.NotNil(t, main)
	require.Nil(t, program)
	require.Equal(t, uint32(2048), main.MinRamSz)
}

func TestParseHeaderErasedFlash(t *testing.T) {
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xFF
	}
	hdr, total, err := tbf.ParseHeader(buf, 0)
	require.NoError(t, err)
	require.Nil(t, hdr)
	require.Zero(t, total)
}

func TestParseHeaderChecksumMismatch(t *testing.T) {
	h := freshHeader()
	h.Base.TotalLength = 64
	raw, err := h.Encode()
	require.NoError(t, err)

	buf := make([]byte, 64)
	copy(buf, raw)
	buf[8] ^= 0xFF // corrupt the flags word within the checksummed region

	_, _, err = tbf.ParseHeader(buf, 0)
	require.Error(t, err)
}

func TestCanonicalOrderOnEncode(t *testing.T) {
	h := &tbf.Header{
		Base: tbf.HeaderBase{Version: tbf.Version, TotalLength: 64},
		Tlvs: []tbf.TLV{
			{Body: &tbf.KernelVersion{Major: 2}},
			{Body: &tbf.PackageName{Name: "app"}},
			{Body: &tbf.Main{MinRamSz: 1024}},
		},
	}
	raw, err := h.Encode()
	require.NoError(t, err)

	// Main must land first, ahead of PackageName and KernelVersion.
	parsed, _, err := tbf.ParseHeader(padTo(raw, 64), 0)
	require.NoError(t, err)
	require.Equal(t, tbf.TlvMain, parsed.Tlvs[0].Type)
}

func TestModifyAndDeleteTlv(t *testing.T) {
	h := freshHeader()
	h.ModifyTlv(tbf.TlvPackageName, &tbf.PackageName{Name: "renamed"})
	require.Equal(t, "renamed", h.Name())

	require.True(t, h.DeleteTlv(tbf.TlvPackageName))
	require.Equal(t, "", h.Name())
	require.False(t, h.DeleteTlv(tbf.TlvPackageName))
}

func TestIsPadding(t *testing.T) {
	h := &tbf.Header{Base: tbf.HeaderBase{Version: tbf.Version}}
	require.True(t, h.IsPadding())

	h.Tlvs = append(h.Tlvs, tbf.TLV{Body: &tbf.Main{}})
	require.False(t, h.IsPadding())
}

func TestAdjustStartingAddress(t *testing.T) {
	h := freshHeader()
	h.Tlvs = append(h.Tlvs, tbf.TLV{Body: &tbf.FixedAddresses{FlashAddress: 0x1000}})
	h.AdjustStartingAddress(0x2000)

	fa := h.FindTlv(tbf.TlvFixedAddresses)
	require.NotNil(t, fa)
	require.Equal(t, uint32(0x2000), fa.Body.(*tbf.FixedAddresses).FlashAddress)
}

func padTo(buf []byte, n int) []byte {
	if len(buf) >= n {
		return buf[:n]
	}
	out := make([]byte, n)
	copy(out, buf)
	return out
}
