package layout_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/app"
	"github.com/tock/tockloader/flashfile"
	"github.com/tock/tockloader/layout"
	"github.com/tock/tockloader/tbf"
)

func newFlashDevice(t *testing.T, appsStart uint32) *flashfile.Transport {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flash.bin")
	require.NoError(t, flashfile.Create(path, 256*1024))
	dev := flashfile.New(path, 0, 512, appsStart, "test", "cortex-m4")
	require.NoError(t, dev.Open(context.Background()))
	t.Cleanup(func() { dev.Close() })
	return dev
}

func encodeApp(t *testing.T, name string, totalLen uint32) []byte {
	t.Helper()
	hdr := &tbf.Header{
		Base: tbf.HeaderBase{Version: tbf.Version, TotalLength: totalLen},
		Tlvs: []tbf.TLV{{Body: &tbf.PackageName{Name: name}}, {Body: &tbf.Main{}}},
	}
	raw, err := hdr.Encode()
	require.NoError(t, err)
	out := make([]byte, totalLen)
	copy(out, raw)
	return out
}

func TestExtractInstalledApps(t *testing.T) {
	dev := newFlashDevice(t, 0x30000)
	ctx := context.Background()

	require.NoError(t, dev.FlashBinary(ctx, 0x30000, encodeApp(t, "one", 512)))
	require.NoError(t, dev.FlashBinary(ctx, 0x30200, encodeApp(t, "two", 512)))

	installed, padding, err := layout.ExtractInstalledApps(ctx, dev, layout.ExtractOpts{})
	require.NoError(t, err)
	require.Len(t, installed, 2)
	require.Empty(t, padding)
	require.Equal(t, "one", installed[0].Name())
	require.Equal(t, "two", installed[1].Name())
}

func TestExtractStopsAtErasedFlash(t *testing.T) {
	dev := newFlashDevice(t, 0x30000)
	ctx := context.Background()
	require.NoError(t, dev.FlashBinary(ctx, 0x30000, encodeApp(t, "one", 512)))

	installed, _, err := layout.ExtractInstalledApps(ctx, dev, layout.ExtractOpts{})
	require.NoError(t, err)
	require.Len(t, installed, 1)
}

func TestExtractLogsParseFailureAndReturnsPartialList(t *testing.T) {
	dev := newFlashDevice(t, 0x30000)
	ctx := context.Background()
	require.NoError(t, dev.FlashBinary(ctx, 0x30000, encodeApp(t, "one", 512)))

	corrupt := encodeApp(t, "two", 512)
	corrupt[16] ^= 0xFF // flip a byte inside the checksum-covered TLV region
	require.NoError(t, dev.FlashBinary(ctx, 0x30200, corrupt))

	installed, _, err := layout.ExtractInstalledApps(ctx, dev, layout.ExtractOpts{})
	require.NoError(t, err) // a parse failure mid-walk ends the walk, not the call
	require.Len(t, installed, 1)
	require.Equal(t, "one", installed[0].Name())
}

func TestBuildWriteSpansSkipsNoopWrite(t *testing.T) {
	dev := newFlashDevice(t, 0x30000)
	ctx := context.Background()
	data := encodeApp(t, "one", 512)
	require.NoError(t, dev.FlashBinary(ctx, 0x30000, data))

	ops := []layout.Op{{Addr: 0x30000, App: app.NewInstalledApp(0x30000, mustParse(t, data), data)}}
	spans, err := layout.BuildWriteSpans(ctx, dev, ops, dev.GetPageSize(), false)
	require.NoError(t, err)
	require.Empty(t, spans) // identical to what's already on flash
}

func TestBuildWriteSpansPageAligns(t *testing.T) {
	dev := newFlashDevice(t, 0x30000)
	ctx := context.Background()
	data := encodeApp(t, "one", 300)

	ops := []layout.Op{{Addr: 0x30000, App: app.NewInstalledApp(0x30000, mustParse(t, data), data)}}
	spans, err := layout.BuildWriteSpans(ctx, dev, ops, dev.GetPageSize(), false)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	require.Equal(t, uint32(0), spans[0].Addr%dev.GetPageSize())
	require.Zero(t, uint32(len(spans[0].Data))%dev.GetPageSize())
}

func mustParse(t *testing.T, raw []byte) *tbf.Header {
	t.Helper()
	hdr, _, err := tbf.ParseHeader(raw, 0)
	require.NoError(t, err)
	return hdr
}
