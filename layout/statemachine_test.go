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

func newTabApp(t *testing.T, name string, size uint32) *app.TabApp {
	t.Helper()
	hdr := &tbf.Header{
		Base: tbf.HeaderBase{Version: tbf.Version, TotalLength: size},
		Tlvs: []tbf.TLV{{Body: &tbf.PackageName{Name: name}}, {Body: &tbf.Main{}}},
	}
	raw, err := hdr.Encode()
	require.NoError(t, err)
	bin := make([]byte, size)
	copy(bin, raw)

	parsed, _, err := tbf.ParseHeader(bin, 0)
	require.NoError(t, err)

	ta := &app.TabApp{PkgName: name, Variants: []app.TabVariant{{Arch: "cortex-m4", Hdr: parsed, Bin: bin}}}
	ta.Select(&ta.Variants[0])
	return ta
}

func TestInstallerRunEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	require.NoError(t, flashfile.Create(path, 256*1024))
	dev := flashfile.New(path, 0, 512, 0x30000, "test", "cortex-m4")

	in := &layout.Installer{
		Dev:     dev,
		NewApps: []*app.TabApp{newTabApp(t, "blink", 512)},
	}
	require.NoError(t, in.Run(context.Background()))
	require.Equal(t, layout.StateDone, in.State)
	require.NotNil(t, in.Plan)
	require.Len(t, in.Plan.Ops, 1)

	installed, _, err := layout.ExtractInstalledApps(context.Background(), dev, layout.ExtractOpts{})
	require.NoError(t, err)
	require.Len(t, installed, 1)
	require.Equal(t, "blink", installed[0].Name())
}

func TestInstallerAbortsOnPlacementImpossible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	require.NoError(t, flashfile.Create(path, 256*1024))
	dev := flashfile.New(path, 0, 512, 0x30000, "test", "cortex-m4")

	// Two apps independently claiming the same fixed address is unplaceable.
	a := newTabApp(t, "a", 512)
	a.Variants[0].Hdr.Tlvs = append(a.Variants[0].Hdr.Tlvs, tbf.TLV{Body: &tbf.FixedAddresses{FlashAddress: 0x30000 + uint32(a.Variants[0].Hdr.Base.HeaderLength)}})
	b := newTabApp(t, "b", 512)
	b.Variants[0].Hdr.Tlvs = append(b.Variants[0].Hdr.Tlvs, tbf.TLV{Body: &tbf.FixedAddresses{FlashAddress: 0x30000 + uint32(b.Variants[0].Hdr.Base.HeaderLength)}})

	in := &layout.Installer{Dev: dev, NewApps: []*app.TabApp{a, b}}
	err := in.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, layout.StateAbort, in.State)
}
