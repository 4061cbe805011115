package layout_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/app"
	"github.com/tock/tockloader/layout"
	"github.com/tock/tockloader/tbf"
)

func appWithSize(name string, size uint32) *app.InstalledApp {
	hdr := &tbf.Header{
		Base: tbf.HeaderBase{Version: tbf.Version, HeaderLength: tbf.HeaderBaseSize, TotalLength: size},
		Tlvs: []tbf.TLV{{Body: &tbf.PackageName{Name: name}}, {Body: &tbf.Main{}}},
	}
	return app.NewInstalledApp(0, hdr, nil)
}

func fixedApp(name string, size, flashAddr uint32) *app.InstalledApp {
	a := appWithSize(name, size)
	a.Hdr.Tlvs = append(a.Hdr.Tlvs, tbf.TLV{Body: &tbf.FixedAddresses{FlashAddress: flashAddr}})
	return a
}

func TestPlaceNonFixedAligned(t *testing.T) {
	apps := []app.App{appWithSize("a", 512), appWithSize("b", 512)}
	ops, err := layout.Place(apps, 0x30000, false)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, uint32(0x30000), ops[0].Addr)
	require.Equal(t, uint32(0x30200), ops[1].Addr)
}

func TestPlaceFixedAddressFirst(t *testing.T) {
	a := fixedApp("fixed", 512, 0x30000+tbf.HeaderBaseSize)
	b := appWithSize("free", 512)
	ops, err := layout.Place([]app.App{b, a}, 0x30000, false)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, "fixed", ops[0].App.Name())
	require.Equal(t, uint32(0x30000), ops[0].Addr)
}

func TestPlaceFixedAddressConflictIsError(t *testing.T) {
	a := fixedApp("a", 512, 0x30000+tbf.HeaderBaseSize)
	b := fixedApp("b", 512, 0x30000+tbf.HeaderBaseSize)
	_, err := layout.Place([]app.App{a, b}, 0x30000, false)
	require.Error(t, err)
}

func TestPlaceInsertsPaddingBeforeFixedGap(t *testing.T) {
	a := fixedApp("fixed", 512, 0x31000+tbf.HeaderBaseSize)
	ops, err := layout.Place([]app.App{a}, 0x30000, false)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.True(t, ops[0].App.IsPadding())
	require.Equal(t, uint32(0x30000), ops[0].Addr)
	require.Equal(t, uint32(0x31000), ops[1].Addr)
}

func tabVariant(name string, size, flashAddr uint32) app.TabVariant {
	hdr := &tbf.Header{
		Base: tbf.HeaderBase{Version: tbf.Version, HeaderLength: tbf.HeaderBaseSize, TotalLength: size},
		Tlvs: []tbf.TLV{
			{Body: &tbf.PackageName{Name: name}},
			{Body: &tbf.Main{}},
			{Body: &tbf.FixedAddresses{FlashAddress: flashAddr}},
		},
	}
	return app.TabVariant{Arch: "cortex-m4", Hdr: hdr}
}

func TestPlaceDefersVariantSelectionToFixedSlot(t *testing.T) {
	// A TAB with two fixed-address builds for the same architecture:
	// placement, not the caller, decides which one actually fits.
	ta := &app.TabApp{PkgName: "blink", Variants: []app.TabVariant{
		tabVariant("blink", 512, 0x31000+tbf.HeaderBaseSize),
		tabVariant("blink", 512, 0x30000+tbf.HeaderBaseSize),
	}}
	require.Nil(t, ta.Header()) // unselected before Place runs

	ops, err := layout.Place([]app.App{ta}, 0x30000, false)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, uint32(0x30000), ops[0].Addr)

	require.NotNil(t, ta.Header()) // Place committed to the 0x30000 variant
	require.Equal(t, uint32(0x30000), ops[0].App.Header().Tlvs[2].Body.(*tbf.FixedAddresses).FlashAddress-tbf.HeaderBaseSize)
}

func TestPlaceDefersVariantSelectionSkipsTakenSlot(t *testing.T) {
	taken := fixedApp("other", 512, 0x30000+tbf.HeaderBaseSize)
	ta := &app.TabApp{PkgName: "blink", Variants: []app.TabVariant{
		tabVariant("blink", 512, 0x30000+tbf.HeaderBaseSize),
		tabVariant("blink", 512, 0x31000+tbf.HeaderBaseSize),
	}}

	ops, err := layout.Place([]app.App{taken, ta}, 0x30000, false)
	require.NoError(t, err)
	require.Len(t, ops, 3) // taken, padding to fill the gap, then blink
	last := ops[len(ops)-1]
	require.Equal(t, uint32(0x31000), last.Addr)
	require.Equal(t, "blink", last.App.Name())
}

func TestAlignedOK(t *testing.T) {
	require.True(t, layout.AlignedOK(0x30000, 256))
	require.False(t, layout.AlignedOK(0x30100, 512)) // not a multiple of size
	require.False(t, layout.AlignedOK(0x30000, 300)) // not a power of two
}
