package layout_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/app"
	"github.com/tock/tockloader/layout"
	"github.com/tock/tockloader/tbf"
)

func installedApp(name string, sticky bool) *app.InstalledApp {
	flags := uint32(0)
	if sticky {
		flags |= tbf.FlagSticky
	}
	hdr := &tbf.Header{
		Base: tbf.HeaderBase{Version: tbf.Version, HeaderLength: tbf.HeaderBaseSize, TotalLength: 512, Flags: flags},
		Tlvs: []tbf.TLV{{Body: &tbf.PackageName{Name: name}}, {Body: &tbf.Main{}}},
	}
	ia := app.NewInstalledApp(0, hdr, nil)
	ia.Sticky = sticky
	return ia
}

func tabAppNamed(name string) *app.TabApp {
	hdr := &tbf.Header{
		Base: tbf.HeaderBase{Version: tbf.Version, HeaderLength: tbf.HeaderBaseSize, TotalLength: 1024},
		Tlvs: []tbf.TLV{{Body: &tbf.PackageName{Name: name}}, {Body: &tbf.Main{}}},
	}
	ta := &app.TabApp{PkgName: name, Variants: []app.TabVariant{{Arch: "cortex-m4", Hdr: hdr}}}
	ta.Select(&ta.Variants[0])
	return ta
}

func TestMergeReplaceYesDropsOldVersion(t *testing.T) {
	installed := []*app.InstalledApp{installedApp("blink", false)}
	newApps := []*app.TabApp{tabAppNamed("blink")}

	out, err := layout.MergeApps(installed, newApps, layout.MergePolicy{Replace: layout.ReplaceYes})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint32(1024), out[0].Size())
}

func TestMergeReplaceNoKeepsBoth(t *testing.T) {
	installed := []*app.InstalledApp{installedApp("blink", false)}
	newApps := []*app.TabApp{tabAppNamed("blink")}

	out, err := layout.MergeApps(installed, newApps, layout.MergePolicy{Replace: layout.ReplaceNo})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestMergeReplaceOnlyDropsUnmatchedNewApps(t *testing.T) {
	installed := []*app.InstalledApp{installedApp("blink", false)}
	newApps := []*app.TabApp{tabAppNamed("blink"), tabAppNamed("never_installed")}

	out, err := layout.MergeApps(installed, newApps, layout.MergePolicy{Replace: layout.ReplaceOnly})
	require.NoError(t, err)
	require.Len(t, out, 1) // installed "blink" replaced by the new "blink", "never_installed" dropped
	for _, a := range out {
		require.Equal(t, "blink", a.Name())
	}
}

func TestMergeStickyAppSurvivesReplaceWithoutForce(t *testing.T) {
	installed := []*app.InstalledApp{installedApp("blink", true)}
	newApps := []*app.TabApp{tabAppNamed("blink")}

	out, err := layout.MergeApps(installed, newApps, layout.MergePolicy{Replace: layout.ReplaceYes})
	require.NoError(t, err)
	require.Len(t, out, 2) // sticky original kept, new one added alongside
}

func TestMergeEraseDropsNonStickyApps(t *testing.T) {
	installed := []*app.InstalledApp{installedApp("sticky", true), installedApp("loose", false)}

	out, err := layout.MergeApps(installed, nil, layout.MergePolicy{Erase: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "sticky", out[0].Name())
}

func TestMergeEraseForceDropsEverything(t *testing.T) {
	installed := []*app.InstalledApp{installedApp("sticky", true), installedApp("loose", false)}

	out, err := layout.MergeApps(installed, nil, layout.MergePolicy{Erase: true, Force: true})
	require.NoError(t, err)
	require.Len(t, out, 0)
}
