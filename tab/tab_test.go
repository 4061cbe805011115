package tab_test

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/tab"
	"github.com/tock/tockloader/tbf"
)

func buildTbf(t *testing.T, name string) []byte {
	t.Helper()
	hdr := &tbf.Header{
		Base: tbf.HeaderBase{Version: tbf.Version},
		Tlvs: []tbf.TLV{
			{Body: &tbf.Main{InitFn: 0x20, ProtectFn: 0, MinRamSz: 2048}},
			{Body: &tbf.PackageName{Name: name}},
		},
	}
	hdr.SetEnabled(true)
	out, err := hdr.Encode()
	require.NoError(t, err)
	hdr.SetAppSize(uint32(len(out)) + 512)
	out, err = hdr.Encode()
	require.NoError(t, err)
	full := make([]byte, hdr.Base.TotalLength)
	copy(full, out)
	return full
}

func writeTab(t *testing.T, path string, metadata string, members map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	tw := tar.NewWriter(f)
	defer tw.Close()

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "metadata.toml", Mode: 0644, Size: int64(len(metadata)), Typeflag: tar.TypeReg,
	}))
	_, err = tw.Write([]byte(metadata))
	require.NoError(t, err)

	for name, data := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0644, Size: int64(len(data)), Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
}

func TestOpenSingleArch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blink.tab")
	writeTab(t, path, `
tab-version = 1
name = "blink"
kernel-version = "2"
`, map[string][]byte{
		"cortex-m4.tbf": buildTbf(t, "blink"),
	})

	tb, err := tab.Open(path)
	require.NoError(t, err)
	require.Equal(t, "blink", tb.Metadata.Name)
	require.Equal(t, 1, tb.Metadata.TabVersion)
	require.Len(t, tb.App.Variants, 1)
	require.Equal(t, "cortex-m4", tb.App.Variants[0].Arch)
	require.Equal(t, "", tb.App.Variants[0].Suffix)
}

func TestOpenMultipleFixedAddressVariants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blink.tab")
	writeTab(t, path, `
name = "blink"
only-for-boards = ["nrf52dk"]
`, map[string][]byte{
		"cortex-m4.0x30000.tbf": buildTbf(t, "blink"),
		"cortex-m4.0x40000.tbf": buildTbf(t, "blink"),
	})

	tb, err := tab.Open(path)
	require.NoError(t, err)
	require.Len(t, tb.App.Variants, 2)
	require.True(t, tb.Metadata.SupportsBoard("nrf52dk"))
	require.False(t, tb.Metadata.SupportsBoard("esp32"))

	variants := tb.App.VariantsForArch("cortex-m4")
	require.Len(t, variants, 2)
}

func TestOpenMissingMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tab")
	f, err := os.Create(path)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	data := buildTbf(t, "x")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "cortex-m4.tbf", Mode: 0644, Size: int64(len(data)), Typeflag: tar.TypeReg}))
	_, err = tw.Write(data)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())

	_, err = tab.Open(path)
	require.Error(t, err)
}
