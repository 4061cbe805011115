package board_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/board"
)

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boards.toml")
	contents := `
[boards.hail]
arch = "cortex-m4"
page_size = 512
apps_start_address = 0x30000
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	defaults, err := board.LoadDefaults(path)
	require.NoError(t, err)
	require.Equal(t, "cortex-m4", defaults["hail"].Arch)
	require.Equal(t, uint32(512), defaults["hail"].PageSize)
}

func TestLoadDefaultsMissingFileIsNotAnError(t *testing.T) {
	defaults, err := board.LoadDefaults(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Nil(t, defaults)
}
