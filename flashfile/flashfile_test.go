package flashfile_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/board"
	"github.com/tock/tockloader/flashfile"
)

func TestCreateIsErased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	require.NoError(t, flashfile.Create(path, 4096))

	tr := flashfile.New(path, 0, 512, 1024, "nrf52dk", "cortex-m4")
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()

	buf, err := tr.ReadRange(context.Background(), 0, 4096)
	require.NoError(t, err)
	for _, b := range buf {
		require.Equal(t, byte(0xFF), b)
	}
}

func TestReadWriteRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	require.NoError(t, flashfile.Create(path, 8192))

	tr := flashfile.New(path, 0, 512, 1024, "nrf52dk", "cortex-m4")
	ctx := context.Background()
	require.NoError(t, tr.Open(ctx))
	defer tr.Close()

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, tr.FlashBinary(ctx, 100, data))

	back, err := tr.ReadRange(ctx, 100, 4)
	require.NoError(t, err)
	require.Equal(t, data, back)
}

func TestErasePage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	require.NoError(t, flashfile.Create(path, 8192))

	tr := flashfile.New(path, 0, 512, 1024, "nrf52dk", "cortex-m4")
	ctx := context.Background()
	require.NoError(t, tr.Open(ctx))
	defer tr.Close()

	require.NoError(t, tr.FlashBinary(ctx, 0, []byte{1, 2, 3, 4}))
	require.NoError(t, tr.ErasePage(ctx, 0))

	back, err := tr.ReadRange(ctx, 0, 512)
	require.NoError(t, err)
	for _, b := range back {
		require.Equal(t, byte(0xFF), b)
	}
}

func TestAttributeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	require.NoError(t, flashfile.Create(path, 1<<20))

	tr := flashfile.New(path, 0, 512, 0x20000, "nrf52dk", "cortex-m4")
	ctx := context.Background()
	require.NoError(t, tr.Open(ctx))
	defer tr.Close()

	attr := board.Attribute{Key: "board", Value: "nrf52dk"}
	require.NoError(t, tr.SetAttribute(ctx, 0, attr))

	back, err := tr.GetAttribute(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, attr, back)

	empty, err := tr.GetAttribute(ctx, 1)
	require.NoError(t, err)
	require.True(t, empty.Empty())
}

func TestTranslateAddress(t *testing.T) {
	tr := flashfile.New("/dev/null", 0x10000000, 512, 0x20000, "nrf52dk", "cortex-m4")
	require.Equal(t, uint32(0x100), tr.TranslateAddress(0x10000100))
}

func TestAttachedBoardExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	require.NoError(t, flashfile.Create(path, 4096))

	tr := flashfile.New(path, 0, 512, 1024, "nrf52dk", "cortex-m4")
	exists, err := tr.AttachedBoardExists(context.Background())
	require.NoError(t, err)
	require.True(t, exists)

	missing := flashfile.New(filepath.Join(t.TempDir(), "missing.bin"), 0, 512, 1024, "", "")
	exists, err = missing.AttachedBoardExists(context.Background())
	require.NoError(t, err)
	require.False(t, exists)
}
