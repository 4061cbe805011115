package tickv_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/flashfile"
	"github.com/tock/tockloader/tickv"
)

func newTestStore(t *testing.T) *tickv.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flash.bin")
	require.NoError(t, flashfile.Create(path, 4*4096))
	dev := flashfile.New(path, 0, 4096, 0, "test", "cortex-m4")
	require.NoError(t, dev.Open(context.Background()))
	t.Cleanup(func() { dev.Close() })
	return &tickv.Store{Dev: dev, BaseAddr: 0, PageSize: 4096, Regions: 4}
}

func TestStoreAppendGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := tickv.HashKey("foo")

	require.NoError(t, s.Append(ctx, key, tickv.WrapTockValue(1, []byte("bar"))))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	_, value, err := tickv.UnwrapTockValue(got)
	require.NoError(t, err)
	require.Equal(t, []byte("bar"), value)
}

func TestStoreAppendGetReturnsLastAppendedValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := tickv.HashKey("foo")

	require.NoError(t, s.Append(ctx, key, tickv.WrapTockValue(1, []byte("first"))))
	require.NoError(t, s.Append(ctx, key, tickv.WrapTockValue(1, []byte("second"))))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	_, value, err := tickv.UnwrapTockValue(got)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), value)
}

func TestStoreInvalidateClearsOnlyNewestDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := tickv.HashKey("foo")

	require.NoError(t, s.Append(ctx, key, tickv.WrapTockValue(1, []byte("first"))))
	require.NoError(t, s.Append(ctx, key, tickv.WrapTockValue(1, []byte("second"))))
	require.NoError(t, s.Invalidate(ctx, key))

	// Invalidate clears the newest copy; the earlier duplicate is still
	// a valid object for this key, so it's what Get now resolves to.
	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	_, value, err := tickv.UnwrapTockValue(got)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), value)
}

func TestStoreGetMissingKey(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), tickv.HashKey("missing"))
	require.Error(t, err)
}

func TestStoreInvalidate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := tickv.HashKey("foo")

	require.NoError(t, s.Append(ctx, key, tickv.WrapTockValue(1, []byte("bar"))))
	require.NoError(t, s.Invalidate(ctx, key))

	_, err := s.Get(ctx, key)
	require.Error(t, err)
}

func TestStoreCleanupReclaimsSpace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := tickv.HashKey(string(rune('a' + i)))
		require.NoError(t, s.Append(ctx, key, tickv.WrapTockValue(1, make([]byte, 100))))
	}
	// invalidate all but the last
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Invalidate(ctx, tickv.HashKey(string(rune('a'+i)))))
	}
	require.NoError(t, s.Cleanup(ctx))

	last := tickv.HashKey(string(rune('a' + 4)))
	got, err := s.Get(ctx, last)
	require.NoError(t, err)
	_, value, err := tickv.UnwrapTockValue(got)
	require.NoError(t, err)
	require.Len(t, value, 100)
}
