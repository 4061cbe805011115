package tickv_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/tickv"
)

func TestHashKeyDeterministic(t *testing.T) {
	require.Equal(t, tickv.HashKey("foo"), tickv.HashKey("foo"))
}

func TestHashKeyDiffers(t *testing.T) {
	require.NotEqual(t, tickv.HashKey("foo"), tickv.HashKey("bar"))
}

func TestHashKeyEmpty(t *testing.T) {
	// must not panic on a zero-length key
	_ = tickv.HashKey("")
}
