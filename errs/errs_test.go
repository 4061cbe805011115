package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/errs"
)

func TestErrorFormatsAddrAndTlv(t *testing.T) {
	e := errs.New(errs.KindInvalidTlv, "bad length")
	require.Equal(t, "InvalidTlv: bad length", e.Error())

	withAddr := e.WithAddr(0x30000)
	require.Contains(t, withAddr.Error(), "addr=0x30000")

	withBoth := withAddr.WithTlv(5)
	require.Contains(t, withBoth.Error(), "addr=0x30000")
	require.Contains(t, withBoth.Error(), "tlv=5")
}

func TestWrapPreservesParent(t *testing.T) {
	parent := errors.New("short read")
	e := errs.Wrap(errs.KindTransport, parent, "reading header")

	require.Equal(t, parent, errors.Unwrap(e))
	require.Contains(t, e.Error(), "reading header")
}

func TestOfUnwindsParentChain(t *testing.T) {
	inner := errs.New(errs.KindInvalidHeader, "bad checksum")
	outer := errs.Wrap(errs.KindProtocol, inner, "parsing failed")

	require.True(t, errs.Of(outer, errs.KindProtocol))
	require.True(t, errs.Of(outer, errs.KindInvalidHeader))
	require.False(t, errs.Of(outer, errs.KindUsage))
}

func TestExitCodeMapping(t *testing.T) {
	require.Equal(t, 2, errs.KindUsage.ExitCode())
	require.Equal(t, 3, errs.KindTransport.ExitCode())
	require.Equal(t, 4, errs.KindPlacementImpossible.ExitCode())
	require.Equal(t, 5, errs.KindFlashVerifyFailed.ExitCode())
	require.Equal(t, 1, errs.KindUnknown.ExitCode())
}
