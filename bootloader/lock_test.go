package bootloader_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/bootloader"
)

func TestAcquirePortLockThenConflict(t *testing.T) {
	lock, err := bootloader.AcquirePortLock("/dev/ttyUSB-test-lock")
	require.NoError(t, err)
	defer lock.Release()

	_, err = bootloader.AcquirePortLock("/dev/ttyUSB-test-lock")
	require.Error(t, err)
}

func TestPortLockReleaseFreesPort(t *testing.T) {
	lock, err := bootloader.AcquirePortLock("/dev/ttyUSB-test-release")
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock2, err := bootloader.AcquirePortLock("/dev/ttyUSB-test-release")
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}
