package logging_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/logging"
)

func TestInitDuplicatesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tockloader.log")
	require.NoError(t, logging.Init(logrus.InfoLevel, path, logging.VerbosityDefault))
	logrus.Info("probe message")
	require.NoError(t, logging.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "probe message")
}

func TestStatusGatedByVerbosity(t *testing.T) {
	require.NoError(t, logging.Init(logrus.InfoLevel, "", logging.VerbosityQuiet))
	defer logging.Close()

	out := captureStdout(t, func() {
		logging.Status(logging.VerbosityVerbose, "should not appear\n")
		logging.Status(logging.VerbosityQuiet, "should appear\n")
	})

	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "should appear")
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	require.NoError(t, w.Close())

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}
