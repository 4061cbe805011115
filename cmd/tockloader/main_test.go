package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCmd executes the full command tree against args and returns
// whatever the command printed to stdout, exercising cobra wiring,
// flag parsing, and openDevice's flash-file path together rather than
// mocking any of them individually. Subcommands print with fmt.Printf
// straight to os.Stdout rather than cmd.OutOrStdout, so stdout itself
// is captured rather than cobra's output buffer.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w

	root := parseCmds()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	execErr := root.Execute()

	os.Stdout = orig
	require.NoError(t, w.Close())
	captured, err := io.ReadAll(r)
	require.NoError(t, err)

	require.NoError(t, execErr)
	return string(captured)
}

func TestInfoAgainstFreshFlashFile(t *testing.T) {
	flash := filepath.Join(t.TempDir(), "flash.bin")

	out := runCmd(t, "--flash-file", flash, "--board", "hail", "--arch", "cortex-m4", "info")
	require.Contains(t, out, "hail")
	require.Contains(t, out, "cortex-m4")
}

func TestSetAndListAttributeRoundTrip(t *testing.T) {
	flash := filepath.Join(t.TempDir(), "flash.bin")
	baseArgs := []string{"--flash-file", flash, "--board", "hail", "--arch", "cortex-m4"}

	runCmd(t, append(append([]string{}, baseArgs...), "set-attribute", "boardname=hail")...)

	out := runCmd(t, append(append([]string{}, baseArgs...), "list-attributes")...)
	require.Contains(t, out, "boardname")
	require.Contains(t, out, "hail")
}

func TestVersionCommand(t *testing.T) {
	out := runCmd(t, "version")
	require.Contains(t, out, Version)
}
