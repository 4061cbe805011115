// Command tockloader manipulates Tock apps on a board's flash over a
// bootloader serial link or a local flash file. Grounded on
// apache-mynewt-newt's newt.go: one root cobra.Command built by
// parseCmds, persistent flags shared by every subcommand, and a single
// usage/fatal helper that maps an error to an exit code instead of
// panicking or returning raw os.Exit calls scattered through the tree.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/logging"
)

// Version is the tockloader release this binary implements.
const Version = "1.0.0"

// Global flags shared by every subcommand, mirroring NewtNest/NewtLogLevel.
var (
	flagSerialPort string
	flagFlashFile  string
	flagFlashSize  int64
	flagBoardAddr  uint32
	flagPageSize   uint32
	flagAppsStart  uint32
	flagBoardName  string
	flagBoardArch  string
	flagSkipCrc    bool
	flagVerbosity  int
	flagLogFile    string
)

// fatal reports err to stderr, at -v (VerbosityVerbose) or above
// including its stack trace, and exits with the code its errs.Kind maps to. Mirrors
// NewtUsage's cmd.Usage()-then-os.Exit(1) pattern, generalized to the
// external interface's multi-code exit scheme.
func fatal(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}

	code := 1
	if e, ok := err.(*errs.Error); ok {
		code = e.Kind.ExitCode()
		if logging.Verbosity >= logging.VerbosityVerbose && len(e.StackTrace) > 0 {
			fmt.Fprintf(os.Stderr, "%s\n", e.StackTrace)
		}
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	logging.Close()
	os.Exit(code)
}

func parseCmds() *cobra.Command {
	root := &cobra.Command{
		Use:   "tockloader",
		Short: "tockloader loads and manages Tock apps on embedded boards",
		Long: `tockloader installs, updates, and inspects Tock OS applications
on a board's flash, either over a bootloader serial connection or
against a local flash file.`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Usage()
		},
	}

	root.PersistentFlags().StringVarP(&flagSerialPort, "port", "p", "",
		"serial device path of the attached board's bootloader")
	root.PersistentFlags().StringVar(&flagFlashFile, "flash-file", "",
		"operate against a local flash file instead of a serial board")
	root.PersistentFlags().Int64Var(&flagFlashSize, "flash-file-size", 1<<20,
		"size in bytes to create --flash-file with, if it does not exist")
	root.PersistentFlags().Uint32Var(&flagBoardAddr, "board-addr", 0,
		"base address of the board attribute table within flash")
	root.PersistentFlags().Uint32Var(&flagPageSize, "page-size", 512,
		"flash page size reported by a --flash-file device")
	root.PersistentFlags().Uint32Var(&flagAppsStart, "app-address", 0x30000,
		"flash address the first installed app starts at")
	root.PersistentFlags().StringVar(&flagBoardName, "board", "",
		"board name reported by a --flash-file device")
	root.PersistentFlags().StringVar(&flagBoardArch, "arch", "cortex-m4",
		"board architecture reported by a --flash-file device")
	root.PersistentFlags().BoolVar(&flagSkipCrc, "no-verify", false,
		"not applied: a serial connection always runs the post-write CRC check")
	root.PersistentFlags().CountVarP(&flagVerbosity, "verbose", "v",
		"increase output verbosity; repeatable")
	root.PersistentFlags().StringVar(&flagLogFile, "log-file", "",
		"additionally write the structured log stream to this file")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := logging.Init(logrus.WarnLevel, flagLogFile, flagVerbosity+logging.VerbosityDefault); err != nil {
			fatal(cmd, err)
		}
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print the tockloader version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("tockloader version:", Version)
		},
	}
	root.AddCommand(versionCmd)

	addAppCmds(root)
	addFlashCmds(root)
	addAttrCmds(root)
	addTabCmds(root)
	addTbfCmds(root)
	addTickvCmds(root)
	addListenCmd(root)

	return root
}

func main() {
	cmd := parseCmds()
	if err := cmd.Execute(); err != nil {
		fatal(cmd, err)
	}
	logging.Close()
}

// backgroundCtx is used by every subcommand: none of tockloader's
// operations are long enough to need external cancellation beyond the
// process's own lifetime, but every board.Interface method still takes
// a context so a future interactive (--timeout) flag can thread one
// through without changing any interface.
func backgroundCtx() context.Context {
	return context.Background()
}
