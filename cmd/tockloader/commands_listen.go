package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/tock/tockloader/errs"
)

// addListenCmd adds "listen", which streams a board's console output
// (its USART over the same serial path used to enter the bootloader,
// but outside bootloader mode) straight to stdout until interrupted.
// This bypasses board.Interface deliberately: listening reads an
// app's own debug output, not flash, so it has no bootloader framing
// to speak.
func addListenCmd(root *cobra.Command) {
	var baud uint32
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "stream the board's serial console output to stdout",
		Run: func(cmd *cobra.Command, args []string) {
			if flagSerialPort == "" {
				fatal(cmd, errs.New(errs.KindUsage, "listen requires --port"))
			}

			mode := &serial.Mode{BaudRate: int(baud)}
			port, err := serial.Open(flagSerialPort, mode)
			if err != nil {
				fatal(cmd, errs.Wrap(errs.KindTransport, err, "opening %s", flagSerialPort))
			}
			defer port.Close()

			if _, err := io.Copy(os.Stdout, port); err != nil && err != io.EOF {
				fatal(cmd, errs.Wrap(errs.KindTransport, err, "reading from %s", flagSerialPort))
			}
		},
	}
	cmd.Flags().Uint32Var(&baud, "baud", 115200, "baud rate to listen at")
	root.AddCommand(cmd)
}
