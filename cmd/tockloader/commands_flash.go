package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/logging"
)

var flagAddress uint32

func addFlashCmds(root *cobra.Command) {
	flashCmd := &cobra.Command{
		Use:   "flash <binary-file>",
		Short: "write a raw binary file to flash at --address, bypassing TBF parsing",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			data, err := os.ReadFile(args[0])
			if err != nil {
				fatal(cmd, errs.Wrap(errs.KindUsage, err, "reading %s", args[0]))
			}

			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			if err := dev.FlashBinary(ctx, dev.TranslateAddress(flagAddress), data); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "wrote %d bytes to 0x%x\n", len(data), flagAddress)
		},
	}
	flashCmd.Flags().Uint32Var(&flagAddress, "address", 0, "flash address to write at")
	root.AddCommand(flashCmd)

	var flagLength uint32
	var flagOutput string
	readCmd := &cobra.Command{
		Use:   "read",
		Short: "read a range of flash and print or save it",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			data, err := dev.ReadRange(ctx, dev.TranslateAddress(flagAddress), flagLength)
			if err != nil {
				fatal(cmd, err)
			}

			if flagOutput != "" {
				if err := os.WriteFile(flagOutput, data, 0644); err != nil {
					fatal(cmd, errs.Wrap(errs.KindUsage, err, "writing %s", flagOutput))
				}
				logging.Status(logging.VerbosityDefault, "wrote %d bytes to %s\n", len(data), flagOutput)
				return
			}
			fmt.Print(hexDump(flagAddress, data))
		},
	}
	readCmd.Flags().Uint32Var(&flagAddress, "address", 0, "flash address to read from")
	readCmd.Flags().Uint32Var(&flagLength, "length", 256, "number of bytes to read")
	readCmd.Flags().StringVar(&flagOutput, "output", "", "save the read bytes to this file instead of printing them")
	root.AddCommand(readCmd)

	writeCmd := &cobra.Command{
		Use:   "write <address> <file>",
		Short: "write a file's bytes to a flash address",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			addr, err := parseUintArg(args[0])
			if err != nil {
				fatal(cmd, err)
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				fatal(cmd, errs.Wrap(errs.KindUsage, err, "reading %s", args[1]))
			}

			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			if err := dev.FlashBinary(ctx, dev.TranslateAddress(addr), data); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "wrote %d bytes to 0x%x\n", len(data), addr)
		},
	}
	root.AddCommand(writeCmd)

	dumpCmd := &cobra.Command{
		Use:   "dump-flash-page <address>",
		Short: "hex-dump one page of flash starting at address",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			addr, err := parseUintArg(args[0])
			if err != nil {
				fatal(cmd, err)
			}

			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			data, err := dev.ReadRange(ctx, dev.TranslateAddress(addr), dev.GetPageSize())
			if err != nil {
				fatal(cmd, err)
			}
			fmt.Print(hexDump(addr, data))
		},
	}
	root.AddCommand(dumpCmd)
}

// hexDump renders data as 16-byte rows prefixed with their address,
// in the conventional xxd-style layout.
func hexDump(base uint32, data []byte) string {
	out := ""
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[i:end]
		out += fmt.Sprintf("%08x  ", base+uint32(i))
		for j, b := range row {
			out += fmt.Sprintf("%02x ", b)
			if j == 7 {
				out += " "
			}
		}
		out += "\n"
	}
	return out
}
