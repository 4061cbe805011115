package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/logging"
	"github.com/tock/tockloader/tickv"
)

var (
	flagTickvBase    uint32
	flagTickvRegions int
	flagWriteId      uint32
)

func addTickvCmds(root *cobra.Command) {
	tickvCmd := &cobra.Command{
		Use:   "tickv",
		Short: "read and write a TicKV key-value store living in flash",
	}
	tickvCmd.PersistentFlags().Uint32Var(&flagTickvBase, "tickv-base", 0,
		"flash address the TicKV region starts at")
	tickvCmd.PersistentFlags().IntVar(&flagTickvRegions, "tickv-regions", 16,
		"number of equal-sized pages in the TicKV region")
	tickvCmd.PersistentFlags().Uint32Var(&flagWriteId, "write-id", 0,
		"Tock-layer write_id to tag the value with")
	root.AddCommand(tickvCmd)

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "print the value stored under key",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			store := &tickv.Store{Dev: dev, BaseAddr: flagTickvBase, PageSize: dev.GetPageSize(), Regions: flagTickvRegions}
			wrapped, err := store.Get(ctx, tickv.HashKey(args[0]))
			if err != nil {
				fatal(cmd, err)
			}
			_, value, err := tickv.UnwrapTockValue(wrapped)
			if err != nil {
				fatal(cmd, err)
			}
			fmt.Print(hexDump(0, value))
		},
	}
	tickvCmd.AddCommand(getCmd)

	var flagValueFile string
	appendCmd := &cobra.Command{
		Use:   "append <key> <value>",
		Short: "append a new value under key (value, or --value-file contents)",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			var value []byte
			switch {
			case flagValueFile != "":
				v, err := os.ReadFile(flagValueFile)
				if err != nil {
					fatal(cmd, errs.Wrap(errs.KindUsage, err, "reading %s", flagValueFile))
				}
				value = v
			case len(args) == 2:
				value = []byte(args[1])
			default:
				fatal(cmd, errs.New(errs.KindUsage, "provide a value argument or --value-file"))
			}

			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			store := &tickv.Store{Dev: dev, BaseAddr: flagTickvBase, PageSize: dev.GetPageSize(), Regions: flagTickvRegions}
			wrapped := tickv.WrapTockValue(flagWriteId, value)
			if err := store.Append(ctx, tickv.HashKey(args[0]), wrapped); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "appended %d bytes under %q\n", len(value), args[0])
		},
	}
	appendCmd.Flags().StringVar(&flagValueFile, "value-file", "", "read the value from this file instead of an argument")
	tickvCmd.AddCommand(appendCmd)

	invalidateCmd := &cobra.Command{
		Use:   "invalidate <key>",
		Short: "mark the object stored under key as invalid",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			store := &tickv.Store{Dev: dev, BaseAddr: flagTickvBase, PageSize: dev.GetPageSize(), Regions: flagTickvRegions}
			if err := store.Invalidate(ctx, tickv.HashKey(args[0])); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "invalidated %q\n", args[0])
		},
	}
	tickvCmd.AddCommand(invalidateCmd)

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "compact every TicKV region, reclaiming space held by invalidated objects",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			store := &tickv.Store{Dev: dev, BaseAddr: flagTickvBase, PageSize: dev.GetPageSize(), Regions: flagTickvRegions}
			if err := store.Cleanup(ctx); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "compacted %d region(s)\n", flagTickvRegions)
		},
	}
	tickvCmd.AddCommand(cleanupCmd)

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "erase the entire TicKV region back to erased flash",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			length := uint32(flagTickvRegions) * dev.GetPageSize()
			if err := dev.ClearBytes(ctx, dev.TranslateAddress(flagTickvBase), length); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "erased %d bytes of TicKV region starting at 0x%x\n", length, flagTickvBase)
		},
	}
	tickvCmd.AddCommand(resetCmd)

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "print every region's raw bytes",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			for r := 0; r < flagTickvRegions; r++ {
				addr := flagTickvBase + uint32(r)*dev.GetPageSize()
				data, err := dev.ReadRange(ctx, dev.TranslateAddress(addr), dev.GetPageSize())
				if err != nil {
					fatal(cmd, err)
				}
				fmt.Printf("region %d (0x%x):\n%s", r, addr, hexDump(addr, data))
			}
		},
	}
	tickvCmd.AddCommand(dumpCmd)
}
