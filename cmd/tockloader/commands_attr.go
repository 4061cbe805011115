package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tock/tockloader/board"
	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/logging"
)

// knownBoards is the set of board names tockloader recognizes well
// enough to pick sensible defaults for (flash layout, page size), akin
// to the rest of the ambient stack's reliance on explicit, reviewable
// tables rather than device auto-detection magic.
var knownBoards = []struct {
	Name, Arch string
	PageSize   uint32
	AppsStart  uint32
}{
	{"hail", "cortex-m4", 512, 0x30000},
	{"imix", "cortex-m4", 512, 0x40000},
	{"nrf52dk", "cortex-m4", 4096, 0x40000},
	{"nrf52840dk", "cortex-m4", 4096, 0x40000},
	{"microbit_v2", "cortex-m4", 4096, 0x40000},
	{"esp32-c3-devkitM-1", "riscv32i", 4096, 0x110000},
}

func addAttrCmds(root *cobra.Command) {
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "print the board's name, architecture, and flash layout",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			fmt.Printf("board:            %s\n", dev.GetBoardName())
			fmt.Printf("arch:             %s\n", dev.GetBoardArch())
			fmt.Printf("page size:        %d\n", dev.GetPageSize())
			fmt.Printf("apps start addr:  0x%x\n", dev.GetAppsStartAddress())
		},
	}
	root.AddCommand(infoCmd)

	listAttrCmd := &cobra.Command{
		Use:   "list-attributes",
		Short: "print every populated board attribute slot",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			attrs, err := dev.GetAllAttributes(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			for i, a := range attrs {
				if a.Empty() {
					continue
				}
				fmt.Printf("%2d  %-24s %s\n", i, a.Key, a.Value)
			}
		},
	}
	root.AddCommand(listAttrCmd)

	setAttrCmd := &cobra.Command{
		Use:   "set-attribute <key>=<value>",
		Short: "set a board attribute, reusing its slot if already present",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			kv := strings.SplitN(args[0], "=", 2)
			if len(kv) != 2 {
				fatal(cmd, errs.Newf(errs.KindUsage, "expected key=value, got %q", args[0]))
			}

			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			index, err := findAttrSlot(ctx, dev, kv[0])
			if err != nil {
				fatal(cmd, err)
			}
			if err := dev.SetAttribute(ctx, index, board.Attribute{Key: kv[0], Value: kv[1]}); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "set %s=%s in slot %d\n", kv[0], kv[1], index)
		},
	}
	root.AddCommand(setAttrCmd)

	removeAttrCmd := &cobra.Command{
		Use:   "remove-attribute <key>",
		Short: "clear a board attribute's slot",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			attrs, err := dev.GetAllAttributes(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			for i, a := range attrs {
				if a.Key == args[0] {
					if err := dev.SetAttribute(ctx, i, board.Attribute{}); err != nil {
						fatal(cmd, err)
					}
					logging.Status(logging.VerbosityDefault, "removed %s from slot %d\n", args[0], i)
					return
				}
			}
			fatal(cmd, errs.Newf(errs.KindUsage, "no attribute named %q", args[0]))
		},
	}
	root.AddCommand(removeAttrCmd)

	setStartCmd := &cobra.Command{
		Use:   "set-start-address <address>",
		Short: "set the apps_start_address attribute",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			addr, err := parseUintArg(args[0])
			if err != nil {
				fatal(cmd, err)
			}

			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			index, err := findAttrSlot(ctx, dev, board.KeyAppsStartAddress)
			if err != nil {
				fatal(cmd, err)
			}
			value := fmt.Sprintf("0x%x", addr)
			if err := dev.SetAttribute(ctx, index, board.Attribute{Key: board.KeyAppsStartAddress, Value: value}); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "set apps_start_address=%s\n", value)
		},
	}
	root.AddCommand(setStartCmd)

	var flagBoardsFile string
	listKnownCmd := &cobra.Command{
		Use:   "list-known-boards",
		Short: "print the boards tockloader has built-in defaults for",
		Run: func(cmd *cobra.Command, args []string) {
			for _, b := range knownBoards {
				fmt.Printf("%-20s arch=%-10s page=%-5d apps_start=0x%x\n", b.Name, b.Arch, b.PageSize, b.AppsStart)
			}
			if flagBoardsFile == "" {
				return
			}
			extra, err := board.LoadDefaults(flagBoardsFile)
			if err != nil {
				fatal(cmd, err)
			}
			for name, d := range extra {
				fmt.Printf("%-20s arch=%-10s page=%-5d apps_start=0x%x (from %s)\n",
					name, d.Arch, d.PageSize, d.AppsStart, flagBoardsFile)
			}
		},
	}
	listKnownCmd.Flags().StringVar(&flagBoardsFile, "boards-file", "boards.toml", "boards.toml to load additional board defaults from")
	root.AddCommand(listKnownCmd)
}

// findAttrSlot returns the index already holding key, or the first
// empty slot if key isn't present yet.
func findAttrSlot(ctx context.Context, dev board.Interface, key string) (int, error) {
	attrs, err := dev.GetAllAttributes(ctx)
	if err != nil {
		return 0, err
	}
	firstEmpty := -1
	for i, a := range attrs {
		if a.Key == key {
			return i, nil
		}
		if firstEmpty < 0 && a.Empty() {
			firstEmpty = i
		}
	}
	if firstEmpty < 0 {
		return 0, errs.Newf(errs.KindUsage, "attribute table is full; no slot available for %q", key)
	}
	return firstEmpty, nil
}
