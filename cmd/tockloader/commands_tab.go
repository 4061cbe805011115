package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tock/tockloader/tab"
)

func addTabCmds(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "inspect-tab <tab-file>",
		Short: "print a TAB file's metadata and variants",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			t, err := tab.Open(args[0])
			if err != nil {
				fatal(cmd, err)
			}

			md := t.Metadata
			fmt.Printf("name:                         %s\n", md.Name)
			fmt.Printf("tab-version:                  %d\n", md.TabVersion)
			fmt.Printf("kernel-version:               %s\n", md.KernelVersion)
			fmt.Printf("minimum-tock-kernel-version:  %s\n", md.MinimumTockKernelVersion)
			fmt.Printf("build-date:                   %s\n", md.BuildDate)
			if len(md.OnlyForBoards) > 0 {
				fmt.Printf("only-for-boards:              %v\n", md.OnlyForBoards)
			}

			fmt.Println("variants:")
			for _, v := range t.App.Variants {
				suffix := v.Suffix
				if suffix == "" {
					suffix = "-"
				}
				fmt.Printf("  arch=%-12s suffix=%-10s size=%d bytes  name=%s\n",
					v.Arch, suffix, v.Hdr.Base.TotalLength, v.Hdr.Name())
			}
		},
	}
	root.AddCommand(cmd)
}
