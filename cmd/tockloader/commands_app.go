package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tock/tockloader/app"
	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/layout"
	"github.com/tock/tockloader/logging"
	"github.com/tock/tockloader/tab"
)

func addAppCmds(root *cobra.Command) {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list apps currently installed on the board",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			installed, padding, err := layout.ExtractInstalledApps(ctx, dev, layout.ExtractOpts{})
			if err != nil {
				fatal(cmd, err)
			}

			for _, ia := range installed {
				status := "enabled"
				if !ia.Header().Enabled() {
					status = "disabled"
				}
				sticky := ""
				if ia.Sticky {
					sticky = " sticky"
				}
				fmt.Printf("0x%08x  %-24s %6d bytes  %s%s\n", ia.Addr, ia.Name(), ia.Size(), status, sticky)
			}
			logging.Status(logging.VerbosityVerbose, "%d padding region(s)\n", len(padding))
		},
	}
	root.AddCommand(listCmd)

	installCmd := &cobra.Command{
		Use:   "install <tab-file>...",
		Short: "install one or more TABs onto the board",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runInstall(cmd, args)
		},
	}
	addMergeFlags(installCmd)
	root.AddCommand(installCmd)

	updateCmd := &cobra.Command{
		Use:   "update <tab-file>...",
		Short: "replace already-installed apps with newer TAB builds",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			flagReplace = "only"
			runInstall(cmd, args)
		},
	}
	addMergeFlags(updateCmd)
	root.AddCommand(updateCmd)

	uninstallCmd := &cobra.Command{
		Use:   "uninstall <app-name>",
		Short: "remove a single installed app by name",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			installed, _, err := layout.ExtractInstalledApps(ctx, dev, layout.ExtractOpts{ReadBinary: true})
			if err != nil {
				fatal(cmd, err)
			}

			target := findInstalled(installed, args[0])
			if target == nil {
				fatal(cmd, errs.Newf(errs.KindUsage, "no installed app named %q", args[0]))
			}
			if target.Sticky && !flagForce {
				fatal(cmd, errs.Newf(errs.KindUsage, "app %q is sticky; pass --force to remove it", args[0]))
			}

			var kept []app.App
			for _, ia := range installed {
				if ia == target {
					continue
				}
				kept = append(kept, ia)
			}

			if err := writePlan(ctx, dev, kept); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "uninstalled %q\n", args[0])
		},
	}
	uninstallCmd.Flags().BoolVar(&flagForce, "force", false, "allow removing a sticky app")
	root.AddCommand(uninstallCmd)

	root.AddCommand(toggleCmd("enable-app", "mark an installed app enabled", func(h appHeader) { h.SetEnabled(true) }))
	root.AddCommand(toggleCmd("disable-app", "mark an installed app disabled", func(h appHeader) { h.SetEnabled(false) }))
	root.AddCommand(toggleCmd("sticky-app", "mark an installed app sticky (protected from --erase)", func(h appHeader) { h.SetSticky(true) }))
	root.AddCommand(toggleCmd("unsticky-app", "clear an installed app's sticky flag", func(h appHeader) { h.SetSticky(false) }))

	eraseCmd := &cobra.Command{
		Use:   "erase-apps",
		Short: "erase every non-sticky installed app",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			installed, _, err := layout.ExtractInstalledApps(ctx, dev, layout.ExtractOpts{ReadBinary: true})
			if err != nil {
				fatal(cmd, err)
			}

			var kept []app.App
			for _, ia := range installed {
				if ia.Sticky && !flagForce {
					kept = append(kept, ia)
				}
			}

			if err := writePlan(ctx, dev, kept); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "erased %d app(s)\n", len(installed)-len(kept))
		},
	}
	eraseCmd.Flags().BoolVar(&flagForce, "force", false, "also erase sticky apps")
	root.AddCommand(eraseCmd)
}

// appHeader is the subset of *tbf.Header a toggle command needs.
type appHeader interface {
	SetEnabled(bool)
	SetSticky(bool)
}

// toggleCmd builds one of the four flag-toggle subcommands: each finds
// the named installed app, applies mutate to its header, and re-runs
// the write plan so only the app's own header page is re-flashed
// (BuildWriteSpans skips every op whose bytes are unchanged).
func toggleCmd(use, short string, mutate func(appHeader)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <app-name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := backgroundCtx()
			dev, err := openDevice(ctx)
			if err != nil {
				fatal(cmd, err)
			}
			defer closeDevice(ctx, dev)

			installed, _, err := layout.ExtractInstalledApps(ctx, dev, layout.ExtractOpts{ReadBinary: true})
			if err != nil {
				fatal(cmd, err)
			}

			target := findInstalled(installed, args[0])
			if target == nil {
				fatal(cmd, errs.Newf(errs.KindUsage, "no installed app named %q", args[0]))
			}
			mutate(target.Header())
			if use == "sticky-app" {
				target.Sticky = true
			} else if use == "unsticky-app" {
				target.Sticky = false
			}
			target.SetBinary(reencode(target))

			if err := writePlan(ctx, dev, toApps(installed)); err != nil {
				fatal(cmd, err)
			}
			logging.Status(logging.VerbosityDefault, "%s: %s\n", use, args[0])
		},
	}
}

// reencode rebuilds ia's binary with its current header, preserving
// everything past the header (binary, footer) unchanged.
func reencode(ia *app.InstalledApp) []byte {
	hdrBytes, err := ia.Header().Encode()
	if err != nil || ia.Bin == nil {
		return ia.Bin
	}
	out := make([]byte, len(ia.Bin))
	copy(out, ia.Bin)
	copy(out, hdrBytes)
	return out
}

func runInstall(cmd *cobra.Command, args []string) {
	ctx := backgroundCtx()

	policy, err := mergePolicy()
	if err != nil {
		fatal(cmd, err)
	}

	var newApps []*app.TabApp
	for _, path := range args {
		t, err := tab.Open(path)
		if err != nil {
			fatal(cmd, err)
		}
		newApps = append(newApps, t.App)
	}

	dev, err := openDevice(ctx)
	if err != nil {
		fatal(cmd, err)
	}
	defer closeDevice(ctx, dev)

	// A TAB with no variant for this board's architecture is skipped
	// rather than aborting the whole install: narrow the rest down to
	// their arch-matching variants so Place can still defer which
	// fixed-address build to use until it knows where each lands.
	arch := dev.GetBoardArch()
	var toInstall []*app.TabApp
	for _, na := range newApps {
		variants := na.VariantsForArch(arch)
		if len(variants) == 0 {
			logging.StatusErr(logging.VerbosityDefault, "%s: skipping %q: no variant for board architecture %q\n",
				errs.KindUnsupportedArch, na.PkgName, arch)
			continue
		}
		na.Variants = variants
		toInstall = append(toInstall, na)
	}
	newApps = toInstall

	installed, _, err := layout.ExtractInstalledApps(ctx, dev, layout.ExtractOpts{ReadBinary: true})
	if err != nil {
		fatal(cmd, err)
	}

	merged, err := layout.MergeApps(installed, newApps, policy)
	if err != nil {
		fatal(cmd, err)
	}

	if err := writePlan(ctx, dev, merged); err != nil {
		fatal(cmd, err)
	}

	wanted := make(map[*app.TabApp]bool, len(newApps))
	for _, na := range newApps {
		wanted[na] = true
	}
	installedCount := 0
	for _, a := range merged {
		if ta, ok := a.(*app.TabApp); ok && wanted[ta] {
			installedCount++
		}
	}
	logging.Status(logging.VerbosityDefault, "installed %d app(s)\n", installedCount)
}
