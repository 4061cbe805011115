package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tock/tockloader/app"
	"github.com/tock/tockloader/board"
	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/layout"
	"github.com/tock/tockloader/logging"
)

var (
	flagReplace       string
	flagErase         bool
	flagForce         bool
	flagPreserveOrder bool
	flagBundleApps    bool
)

func addMergeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagReplace, "replace", "yes",
		"how new apps replace installed apps sharing their name: yes, no, or only")
	cmd.Flags().BoolVar(&flagErase, "erase", false,
		"remove every non-sticky installed app before merging in new apps")
	cmd.Flags().BoolVar(&flagForce, "force", false,
		"allow removing sticky apps")
	cmd.Flags().BoolVar(&flagPreserveOrder, "preserve-order", false,
		"place fixed-address apps in their current order instead of sorted by address")
	cmd.Flags().BoolVar(&flagBundleApps, "bundle-apps", false,
		"write the whole apps region as a single flash operation")
}

func mergePolicy() (layout.MergePolicy, error) {
	var mode layout.ReplaceMode
	switch flagReplace {
	case "yes":
		mode = layout.ReplaceYes
	case "no":
		mode = layout.ReplaceNo
	case "only":
		mode = layout.ReplaceOnly
	default:
		return layout.MergePolicy{}, errs.Newf(errs.KindUsage, "unknown --replace value %q (want yes, no, or only)", flagReplace)
	}
	return layout.MergePolicy{Replace: mode, Erase: flagErase, Force: flagForce}, nil
}

// writePlan places apps and flashes the resulting write spans, then
// clears the tail header past the last app. Shared by every subcommand
// that ends in a re-layout of the apps region (install, update,
// uninstall, enable/disable/sticky toggles).
func writePlan(ctx context.Context, dev board.Interface, apps []app.App) error {
	ops, err := layout.Place(apps, dev.GetAppsStartAddress(), flagPreserveOrder)
	if err != nil {
		return err
	}

	spans, err := layout.BuildWriteSpans(ctx, dev, ops, dev.GetPageSize(), flagBundleApps)
	if err != nil {
		return err
	}

	for _, span := range spans {
		logging.Status(logging.VerbosityDefault, "writing %d bytes at 0x%x\n", len(span.Data), span.Addr)
		if err := dev.FlashBinary(ctx, dev.TranslateAddress(span.Addr), span.Data); err != nil {
			return err
		}
	}

	if len(ops) > 0 {
		last := ops[len(ops)-1]
		tail := last.Addr + last.App.Size()
		if err := dev.ClearBytes(ctx, dev.TranslateAddress(tail), dev.GetPageSize()); err != nil {
			return err
		}
	}
	return nil
}

// findInstalled returns the installed app named name, or nil.
func findInstalled(installed []*app.InstalledApp, name string) *app.InstalledApp {
	for _, ia := range installed {
		if ia.Name() == name {
			return ia
		}
	}
	return nil
}

func toApps(installed []*app.InstalledApp) []app.App {
	out := make([]app.App, len(installed))
	for i, ia := range installed {
		out[i] = ia
	}
	return out
}
