// Merge policy, per spec 4.2: decide which installed apps survive and
// which new TAB apps get added, before placement runs. Grounded on
// apache-mynewt-newt's FindTlvs/RemoveTlvsIf filter-by-predicate
// pattern (artifact/image/image.go), generalized here from filtering a
// header's TLV slice to filtering a flash's app slice.
package layout

import (
	"github.com/tock/tockloader/app"
	"github.com/tock/tockloader/errs"
)

// ReplaceMode selects how new TAB apps interact with already-installed
// apps sharing the same name.
type ReplaceMode int

const (
	// ReplaceYes removes any installed app whose name matches a new one.
	ReplaceYes ReplaceMode = iota
	// ReplaceNo keeps duplicates: both the old and new app are placed.
	ReplaceNo
	// ReplaceOnly installs only new apps whose names already match an
	// installed app, dropping everything else.
	ReplaceOnly
)

// MergePolicy bundles the merge inputs from spec 4.2.
type MergePolicy struct {
	Replace ReplaceMode
	// Erase, if true, deletes every non-sticky installed app before
	// any replace logic runs.
	Erase bool
	// Force allows removing sticky apps; without it, a sticky app
	// scheduled for removal is kept instead.
	Force bool
}

// MergeApps applies policy to installed and newApps (each newApps
// entry narrowed to its board-architecture variants, but not yet
// Select()-ed: choosing among several fixed-address builds is
// deferred to Place, once it knows which address each one would
// actually land at), and returns the ordered list of apps the
// placement algorithm should place.
func MergeApps(installed []*app.InstalledApp, newApps []*app.TabApp, policy MergePolicy) ([]app.App, error) {
	survivors := make([]*app.InstalledApp, 0, len(installed))
	for _, ia := range installed {
		if policy.Erase && !removable(ia, policy) {
			// Erase removes every non-sticky app; a sticky one without
			// Force survives regardless of Erase.
			survivors = append(survivors, ia)
			continue
		}
		if policy.Erase {
			continue
		}
		survivors = append(survivors, ia)
	}

	newNames := make(map[string]bool, len(newApps))
	for _, na := range newApps {
		newNames[na.Name()] = true
	}

	var kept []*app.InstalledApp
	for _, ia := range survivors {
		matches := newNames[ia.Name()]
		switch policy.Replace {
		case ReplaceYes, ReplaceOnly:
			if matches && removable(ia, policy) {
				continue // dropped in favor of the new app
			}
			kept = append(kept, ia)
		case ReplaceNo:
			kept = append(kept, ia)
		}
	}

	var out []app.App
	for _, ia := range kept {
		out = append(out, ia)
	}

	for _, na := range newApps {
		switch policy.Replace {
		case ReplaceOnly:
			if !installedHasName(installed, na.Name()) {
				continue
			}
		}
		if len(na.Variants) == 0 {
			return nil, errs.Newf(errs.KindUsage, "TAB %q has no variant for the board architecture", na.Name())
		}
		out = append(out, na)
	}

	return out, nil
}

// removable reports whether an installed app may be removed under the
// current policy: non-sticky apps are always removable; sticky apps
// require Force.
func removable(ia *app.InstalledApp, policy MergePolicy) bool {
	if !ia.Sticky {
		return true
	}
	return policy.Force
}

func installedHasName(installed []*app.InstalledApp, name string) bool {
	for _, ia := range installed {
		if ia.Name() == name {
			return true
		}
	}
	return false
}
