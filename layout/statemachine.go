// Install state machine, per spec 4.2: Idle -> OpenLink ->
// EnterBootloader -> ReadAttributes -> ExtractApps -> (MergeApps) ->
// Placement -> Writes -> ClearTail -> ExitBootloader -> Done, with any
// step able to transition to Abort, which still runs ExitBootloader on
// a best-effort basis. Grounded on apache-mynewt-newt's newt.go
// command dispatch, which runs a fixed sequence of resolve/validate/
// build steps and reports a util.NewtError on the first failing step;
// this generalizes that "ordered steps, first failure wins, report
// through one error type" shape to an explicit state enum so each
// state transition is inspectable rather than implicit in call order.
package layout

import (
	"context"

	"github.com/tock/tockloader/app"
	"github.com/tock/tockloader/board"
	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/logging"
)

// State names the install state machine's position.
type State int

const (
	StateIdle State = iota
	StateOpenLink
	StateEnterBootloader
	StateReadAttributes
	StateExtractApps
	StateMergeApps
	StatePlacement
	StateWrites
	StateClearTail
	StateExitBootloader
	StateDone
	StateAbort
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOpenLink:
		return "OpenLink"
	case StateEnterBootloader:
		return "EnterBootloader"
	case StateReadAttributes:
		return "ReadAttributes"
	case StateExtractApps:
		return "ExtractApps"
	case StateMergeApps:
		return "MergeApps"
	case StatePlacement:
		return "Placement"
	case StateWrites:
		return "Writes"
	case StateClearTail:
		return "ClearTail"
	case StateExitBootloader:
		return "ExitBootloader"
	case StateDone:
		return "Done"
	case StateAbort:
		return "Abort"
	default:
		return "Unknown"
	}
}

// InstallPlan bundles everything the Installer needs once a plan has
// been computed, so callers can inspect it once Run returns.
type InstallPlan struct {
	Ops        []Op
	WriteSpans []WriteSpan
}

// Installer drives one run of the install state machine against dev.
type Installer struct {
	Dev           board.Interface
	NewApps       []*app.TabApp
	Policy        MergePolicy
	PreserveOrder bool
	BundleApps    bool

	State State
	Plan  *InstallPlan
}

// Run executes every state in order, returning the first error
// encountered. On error it transitions to Abort and still attempts
// ExitBootloaderMode, per spec 4.2's best-effort Abort handling.
func (in *Installer) Run(ctx context.Context) error {
	in.State = StateOpenLink
	if err := in.Dev.Open(ctx); err != nil {
		return in.abort(ctx, err)
	}

	in.State = StateEnterBootloader
	if err := in.Dev.EnterBootloaderMode(ctx); err != nil {
		return in.abort(ctx, err)
	}

	in.State = StateReadAttributes
	if _, err := in.Dev.GetAllAttributes(ctx); err != nil {
		return in.abort(ctx, err)
	}

	in.State = StateExtractApps
	installed, padding, err := ExtractInstalledApps(ctx, in.Dev, ExtractOpts{ReadBinary: true})
	if err != nil {
		return in.abort(ctx, err)
	}
	_ = padding // padding apps are recomputed fresh by placement, not preserved across a merge

	in.State = StateMergeApps
	merged, err := MergeApps(installed, in.NewApps, in.Policy)
	if err != nil {
		return in.abort(ctx, err)
	}

	in.State = StatePlacement
	ops, err := Place(merged, in.Dev.GetAppsStartAddress(), in.PreserveOrder)
	if err != nil {
		return in.abort(ctx, err)
	}

	in.State = StateWrites
	spans, err := BuildWriteSpans(ctx, in.Dev, ops, in.Dev.GetPageSize(), in.BundleApps)
	if err != nil {
		return in.abort(ctx, err)
	}
	in.Plan = &InstallPlan{Ops: ops, WriteSpans: spans}

	for _, span := range spans {
		if err := in.Dev.FlashBinary(ctx, in.Dev.TranslateAddress(span.Addr), span.Data); err != nil {
			return in.abort(ctx, err)
		}
	}

	in.State = StateClearTail
	if err := in.clearTail(ctx, ops); err != nil {
		return in.abort(ctx, err)
	}

	in.State = StateExitBootloader
	if err := in.Dev.ExitBootloaderMode(ctx); err != nil {
		return errs.Wrap(errs.KindTransport, err, "exiting bootloader mode after a successful install")
	}

	in.State = StateDone
	return nil
}

// clearTail invalidates the header immediately following the last
// placed app, per spec 4.2 step 5's "explicit clear at address"
// terminator option.
func (in *Installer) clearTail(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	last := ops[len(ops)-1]
	tailAddr := last.Addr + last.App.Size()
	return in.Dev.ClearBytes(ctx, in.Dev.TranslateAddress(tailAddr), in.Dev.GetPageSize())
}

// abort transitions to Abort, logs the triggering error, and still
// attempts ExitBootloaderMode on a best-effort basis before returning
// the original error.
func (in *Installer) abort(ctx context.Context, cause error) error {
	failedIn := in.State
	in.State = StateAbort
	logging.StatusErr(logging.VerbosityQuiet, "install aborted in state %s: %v\n", failedIn, cause)
	if in.Dev != nil {
		_ = in.Dev.ExitBootloaderMode(ctx)
	}
	return cause
}
