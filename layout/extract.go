// Extracting installed apps by walking flash, grounded on spec 4.2's
// "extract installed apps" algorithm and on apache-mynewt-newt's
// artifact/flash.FlashArea reading conventions: both walk a flat
// address range and build a list of typed regions from what they find
// there. tbf.ParseHeader supplies the per-record stop/continue
// signal this walk needs (nil header means "end of linked list", not
// an error).
package layout

import (
	"context"

	"github.com/tock/tockloader/app"
	"github.com/tock/tockloader/board"
	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/logging"
	"github.com/tock/tockloader/tbf"
)

// ExtractOpts controls how much of each app's bytes get read.
type ExtractOpts struct {
	// ReadBinary causes the full app (header+binary+footer) to be read
	// into memory, required when an app may need to move.
	ReadBinary bool
	// MaxAppsRegionEnd bounds the walk; zero means "until the device
	// stops reporting valid headers".
	MaxAppsRegionEnd uint32
	// ReadChunkSize bounds how many bytes are probed per ReadRange call
	// while looking for the next header.
	ReadChunkSize uint32
}

// DefaultReadChunkSize is large enough to hold a header plus a few TLVs
// without usually requiring a second read for the common case.
const DefaultReadChunkSize = 4096

// ExtractInstalledApps walks flash starting at dev.GetAppsStartAddress(),
// per spec 4.2: parse a header, record an InstalledApp or PaddingApp,
// advance by total_length, repeat until erased flash, a parse failure,
// or the apps-region end.
func ExtractInstalledApps(ctx context.Context, dev board.Interface, opts ExtractOpts) ([]*app.InstalledApp, []*app.PaddingApp, error) {
	chunk := opts.ReadChunkSize
	if chunk == 0 {
		chunk = DefaultReadChunkSize
	}

	var installed []*app.InstalledApp
	var padding []*app.PaddingApp

	addr := dev.GetAppsStartAddress()
	for {
		if opts.MaxAppsRegionEnd != 0 && addr >= opts.MaxAppsRegionEnd {
			break
		}

		probe, err := dev.ReadRange(ctx, dev.TranslateAddress(addr), chunk)
		if err != nil {
			return nil, nil, errs.Wrap(errs.KindTransport, err, "reading flash at 0x%x", addr)
		}

		hdr, totalLen, err := tbf.ParseHeader(probe, 0)
		if err != nil {
			// A parse failure partway through the walk doesn't invalidate
			// what's already been found: log it and return the partial
			// lists rather than aborting the whole extraction.
			logging.StatusErr(logging.VerbosityDefault, "stopping flash walk at 0x%x: %v\n", addr, err)
			break
		}
		if hdr == nil {
			// Erased flash or an unparseable header: end of the
			// installed-apps linked list.
			break
		}

		var bin []byte
		if opts.ReadBinary {
			if uint32(totalLen) <= chunk {
				bin = probe[:totalLen]
			} else {
				full, err := dev.ReadRange(ctx, dev.TranslateAddress(addr), uint32(totalLen))
				if err != nil {
					return nil, nil, errs.Wrap(errs.KindTransport, err, "reading app binary at 0x%x", addr)
				}
				bin = full
			}
		}

		if hdr.IsPadding() {
			padding = append(padding, &app.PaddingApp{Addr: addr, Hdr: hdr})
		} else {
			installed = append(installed, app.NewInstalledApp(addr, hdr, bin))
		}

		addr += uint32(totalLen)
	}

	return installed, padding, nil
}
