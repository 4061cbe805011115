// Placement algorithm, per spec 4.2 steps 1-5: fixed-address apps
// first, then non-fixed apps aligned to the MPU predicate, padding
// inserted for any gap, and a terminator after the last app. Grounded
// on apache-mynewt-newt's artifact/flash.FlashArea sort/overlap
// helpers: that package's job is deciding where flash areas fit
// without colliding, which is exactly what placement decides for TBF
// apps at a finer grain (fixed addresses, then a forward-packing
// cursor).
package layout

import (
	"sort"

	"github.com/tock/tockloader/app"
	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/tbf"
)

// FixedAddrAlignment is the granularity fixed-address candidates are
// rounded down to, per spec 4.2 step 1.
const FixedAddrAlignment = 1024

// MinNonFixedSize is the smallest power-of-two size aligned_ok accepts
// for a non-fixed app on an ARMv7-M Cortex-M MPU, per spec 4.2's
// placement inputs.
const MinNonFixedSize = 256

// minimumSizer is implemented by app types whose total_length can be
// padded to satisfy MPU alignment.
type minimumSizer interface {
	SetMinimumSize(uint32)
}

// candidateSelector is implemented by app types that can't resolve to
// a single header until placement has picked among several builds,
// e.g. a TabApp carrying more than one fixed-address variant for the
// board's architecture: selection defers until placement knows which
// address actually fits. Place tries each candidate's address in turn
// and only commits, via SelectCandidate, once one actually fits the
// current layout.
type candidateSelector interface {
	Candidates() []*tbf.Header
	SelectCandidate(i int)
}

// Op is one placement decision: write app (or padding) at Addr.
type Op struct {
	Addr uint32
	App  app.App
}

// AlignedOK is the MPU-alignment predicate: size is a power of two
// >= MinNonFixedSize, and addr is a multiple of size.
func AlignedOK(addr, size uint32) bool {
	if size < MinNonFixedSize || size&(size-1) != 0 {
		return false
	}
	return addr%size == 0
}

// nextPowerOfTwoAtLeast returns the smallest power of two >= n and
// >= MinNonFixedSize.
func nextPowerOfTwoAtLeast(n uint32) uint32 {
	size := uint32(MinNonFixedSize)
	for size < n {
		size <<= 1
	}
	return size
}

// Place runs the full placement algorithm over apps (installed apps
// that survived merge, plus TabApp entries not yet Select()-ed) and
// returns the write plan. preserveOrder, when true, skips sorting the
// fixed-address apps by address and places them in input order; they
// are still placed before every non-fixed app, and non-fixed apps keep
// their input order either way.
func Place(apps []app.App, appsStart uint32, preserveOrder bool) ([]Op, error) {
	fixed, nonFixed := splitByFixedAddress(apps)

	if !preserveOrder {
		sort.SliceStable(fixed, func(i, j int) bool {
			return minFixedCandidate(fixed[i]) < minFixedCandidate(fixed[j])
		})
	}

	var ops []Op
	cursor := appsStart
	seenAddrs := map[uint32]bool{}

	placeFixed := func(a app.App) error {
		cands := fixedCandidatesOf(a)
		sort.Slice(cands, func(i, j int) bool { return cands[i].addr < cands[j].addr })

		sawDuplicate, hasDuplicate := uint32(0), false
		for _, c := range cands {
			addr := c.addr - c.addr%FixedAddrAlignment
			if seenAddrs[addr] {
				sawDuplicate, hasDuplicate = addr, true
				continue
			}
			if addr < cursor {
				continue
			}

			if c.index >= 0 {
				a.(candidateSelector).SelectCandidate(c.index)
			}
			seenAddrs[addr] = true

			if addr > cursor {
				ops = append(ops, Op{Addr: cursor, App: app.NewPaddingApp(cursor, addr-cursor)})
			}
			ops = append(ops, Op{Addr: addr, App: a})
			cursor = addr + a.Size()
			return nil
		}

		if hasDuplicate && len(cands) == 1 {
			return errs.Newf(errs.KindPlacementImpossible,
				"two apps claim the same fixed address 0x%x", sawDuplicate)
		}
		// Smallest candidate >= cursor: if every candidate falls behind,
		// there is no valid placement for this app.
		return errs.Newf(errs.KindPlacementImpossible,
			"app %q has no fixed-address candidate at or after 0x%x", a.Name(), cursor)
	}

	for _, a := range fixed {
		if err := placeFixed(a); err != nil {
			return nil, err
		}
	}

	order := nonFixed
	if preserveOrder {
		order = apps // re-derive original order, filtering to non-fixed below
	}

	placed := map[app.App]bool{}
	for _, op := range ops {
		placed[op.App] = true
	}

	for _, a := range order {
		if isFixedAddress(a) || placed[a] {
			continue
		}

		// A pending app with no fixed-address candidate has nothing to
		// defer: resolve it to its one usable variant now so Size() and
		// SetMinimumSize below see a real header.
		if a.Header() == nil {
			if cs, ok := a.(candidateSelector); ok {
				cs.SelectCandidate(0)
			}
		}

		size := a.Size()
		aligned := nextPowerOfTwoAtLeast(size)
		gapStart := cursor
		for !AlignedOK(cursor, aligned) {
			cursor++
		}
		if cursor > gapStart {
			ops = append(ops, Op{Addr: gapStart, App: app.NewPaddingApp(gapStart, cursor-gapStart)})
		}

		if aligned > size {
			if resizer, ok := a.(minimumSizer); ok {
				resizer.SetMinimumSize(aligned)
			}
		}

		ops = append(ops, Op{Addr: cursor, App: a})
		cursor += aligned
		placed[a] = true
	}

	if i, j := FindOverlap(ops); i >= 0 {
		return nil, errs.Newf(errs.KindPlacementImpossible,
			"placement produced overlapping ops for %q and %q", ops[i].App.Name(), ops[j].App.Name())
	}

	return ops, nil
}

func splitByFixedAddress(apps []app.App) (fixed, nonFixed []app.App) {
	for _, a := range apps {
		if isFixedAddress(a) {
			fixed = append(fixed, a)
		} else {
			nonFixed = append(nonFixed, a)
		}
	}
	return
}

func isFixedAddress(a app.App) bool {
	return len(fixedCandidatesOf(a)) > 0
}

// addrCandidate pairs a candidate fixed address with the index into
// Candidates() it came from, or -1 if a is already resolved to a
// single header and needs no SelectCandidate call.
type addrCandidate struct {
	index int
	addr  uint32
}

// fixedCandidatesOf returns every fixed_app_binary_addr - header_size
// candidate a could be placed at, per spec 4.2 step 1. An already-
// resolved app yields at most one candidate; a pending multi-variant
// TabApp yields one candidate per fixed-address variant.
func fixedCandidatesOf(a app.App) []addrCandidate {
	if hdr := a.Header(); hdr != nil {
		if addr, ok := fixedAddrFromHeader(hdr); ok {
			return []addrCandidate{{index: -1, addr: addr}}
		}
		return nil
	}
	cs, ok := a.(candidateSelector)
	if !ok {
		return nil
	}
	var out []addrCandidate
	for i, hdr := range cs.Candidates() {
		if addr, ok := fixedAddrFromHeader(hdr); ok {
			out = append(out, addrCandidate{index: i, addr: addr})
		}
	}
	return out
}

func minFixedCandidate(a app.App) uint32 {
	cands := fixedCandidatesOf(a)
	min := cands[0].addr
	for _, c := range cands[1:] {
		if c.addr < min {
			min = c.addr
		}
	}
	return min
}

// fixedAddrFromHeader returns fixed_app_binary_addr - header_size for
// hdr, if it carries a FixedAddresses TLV.
func fixedAddrFromHeader(hdr *tbf.Header) (uint32, bool) {
	for i := range hdr.Tlvs {
		if fa, ok := hdr.Tlvs[i].Body.(*tbf.FixedAddresses); ok {
			return fa.FlashAddress - uint32(hdr.Base.HeaderLength), true
		}
	}
	return 0, false
}
