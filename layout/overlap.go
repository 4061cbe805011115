// Range overlap/conflict detection, grounded on
// apache-mynewt-newt's artifact/flash.FlashArea: that type sorts a set
// of named flash areas by offset and reports overlaps between
// neighbors. Placement uses the same idea at write-span granularity to
// confirm no two ops claim intersecting flash before they're ever
// written to a device.
package layout

// byteRange is a half-open [Start, End) span.
type byteRange struct {
	Start uint32
	End   uint32
}

func rangesOverlap(a, b byteRange) bool {
	return a.Start < b.End && b.Start < a.End
}

// FindOverlap returns the first pair of ops whose [Addr, Addr+Size())
// ranges intersect, or (-1, -1) if the plan is conflict-free. Called
// as a final sanity check after placement, mirroring FlashArea's
// neighbor-overlap check over a sorted area list.
func FindOverlap(ops []Op) (i, j int) {
	ranges := make([]byteRange, len(ops))
	for i, op := range ops {
		ranges[i] = byteRange{Start: op.Addr, End: op.Addr + op.App.Size()}
	}

	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			if rangesOverlap(ranges[i], ranges[j]) {
				return i, j
			}
		}
	}
	return -1, -1
}
