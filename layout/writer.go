// Write strategy, per spec 4.2: skip no-op writes, expand each op to
// page boundaries (merging adjacent ops), and optionally bundle the
// whole apps region into one write. Grounded on
// apache-mynewt-newt's artifact/flash.FlashArea sort-then-merge
// approach to reasoning about a list of byte ranges, applied here to
// merging placement ops into page-aligned write spans instead of
// detecting flash-area overlaps.
package layout

import (
	"bytes"
	"context"

	"github.com/tock/tockloader/board"
)

// WriteSpan is one physical write: PageAligned [Addr, Addr+len(Data))
// after no-op ops have been dropped and adjacent ops merged.
type WriteSpan struct {
	Addr uint32
	Data []byte
}

// BuildWriteSpans turns placement ops into page-aligned write spans.
// existing is read from the device to detect no-op writes; pageSize
// must be the board's page size. When bundle is true, every op is
// concatenated into a single span covering the whole apps region
// (spec 4.2's bundle_apps=true).
func BuildWriteSpans(ctx context.Context, dev board.Interface, ops []Op, pageSize uint32, bundle bool) ([]WriteSpan, error) {
	type rawOp struct {
		addr uint32
		data []byte
	}

	raws := make([]rawOp, 0, len(ops))
	for _, op := range ops {
		data := op.App.Binary()
		if data == nil {
			continue
		}
		raws = append(raws, rawOp{addr: op.Addr, data: data})
	}

	if len(raws) == 0 {
		return nil, nil
	}

	if bundle {
		start := raws[0].addr
		end := raws[len(raws)-1].addr + uint32(len(raws[len(raws)-1].data))
		buf := make([]byte, end-start)
		for i := range buf {
			buf[i] = 0xFF
		}
		for _, r := range raws {
			copy(buf[r.addr-start:], r.data)
		}
		span, err := pageAlignSpan(ctx, dev, start, buf, pageSize)
		if err != nil {
			return nil, err
		}
		if span == nil {
			return nil, nil
		}
		return []WriteSpan{*span}, nil
	}

	var spans []WriteSpan
	for _, r := range raws {
		if isNoopWrite(ctx, dev, r.addr, r.data) {
			continue
		}
		span, err := pageAlignSpan(ctx, dev, r.addr, r.data, pageSize)
		if err != nil {
			return nil, err
		}
		if span != nil {
			spans = append(spans, *span)
		}
	}

	return mergeAdjacent(spans, pageSize), nil
}

// isNoopWrite reports whether the bytes already on flash at addr equal
// data, in which case the write can be skipped entirely.
func isNoopWrite(ctx context.Context, dev board.Interface, addr uint32, data []byte) bool {
	existing, err := dev.ReadRange(ctx, dev.TranslateAddress(addr), uint32(len(data)))
	if err != nil {
		return false
	}
	return bytes.Equal(existing, data)
}

// pageAlignSpan expands [addr, addr+len(data)) out to full pages,
// padding the extension with the bytes already on flash so the write
// doesn't clobber a neighboring app sharing the same page.
func pageAlignSpan(ctx context.Context, dev board.Interface, addr uint32, data []byte, pageSize uint32) (*WriteSpan, error) {
	if pageSize == 0 {
		return &WriteSpan{Addr: addr, Data: data}, nil
	}

	alignedAddr := addr - addr%pageSize
	end := addr + uint32(len(data))
	alignedEnd := end
	if rem := alignedEnd % pageSize; rem != 0 {
		alignedEnd += pageSize - rem
	}

	if alignedAddr == addr && alignedEnd == end {
		return &WriteSpan{Addr: addr, Data: data}, nil
	}

	full := make([]byte, alignedEnd-alignedAddr)
	existing, err := dev.ReadRange(ctx, dev.TranslateAddress(alignedAddr), uint32(len(full)))
	if err == nil && len(existing) == len(full) {
		copy(full, existing)
	} else {
		for i := range full {
			full[i] = 0xFF
		}
	}
	copy(full[addr-alignedAddr:], data)

	return &WriteSpan{Addr: alignedAddr, Data: full}, nil
}

// mergeAdjacent combines spans that touch or overlap after page
// alignment into single writes, preserving order by address.
func mergeAdjacent(spans []WriteSpan, pageSize uint32) []WriteSpan {
	if len(spans) < 2 {
		return spans
	}

	out := make([]WriteSpan, 0, len(spans))
	cur := spans[0]
	for _, s := range spans[1:] {
		curEnd := cur.Addr + uint32(len(cur.Data))
		if s.Addr <= curEnd {
			overlap := curEnd - s.Addr
			if overlap < uint32(len(s.Data)) {
				cur.Data = append(cur.Data, s.Data[overlap:]...)
			}
			continue
		}
		out = append(out, cur)
		cur = s
	}
	out = append(out, cur)
	return out
}
