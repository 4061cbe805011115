// Region scanning and the append/get/invalidate/cleanup operations,
// per spec 4.4: objects are appended into the first free window on a
// page; when a page runs out of room, the scan continues circularly
// from the region derived from the low 16 bits of the hashed key.
// Grounded on the layout engine's own "walk flash, find free space,
// write" shape (spec 4.2 extract/placement), adapted here to TicKV's
// fixed-size circular page array instead of a linear app region.
package tickv

import (
	"context"

	"github.com/tock/tockloader/board"
	"github.com/tock/tockloader/errs"
)

// Store operates TicKV over a fixed run of equal-sized pages starting
// at BaseAddr on the given board.Interface.
type Store struct {
	Dev      board.Interface
	BaseAddr uint32
	PageSize uint32
	Regions  int
}

// regionForKey picks the starting region for hashedKey: the low 16
// bits modulo the region count.
func (s *Store) regionForKey(hashedKey uint64) int {
	return int(uint16(hashedKey)) % s.Regions
}

func (s *Store) regionAddr(region int) uint32 {
	return s.BaseAddr + uint32(region)*s.PageSize
}

func (s *Store) readRegion(ctx context.Context, region int) ([]byte, error) {
	return s.Dev.ReadRange(ctx, s.regionAddr(region), s.PageSize)
}

func (s *Store) writeRegion(ctx context.Context, region int, data []byte) error {
	if uint32(len(data)) != s.PageSize {
		return errs.Newf(errs.KindProtocol, "region write size %d does not match page size %d", len(data), s.PageSize)
	}
	return s.Dev.FlashBinary(ctx, s.regionAddr(region), data)
}

// scanObjects decodes every object in a region buffer, returning each
// object alongside its byte offset within the region. Scanning stops
// at the first run of minObjectSize all-0xFF bytes (free space) or at
// a decode error, whichever comes first — a decode error past valid
// objects is tolerated as "end of written objects" rather than
// corruption, since TicKV pages are erased (0xFF) ahead of their
// write cursor.
func scanObjects(region []byte) []objectAt {
	var out []objectAt
	off := 0
	for off+minObjectSize <= len(region) {
		if isErasedWindow(region[off : off+minObjectSize]) {
			break
		}
		obj, n, err := Decode(region[off:])
		if err != nil {
			break
		}
		out = append(out, objectAt{Object: obj, Offset: off})
		off += n
	}
	return out
}

type objectAt struct {
	Object
	Offset int
}

func isErasedWindow(b []byte) bool {
	for _, c := range b {
		if c != 0xFF {
			return false
		}
	}
	return true
}

// firstFreeOffset returns the region offset of the first 0xFF window
// at least size bytes long, or -1 if none exists.
func firstFreeOffset(region []byte, size int) int {
	free := 0
	for i := 0; i < len(region); i++ {
		if region[i] == 0xFF {
			free++
			if free >= size {
				return i - size + 1
			}
		} else {
			free = 0
		}
	}
	return -1
}

// Append writes value under hashedKey, scanning circularly from
// regionForKey(hashedKey) for the first region with enough free space.
func (s *Store) Append(ctx context.Context, hashedKey uint64, value []byte) error {
	needed := Size(len(value))
	start := s.regionForKey(hashedKey)

	for i := 0; i < s.Regions; i++ {
		region := (start + i) % s.Regions
		buf, err := s.readRegion(ctx, region)
		if err != nil {
			return err
		}
		off := firstFreeOffset(buf, needed)
		if off < 0 {
			continue
		}

		encoded := Encode(Object{Valid: true, HashedKey: hashedKey, Value: value})
		copy(buf[off:off+len(encoded)], encoded)
		return s.writeRegion(ctx, region, buf)
	}

	return errs.Newf(errs.KindProtocol, "no TicKV region has room for a %d-byte object", needed)
}

// Get returns the value most recently appended under hashedKey, or
// KindKeyNotFound if no valid object with that key exists in any
// region. Append never invalidates a key's earlier copy before writing
// a new one, so several valid objects can share a key; both Get and
// Invalidate must keep scanning to the end of the circular range and
// take the last match, since within a region scanObjects already
// yields objects in the order Append wrote them, and later regions in
// the circular scan only ever hold objects Append placed after the
// current region filled up.
func (s *Store) Get(ctx context.Context, hashedKey uint64) ([]byte, error) {
	start := s.regionForKey(hashedKey)

	var latest *objectAt
	for i := 0; i < s.Regions; i++ {
		region := (start + i) % s.Regions
		buf, err := s.readRegion(ctx, region)
		if err != nil {
			return nil, err
		}
		for _, obj := range scanObjects(buf) {
			obj := obj
			if obj.Valid && obj.HashedKey == hashedKey {
				latest = &obj
			}
		}
	}

	if latest == nil {
		return nil, errs.Newf(errs.KindKeyNotFound, "no TicKV object found for key hash 0x%016x", hashedKey)
	}
	return latest.Value, nil
}

// Invalidate clears the valid flag of the most recently appended
// object stored under hashedKey, searching the same circular region
// range Get uses and resolving duplicates the same way: last match
// wins. The object's checksum is rewritten to cover the cleared flag,
// so the objects after it in the region stay readable.
func (s *Store) Invalidate(ctx context.Context, hashedKey uint64) error {
	start := s.regionForKey(hashedKey)

	foundRegion := -1
	foundOffset := 0
	var found Object
	for i := 0; i < s.Regions; i++ {
		region := (start + i) % s.Regions
		buf, err := s.readRegion(ctx, region)
		if err != nil {
			return err
		}
		for _, obj := range scanObjects(buf) {
			if obj.Valid && obj.HashedKey == hashedKey {
				foundRegion, foundOffset, found = region, obj.Offset, obj.Object
			}
		}
	}

	if foundRegion < 0 {
		return errs.Newf(errs.KindKeyNotFound, "no TicKV object found for key hash 0x%016x", hashedKey)
	}

	buf, err := s.readRegion(ctx, foundRegion)
	if err != nil {
		return err
	}
	found.Valid = false
	copy(buf[foundOffset:], Encode(found))
	return s.writeRegion(ctx, foundRegion, buf)
}

// Cleanup rewrites every region, copying valid objects forward and
// filling the remainder with 0xFF, reclaiming space held by
// invalidated objects.
func (s *Store) Cleanup(ctx context.Context) error {
	for region := 0; region < s.Regions; region++ {
		buf, err := s.readRegion(ctx, region)
		if err != nil {
			return err
		}

		compacted := make([]byte, s.PageSize)
		for i := range compacted {
			compacted[i] = 0xFF
		}

		off := 0
		for _, obj := range scanObjects(buf) {
			if !obj.Valid {
				continue
			}
			encoded := Encode(Object{Valid: true, HashedKey: obj.HashedKey, Value: obj.Value})
			if off+len(encoded) > len(compacted) {
				return errs.Newf(errs.KindProtocol, "region %d: valid objects do not fit after cleanup", region)
			}
			copy(compacted[off:], encoded)
			off += len(encoded)
		}

		if err := s.writeRegion(ctx, region, compacted); err != nil {
			return err
		}
	}
	return nil
}
