package memblock

import "phoenix/kernel/mm"

// RegionKind describes the state of a tracked physical memory range.
type RegionKind uint8

const (
	// kindNone marks a range that is not tracked. It is never stored.
	kindNone RegionKind = iota

	// KindFree marks memory that is available for allocation.
	KindFree

	// KindReserved marks memory that is in use.
	KindReserved
)

// String implements fmt.Stringer for RegionKind.
func (k RegionKind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindReserved:
		return "reserved"
	default:
		return "untracked"
	}
}

// Region is a contiguous physical memory range. Size is never zero and
// Base+Size never overflows.
type Region struct {
	Base uintptr
	Size mm.Size
	Kind RegionKind
}

// End returns the first address past the region.
func (r Region) End() uintptr {
	return r.Base + uintptr(r.Size)
}

// Contains returns true if addr lies inside the region.
func (r Region) Contains(addr uintptr) bool {
	return addr >= r.Base && addr < r.End()
}

// Overlaps returns true if the region shares at least one byte with
// [base, base+size).
func (r Region) Overlaps(base uintptr, size mm.Size) bool {
	return size != 0 && base < r.End() && r.Base < base+uintptr(size)
}

// Adjacent returns true if other starts where r ends or ends where r starts.
func (r Region) Adjacent(other Region) bool {
	return r.End() == other.Base || other.End() == r.Base
}

// regionList is a fixed-capacity, sorted list of regions. push coalesces
// touching regions of the same kind and records an overflow instead of
// growing.
type regionList struct {
	entries  [MaxRegions]Region
	count    int
	overflow bool
}

func (l *regionList) push(r Region) {
	if r.Size == 0 || r.Kind == kindNone {
		return
	}

	if l.count > 0 {
		last := &l.entries[l.count-1]
		if last.Kind == r.Kind && last.End() == r.Base {
			last.Size += r.Size
			return
		}
	}

	if l.count == MaxRegions {
		l.overflow = true
		return
	}

	l.entries[l.count] = r
	l.count++
}

// overlaps returns true if any region in the list shares a byte with
// [base, base+size).
func (l *regionList) overlaps(base uintptr, size mm.Size) bool {
	for i := 0; i < l.count; i++ {
		if l.entries[i].Overlaps(base, size) {
			return true
		}
	}
	return false
}

// covers returns true if the regions of the list leave no gap inside
// [base, base+size).
func (l *regionList) covers(base uintptr, size mm.Size) bool {
	next, end := base, base+uintptr(size)
	for i := 0; i < l.count && next < end; i++ {
		if l.entries[i].Contains(next) {
			next = l.entries[i].End()
		}
	}
	return next >= end
}

// paint returns a copy of the list where [base, base+size) has the given
// kind, trimming whatever was there before. Painting kindNone cuts the range
// out. The caller checks the overflow flag of the result.
func (l *regionList) paint(base uintptr, size mm.Size, kind RegionKind) regionList {
	var (
		scratch  regionList
		end      = base + uintptr(size)
		painted  = Region{Base: base, Size: size, Kind: kind}
		inserted bool
	)

	for i := 0; i < l.count; i++ {
		r := l.entries[i]

		switch {
		case r.End() <= base:
			scratch.push(r)
			continue
		case r.Base >= end:
			if !inserted {
				scratch.push(painted)
				inserted = true
			}
			scratch.push(r)
			continue
		}

		if r.Base < base {
			scratch.push(Region{Base: r.Base, Size: mm.Size(base - r.Base), Kind: r.Kind})
		}

		if !inserted {
			scratch.push(painted)
			inserted = true
		}

		if r.End() > end {
			scratch.push(Region{Base: end, Size: mm.Size(r.End() - end), Kind: r.Kind})
		}
	}

	if !inserted {
		scratch.push(painted)
	}

	return scratch
}
