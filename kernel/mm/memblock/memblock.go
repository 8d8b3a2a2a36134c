// Package memblock tracks which physical memory ranges are free or reserved
// while the kernel boots and no general purpose allocator exists yet.
package memblock

import (
	"io"
	"phoenix/kernel"
	"phoenix/kernel/kfmt"
	"phoenix/kernel/mm"
)

// MaxRegions is the number of regions a Tracker can hold. There is no
// allocator to grow into while booting; running out of slots is reported as
// ErrCapacityExceeded.
const MaxRegions = 128

var (
	// ErrInvalidRegion is returned for zero-sized ranges and for ranges that
	// wrap around or end above mm.MaxPhysAddr.
	ErrInvalidRegion = &kernel.Error{Kind: kernel.InvalidRegion, Module: "memblock", Message: "region is empty or overflows the address space"}

	// ErrNotReserved is returned by Free when the range is not entirely
	// reserved.
	ErrNotReserved = &kernel.Error{Kind: kernel.InvalidRegion, Module: "memblock", Message: "range is not reserved"}

	// ErrOverlap is returned by Add when the range intersects a reserved
	// region.
	ErrOverlap = &kernel.Error{Kind: kernel.OverlapError, Module: "memblock", Message: "range overlaps a reserved region"}

	// ErrCapacityExceeded is returned when an operation needs more than
	// MaxRegions regions. The tracker is left unchanged.
	ErrCapacityExceeded = &kernel.Error{Kind: kernel.CapacityExceeded, Module: "memblock", Message: "region table is full"}

	// ErrOutOfMemory is returned by Alloc when no free region fits.
	ErrOutOfMemory = &kernel.Error{Kind: kernel.OutOfMemory, Module: "memblock", Message: "no free region can satisfy the request"}

	// ErrAlignment is returned by Alloc when the alignment is not a power
	// of two.
	ErrAlignment = &kernel.Error{Kind: kernel.AlignmentError, Module: "memblock", Message: "alignment is not a power of two"}
)

// Tracker records free and reserved physical memory regions in two layers:
// the memory layer holds every range declared as RAM and the reserved layer
// holds every range in use. The view reported by Visit merges both: reserved
// ranges win and the remaining memory is free. Each layer is kept sorted and
// coalesced, and so is the merged view.
//
// Every mutation is computed into a scratch copy that only replaces the
// tracked layers if it succeeds.
//
// The zero value is an empty tracker ready for use. Tracker is not safe for
// concurrent use; the package-level functions guard a shared instance.
type Tracker struct {
	memory   regionList
	reserved regionList
}

// Len returns the number of regions in the merged view.
func (t *Tracker) Len() int {
	var count int
	t.Visit(func(Region) bool {
		count++
		return true
	})
	return count
}

// Visit invokes visitor for each region of the merged view in ascending
// address order. The visitor returns false to stop the iteration.
func (t *Tracker) Visit(visitor func(Region) bool) {
	var (
		mi, ri int

		// memory below cursor has already been reported.
		cursor uintptr
	)

	for mi < t.memory.count || ri < t.reserved.count {
		if mi < t.memory.count {
			m := t.memory.entries[mi]
			start := m.Base
			if start < cursor {
				start = cursor
			}

			if start >= m.End() {
				mi++
				continue
			}

			if ri == t.reserved.count || start < t.reserved.entries[ri].Base {
				end := m.End()
				if ri < t.reserved.count && t.reserved.entries[ri].Base < end {
					end = t.reserved.entries[ri].Base
				}

				cursor = end
				if !visitor(Region{Base: start, Size: mm.Size(end - start), Kind: KindFree}) {
					return
				}
				continue
			}
		}

		r := t.reserved.entries[ri]
		ri++
		if r.End() > cursor {
			cursor = r.End()
		}

		if !visitor(r) {
			return
		}
	}
}

// TotalFree returns the number of free bytes.
func (t *Tracker) TotalFree() mm.Size {
	var total mm.Size
	t.Visit(func(r Region) bool {
		if r.Kind == KindFree {
			total += r.Size
		}
		return true
	})
	return total
}

// TotalReserved returns the number of reserved bytes.
func (t *Tracker) TotalReserved() mm.Size {
	var total mm.Size
	for i := 0; i < t.reserved.count; i++ {
		total += t.reserved.entries[i].Size
	}
	return total
}

// Add declares [base, base+size) as free memory. Touching or overlapping
// free regions are merged with it. Add fails with ErrOverlap if any part of
// the range is reserved.
func (t *Tracker) Add(base uintptr, size mm.Size) *kernel.Error {
	if err := validate(base, size); err != nil {
		return err
	}

	if t.reserved.overlaps(base, size) {
		return ErrOverlap
	}

	next := *t
	next.memory = t.memory.paint(base, size, KindFree)
	return t.commit(&next)
}

// Reserve marks [base, base+size) as reserved regardless of its current
// state, splitting any free region it cuts through. Reserving an already
// reserved range is a no-op. Reserving untracked memory is allowed.
func (t *Tracker) Reserve(base uintptr, size mm.Size) *kernel.Error {
	if err := validate(base, size); err != nil {
		return err
	}

	next := *t
	next.reserved = t.reserved.paint(base, size, KindReserved)
	return t.commit(&next)
}

// Remove undoes the most recent layer covering [base, base+size). If any
// part of the range is reserved, the reservations inside the range are
// dropped and the memory underneath becomes visible again. Otherwise the
// memory inside the range stops being tracked. A Reserve followed by a
// Remove of the same range therefore restores the previous view exactly.
func (t *Tracker) Remove(base uintptr, size mm.Size) *kernel.Error {
	if err := validate(base, size); err != nil {
		return err
	}

	next := *t
	if t.reserved.overlaps(base, size) {
		next.reserved = t.reserved.paint(base, size, kindNone)
	} else {
		next.memory = t.memory.paint(base, size, kindNone)
	}
	return t.commit(&next)
}

// Free returns a reserved range to the free pool. Every byte of the range
// must currently be reserved. Freed memory is tracked as RAM afterwards even
// if it was reserved without being added first.
func (t *Tracker) Free(base uintptr, size mm.Size) *kernel.Error {
	if err := validate(base, size); err != nil {
		return err
	}

	if !t.reserved.covers(base, size) {
		return ErrNotReserved
	}

	next := *t
	next.reserved = t.reserved.paint(base, size, kindNone)
	next.memory = t.memory.paint(base, size, KindFree)
	return t.commit(&next)
}

// Alloc reserves size bytes aligned to align from the free region with the
// lowest address that can hold them and returns the base of the reserved
// range. An align of 0 is treated as 1.
func (t *Tracker) Alloc(size mm.Size, align mm.Size) (uintptr, *kernel.Error) {
	if size == 0 {
		return 0, ErrInvalidRegion
	}

	if align == 0 {
		align = 1
	}

	if !align.IsPowerOfTwo() {
		return 0, ErrAlignment
	}

	var (
		base  uintptr
		found bool
	)

	t.Visit(func(r Region) bool {
		if r.Kind != KindFree {
			return true
		}

		aligned, ok := mm.AlignUp(r.Base, align)
		if !ok || aligned >= r.End() || mm.Size(r.End()-aligned) < size {
			return true
		}

		base, found = aligned, true
		return false
	})

	if !found {
		return 0, ErrOutOfMemory
	}

	next := *t
	next.reserved = t.reserved.paint(base, size, KindReserved)
	if err := t.commit(&next); err != nil {
		return 0, err
	}
	return base, nil
}

// commit replaces the tracked layers with next unless either layer or the
// merged view ran out of slots.
func (t *Tracker) commit(next *Tracker) *kernel.Error {
	if next.memory.overflow || next.reserved.overflow || next.Len() > MaxRegions {
		return ErrCapacityExceeded
	}

	*t = *next
	return nil
}

// Dump writes the tracked regions to w.
func (t *Tracker) Dump(w io.Writer) {
	kfmt.Fprintf(w, "[memblock] %d regions, free: %dK, reserved: %dK\n",
		t.Len(), uint64(t.TotalFree()/mm.Kb), uint64(t.TotalReserved()/mm.Kb))

	t.Visit(func(r Region) bool {
		kfmt.Fprintf(w, "[memblock] [0x%16x - 0x%16x] %s\n", r.Base, r.End()-1, r.Kind.String())
		return true
	})
}

func validate(base uintptr, size mm.Size) *kernel.Error {
	if size == 0 || base+uintptr(size) <= base || base+uintptr(size) > mm.MaxPhysAddr {
		return ErrInvalidRegion
	}
	return nil
}
