// Package mmu builds the boot translation tables and switches the boot core
// to the high-half kernel address space.
package mmu

import (
	"phoenix/kernel"
	"phoenix/kernel/mm"
)

const (
	// MaxRanges is the number of physical ranges BuildTables accepts.
	MaxRanges = 16

	// MaxDescriptors is the capacity of a DescriptorSet.
	MaxDescriptors = 64
)

var (
	// ErrUnalignedRange is returned when a range base or size is not a
	// multiple of the smallest block size.
	ErrUnalignedRange = &kernel.Error{Kind: kernel.AlignmentError, Module: "mmu", Message: "range is not aligned to the 2M block size"}

	// ErrOverlappingRange is returned when two requested ranges overlap.
	ErrOverlappingRange = &kernel.Error{Kind: kernel.OverlapError, Module: "mmu", Message: "requested ranges overlap"}

	// ErrTooManyDescriptors is returned when the requested ranges need more
	// descriptors than a DescriptorSet holds.
	ErrTooManyDescriptors = &kernel.Error{Kind: kernel.CapacityExceeded, Module: "mmu", Message: "too many block descriptors"}

	// ErrTooManyRanges is returned when more than MaxRanges ranges are
	// requested.
	ErrTooManyRanges = &kernel.Error{Kind: kernel.CapacityExceeded, Module: "mmu", Message: "too many ranges"}

	// ErrRangeOutOfReach is returned for empty ranges and ranges that end
	// above the physical window covered by the high half.
	ErrRangeOutOfReach = &kernel.Error{Kind: kernel.InvalidRegion, Module: "mmu", Message: "range is empty or outside the mappable window"}

	// ErrInvalidAttr is returned for an unknown attribute class.
	ErrInvalidAttr = &kernel.Error{Kind: kernel.InvalidRegion, Module: "mmu", Message: "unknown attribute class"}
)

// Range is a physical address range that must be mapped with the given
// attribute class.
type Range struct {
	PhysBase uintptr
	Size     mm.Size
	Attr     AttrClass
}

// End returns the first address past the range.
func (r Range) End() uintptr {
	return r.PhysBase + uintptr(r.Size)
}

// Descriptor is a single block mapping from the high half to physical
// memory.
type Descriptor struct {
	PhysBase uintptr
	VirtBase uintptr
	Size     BlockSize
	Attr     AttrClass
}

// DescriptorSet is a fixed-capacity list of block descriptors sorted by
// physical address.
type DescriptorSet struct {
	entries [MaxDescriptors]Descriptor
	count   int
}

// Len returns the number of descriptors in the set.
func (s *DescriptorSet) Len() int {
	return s.count
}

// Descriptors returns the descriptors in the set. The returned slice aliases
// the set's storage.
func (s *DescriptorSet) Descriptors() []Descriptor {
	return s.entries[:s.count]
}

func (s *DescriptorSet) push(d Descriptor) bool {
	if s.count == MaxDescriptors {
		return false
	}

	s.entries[s.count] = d
	s.count++
	return true
}

// BuildTables computes the minimal set of 1G and 2M block descriptors that
// maps every byte of ranges exactly once into the high half. Adjacent ranges
// with the same attribute class are joined before decomposition so they can
// share larger blocks; ranges with different classes are never joined.
//
// The contents of out are only replaced if BuildTables succeeds.
func BuildTables(ranges []Range, out *DescriptorSet) *kernel.Error {
	if len(ranges) > MaxRanges {
		return ErrTooManyRanges
	}

	var (
		sorted [MaxRanges]Range
		count  int
	)

	for _, r := range ranges {
		if err := validateRange(r); err != nil {
			return err
		}

		// insertion sort by base address
		i := count
		for ; i > 0 && sorted[i-1].PhysBase > r.PhysBase; i-- {
			sorted[i] = sorted[i-1]
		}
		sorted[i] = r
		count++
	}

	// Check neighbours for overlaps and join touching ranges of the same class.
	merged := 0
	for i := 0; i < count; i++ {
		if merged > 0 {
			prev := &sorted[merged-1]
			switch {
			case sorted[i].PhysBase < prev.End():
				return ErrOverlappingRange
			case sorted[i].PhysBase == prev.End() && sorted[i].Attr == prev.Attr:
				prev.Size += sorted[i].Size
				continue
			}
		}
		sorted[merged] = sorted[i]
		merged++
	}

	var scratch DescriptorSet
	for i := 0; i < merged; i++ {
		for addr, end := sorted[i].PhysBase, sorted[i].End(); addr < end; {
			size := L2BlockSize
			if mm.IsAligned(addr, L1BlockSize) && end-addr >= uintptr(L1BlockSize) {
				size = L1BlockSize
			}

			if !scratch.push(Descriptor{
				PhysBase: addr,
				VirtBase: mm.PhysToVirt(addr),
				Size:     size,
				Attr:     sorted[i].Attr,
			}) {
				return ErrTooManyDescriptors
			}

			addr += uintptr(size)
		}
	}

	*out = scratch
	return nil
}

func validateRange(r Range) *kernel.Error {
	switch {
	case r.Attr >= attrClassCount:
		return ErrInvalidAttr
	case r.Size == 0, r.End() < r.PhysBase, r.End() > mm.MaxPhysAddr:
		return ErrRangeOutOfReach
	case !mm.IsAligned(r.PhysBase, L2BlockSize), !mm.IsAligned(uintptr(r.Size), L2BlockSize):
		return ErrUnalignedRange
	}

	return nil
}
