package mmu

import (
	"phoenix/kernel"
	"phoenix/kernel/mm"
	"unsafe"
)

const (
	// entriesPerTable is the number of descriptors in a 4K table.
	entriesPerTable = 512

	// MaxL2Tables is the number of level 2 tables in a TablePool. Each one
	// covers a 1G slot that is mapped with 2M blocks.
	MaxL2Tables = 4
)

var (
	// ErrTablePoolExhausted is returned when the descriptors need more level
	// 2 tables than the pool holds.
	ErrTablePoolExhausted = &kernel.Error{Kind: kernel.CapacityExceeded, Module: "mmu", Message: "translation table pool exhausted"}

	// ErrUnalignedPool is returned when the pool's physical address is not
	// page aligned.
	ErrUnalignedPool = &kernel.Error{Kind: kernel.AlignmentError, Module: "mmu", Message: "translation table pool is not page aligned"}

	// ErrDescriptorConflict is returned when two descriptors claim the same
	// table slot.
	ErrDescriptorConflict = &kernel.Error{Kind: kernel.OverlapError, Module: "mmu", Message: "descriptors claim the same table slot"}
)

// Table is a single 4K translation table.
type Table [entriesPerTable]uint64

// TablePool holds the root (level 1) table followed by the level 2 tables.
// It is never allocated from the Go heap on the boot path: the kernel places
// it at a fixed physical address past the end of its image.
type TablePool struct {
	L1 Table
	L2 [MaxL2Tables]Table

	usedL2 int
}

// TablePoolSize is the number of bytes a TablePool occupies.
const TablePoolSize = mm.Size(unsafe.Sizeof(TablePool{}))

// l2Phys returns the physical address of the i-th level 2 table given the
// physical address of the pool.
func l2Phys(poolPhys uintptr, i int) uintptr {
	return poolPhys + uintptr(unsafe.Offsetof(TablePool{}.L2)) + uintptr(i)*uintptr(mm.PageSize)
}

func l1Index(addr uintptr) int {
	return int(addr>>l1Shift) & (entriesPerTable - 1)
}

func l2Index(addr uintptr) int {
	return int(addr>>l2Shift) & (entriesPerTable - 1)
}

// Encode clears pool and lays out the descriptors of set as level 1 and
// level 2 block entries. The same root serves both TTBR0 (identity view) and
// TTBR1 (high half) because the high-half base leaves the level 1 index bits
// of an address unchanged. poolPhys is the physical address that the MMU
// will use to reach pool.
func Encode(set *DescriptorSet, pool *TablePool, poolPhys uintptr) *kernel.Error {
	if !mm.IsAligned(poolPhys, mm.PageSize) {
		return ErrUnalignedPool
	}

	mm.Memset(uintptr(unsafe.Pointer(pool)), 0, TablePoolSize)

	for _, d := range set.Descriptors() {
		entry := uint64(d.PhysBase)&descAddrMask | d.Attr.blockBits()
		slot := &pool.L1[l1Index(d.PhysBase)]

		if d.Size == L1BlockSize {
			if *slot != 0 {
				return ErrDescriptorConflict
			}
			*slot = entry
			continue
		}

		l2, err := pool.l2For(slot, poolPhys)
		if err != nil {
			return err
		}

		if l2[l2Index(d.PhysBase)] != 0 {
			return ErrDescriptorConflict
		}
		l2[l2Index(d.PhysBase)] = entry
	}

	return nil
}

// l2For returns the level 2 table that the level 1 slot points to, allocating
// one from the pool if the slot is empty.
func (pool *TablePool) l2For(slot *uint64, poolPhys uintptr) (*Table, *kernel.Error) {
	switch {
	case *slot == 0:
		if pool.usedL2 == MaxL2Tables {
			return nil, ErrTablePoolExhausted
		}
		*slot = uint64(l2Phys(poolPhys, pool.usedL2)) | descValid | descTable
		pool.usedL2++
		return &pool.L2[pool.usedL2-1], nil
	case *slot&(descValid|descTable) == descValid|descTable:
		return &pool.L2[pool.tableIndex(*slot, poolPhys)], nil
	default:
		return nil, ErrDescriptorConflict
	}
}

func (pool *TablePool) tableIndex(entry uint64, poolPhys uintptr) int {
	return int((uintptr(entry&descAddrMask) - l2Phys(poolPhys, 0)) / uintptr(mm.PageSize))
}

// L2TablesUsed returns the number of level 2 tables allocated by Encode.
func (pool *TablePool) L2TablesUsed() int {
	return pool.usedL2
}

// Lookup walks the tables in software and returns the physical address and
// attribute class that addr translates to. Both identity and high-half
// addresses are accepted. The last return value is false if addr is not
// mapped.
func Lookup(pool *TablePool, poolPhys uintptr, addr uintptr) (uintptr, AttrClass, bool) {
	if mm.IsKernelAddr(addr) {
		addr = mm.VirtToPhys(addr)
	}

	if addr >= mm.MaxPhysAddr {
		return 0, 0, false
	}

	entry := pool.L1[l1Index(addr)]
	blockMask := uintptr(L1BlockSize - 1)

	switch entry & (descValid | descTable) {
	case descValid | descTable:
		index := pool.tableIndex(entry, poolPhys)
		if index < 0 || index >= pool.usedL2 {
			return 0, 0, false
		}
		entry = pool.L2[index][l2Index(addr)]
		blockMask = uintptr(L2BlockSize - 1)
		if entry&(descValid|descTable) != descBlock {
			return 0, 0, false
		}
	case descBlock:
	default:
		return 0, 0, false
	}

	attr := AttrClass((entry & descAttrIndxMask) >> descAttrIndxShift)
	return uintptr(entry&descAddrMask)&^blockMask | addr&blockMask, attr, true
}

// Covers returns true if every byte of the physical range [base, base+size)
// is identity-translatable with the given attribute class. Only block
// boundaries are probed since that is the mapping granularity.
func Covers(pool *TablePool, poolPhys uintptr, base uintptr, size mm.Size, attr AttrClass) bool {
	if size == 0 {
		return true
	}

	end := base + uintptr(size)
	for addr := base; addr < end && addr >= base; {
		phys, got, ok := Lookup(pool, poolPhys, addr)
		if !ok || got != attr || phys != addr {
			return false
		}

		next, _ := mm.AlignUp(addr+1, L2BlockSize)
		if next <= addr {
			break
		}
		addr = next
	}

	return true
}
