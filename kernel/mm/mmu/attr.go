package mmu

import "phoenix/kernel/mm"

// AttrClass selects the memory type used for a mapping.
type AttrClass uint8

// The supported attribute classes. The numeric value of each class is its
// index into MAIR_EL1.
const (
	// AttrNormal is write-back cacheable memory.
	AttrNormal AttrClass = iota

	// AttrDevice is Device-nGnRnE memory for MMIO registers.
	AttrDevice

	// AttrNonCacheable is normal memory with caching disabled.
	AttrNonCacheable

	attrClassCount
)

// String implements fmt.Stringer for AttrClass.
func (a AttrClass) String() string {
	switch a {
	case AttrNormal:
		return "normal"
	case AttrDevice:
		return "device"
	case AttrNonCacheable:
		return "non-cacheable"
	default:
		return "invalid"
	}
}

// BlockSize is the size of the region covered by a block descriptor.
type BlockSize = mm.Size

const (
	// L2BlockSize is the size of a level 2 block descriptor.
	L2BlockSize BlockSize = 2 * mm.Mb

	// L1BlockSize is the size of a level 1 block descriptor.
	L1BlockSize BlockSize = 1 * mm.Gb

	l1Shift = 30
	l2Shift = 21
)

// Descriptor bits for VMSAv8-64 stage 1 translation with a 4K granule.
const (
	descValid = uint64(1 << 0)
	descTable = uint64(1 << 1)

	// A block descriptor has bits[1:0] = 0b01.
	descBlock = descValid

	descAttrIndxShift = 2
	descAttrIndxMask  = uint64(7 << descAttrIndxShift)

	// AP[2:1] = 0b00 grants EL1 read/write and no EL0 access.
	descAPKernelRW = uint64(0 << 6)

	descSHInner = uint64(3 << 8)
	descAF      = uint64(1 << 10)
	descPXN     = uint64(1 << 53)
	descUXN     = uint64(1 << 54)

	// descAddrMask extracts the output address bits [47:12].
	descAddrMask = uint64(0x0000fffffffff000)
)

// blockBits returns the lower and upper attribute bits of a block descriptor
// for the attribute class.
func (a AttrClass) blockBits() uint64 {
	bits := descBlock | descAF | descAPKernelRW | uint64(a)<<descAttrIndxShift

	switch a {
	case AttrNormal:
		// Kernel text lives in normal memory so EL1 may execute it.
		bits |= descSHInner | descUXN
	case AttrDevice:
		bits |= descPXN | descUXN
	case AttrNonCacheable:
		bits |= descSHInner | descPXN | descUXN
	}

	return bits
}

// Memory attribute encodings programmed into MAIR_EL1, one byte per
// attribute class.
const (
	mairNormalWriteBack = 0xff
	mairDeviceNGnRnE    = 0x00
	mairNormalNC        = 0x44

	// MAIRValue is the value programmed into MAIR_EL1.
	MAIRValue = uint64(mairNormalWriteBack)<<(8*uint64(AttrNormal)) |
		uint64(mairDeviceNGnRnE)<<(8*uint64(AttrDevice)) |
		uint64(mairNormalNC)<<(8*uint64(AttrNonCacheable))
)

// TCR_EL1 fields.
const (
	tcrT0SZ  = uint64(64 - mm.VirtualAddressBits)
	tcrIRGN0 = uint64(1 << 8)
	tcrORGN0 = uint64(1 << 10)
	tcrSH0   = uint64(3 << 12)
	tcrTG0   = uint64(0 << 14)
	tcrT1SZ  = uint64(64-mm.VirtualAddressBits) << 16
	tcrIRGN1 = uint64(1 << 24)
	tcrORGN1 = uint64(1 << 26)
	tcrSH1   = uint64(3 << 28)
	tcrTG1   = uint64(2 << 30)

	// 40-bit intermediate physical address size.
	tcrIPS = uint64(2 << 32)

	// TCRValue is the value programmed into TCR_EL1: 39-bit halves, 4K
	// granule, inner-shareable write-back walks.
	TCRValue = tcrT0SZ | tcrIRGN0 | tcrORGN0 | tcrSH0 | tcrTG0 |
		tcrT1SZ | tcrIRGN1 | tcrORGN1 | tcrSH1 | tcrTG1 | tcrIPS
)

// SCTLR_EL1 bits set when translation is enabled.
const (
	sctlrM = uint64(1 << 0)
	sctlrC = uint64(1 << 2)
	sctlrI = uint64(1 << 12)

	// SCTLREnableBits enables the MMU and the data and instruction caches.
	SCTLREnableBits = sctlrM | sctlrC | sctlrI
)
