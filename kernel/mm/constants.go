package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the translation granule in bytes.
	PageSize = Size(1 << PageShift)

	// VirtualAddressBits is the width of the kernel's virtual address
	// space. With a 4K granule, 39 bits start the table walk at level 1.
	VirtualAddressBits = 39

	// KernelVirtualBase is the start of the high-half kernel address
	// space. Every kernel mapping satisfies
	// virtual = physical + KernelVirtualBase.
	KernelVirtualBase = uintptr(0xffffff8000000000)

	// MaxPhysAddr is the first physical address that cannot be reached
	// through the high-half window.
	MaxPhysAddr = uintptr(1) << VirtualAddressBits
)
