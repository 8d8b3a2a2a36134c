package mm

// PhysToVirt returns the high-half kernel address for a physical address.
func PhysToVirt(phys uintptr) uintptr {
	return phys + KernelVirtualBase
}

// VirtToPhys returns the physical address behind a high-half kernel address.
func VirtToPhys(virt uintptr) uintptr {
	return virt - KernelVirtualBase
}

// IsKernelAddr returns true if addr lies in the high-half kernel window.
func IsKernelAddr(addr uintptr) bool {
	return addr >= KernelVirtualBase
}
