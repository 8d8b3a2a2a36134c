// Package platform describes the physical memory map of the QEMU "virt"
// machine that the kernel boots on. The values must match the machine's
// actual layout; a mismatch is fatal at boot and is never detected at run
// time.
package platform

import (
	"phoenix/kernel/mm"
	"phoenix/kernel/mm/mmu"
)

const (
	// RAMBase is the physical address where DRAM starts.
	RAMBase = uintptr(0x40000000)

	// RAMSize is the amount of DRAM the kernel manages (QEMU -m 1G).
	RAMSize = 1 * mm.Gb

	// GICBase is the physical base of the GICv2 distributor.
	GICBase = uintptr(0x08000000)

	// UARTBase is the physical base of the PL011 UART used for boot
	// diagnostics.
	UARTBase = uintptr(0x09000000)

	// UARTSize is the size of the PL011 register window.
	UARTSize = 4 * mm.Kb

	// DeviceWindowBase and DeviceWindowSize describe the device window
	// that the boot tables map. It covers the GIC and the UART and is
	// aligned to the 2M block size.
	DeviceWindowBase = uintptr(0x08000000)
	DeviceWindowSize = 32 * mm.Mb

	// KernelLoadOffset is the offset from RAMBase where the boot loader
	// places the kernel image.
	KernelLoadOffset = uintptr(0x80000)

	// BootStackSize is the size of the boot core's stack.
	BootStackSize = 64 * mm.Kb
)

// Window describes a physical address range on the platform.
type Window struct {
	Name   string
	Base   uintptr
	Size   mm.Size
	Device bool
}

// End returns the first address past the window.
func (w Window) End() uintptr {
	return w.Base + uintptr(w.Size)
}

// windows lists every range the kernel must be able to address.
var windows = [...]Window{
	{Name: "ram", Base: RAMBase, Size: RAMSize},
	{Name: "gic+uart", Base: DeviceWindowBase, Size: DeviceWindowSize, Device: true},
}

// VisitWindows invokes visitor for each memory window of the platform. The
// visitor returns false to stop the iteration.
func VisitWindows(visitor func(Window) bool) {
	for _, w := range windows {
		if !visitor(w) {
			return
		}
	}
}

// bootRanges has a non-zero initializer so it is stored in the data section
// and survives the BSS clear.
var bootRanges = [...]mmu.Range{
	{PhysBase: RAMBase, Size: RAMSize, Attr: mmu.AttrNormal},
	{PhysBase: DeviceWindowBase, Size: DeviceWindowSize, Attr: mmu.AttrDevice},
}

// BootRanges returns the physical ranges that the boot translation tables
// must map. The returned slice aliases package storage and must not be
// modified.
func BootRanges() []mmu.Range {
	return bootRanges[:]
}

// KernelLoadAddr returns the physical address of the first byte of the
// kernel image.
func KernelLoadAddr() uintptr {
	return RAMBase + KernelLoadOffset
}
