// Package goruntime contains code for bootstrapping Go runtime features such
// as the memory allocator.
//
// The kernel has no operating system underneath it, so the runtime's OS
// memory hooks are redirected to functions in this package that carve memory
// out of the boot-time region tracker. Memory is handed to the runtime
// through the identity map at its physical address: the heap arena index
// covers 48 address bits and cannot hold high-half addresses.
//
// Package init functions are never run in the kernel. Packages that need to
// register something expose an explicit function that kmain calls.
package goruntime

import (
	"phoenix/kernel"
	"phoenix/kernel/mm"
	"phoenix/kernel/mm/memblock"
	"unsafe"
)

var (
	allocFn         = memblock.Alloc
	freeFn          = memblock.Free
	memsetFn        = mm.Memset
	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit

	errAlreadyInitialized = &kernel.Error{Kind: kernel.BootFatal, Module: "goruntime", Message: "runtime already initialized"}

	initialized bool

	// A seed for the pseudo-random number generator used by readRandom
	prngSeed = 0xdeadc0de

	// clock is advanced by every nanotime call.
	clock int64
)

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

func pageAlign(size uintptr) mm.Size {
	return (mm.Size(size) + mm.PageSize - 1) &^ (mm.PageSize - 1)
}

// sysReserve reserves address space for the Go heap. Reserved memory is
// backed by RAM right away; it is only zeroed once sysMap hands it to the
// allocator.
//
// The runtime first asks for a series of hint addresses far above the
// installed RAM. Those requests are declined so that the runtime falls back
// to an unconstrained reservation.
//
//go:redirect-from runtime.sysReserveOS
//go:nosplit
func sysReserve(v unsafe.Pointer, size uintptr) unsafe.Pointer {
	if v != nil || size == 0 {
		return nil
	}

	base, err := allocFn(pageAlign(size), mm.PageSize)
	if err != nil {
		return nil
	}

	return unsafe.Pointer(base)
}

// sysMap prepares a previously reserved region for use by the allocator.
//
//go:redirect-from runtime.sysMapOS
//go:nosplit
func sysMap(v unsafe.Pointer, size uintptr) {
	memsetFn(uintptr(v), 0, pageAlign(size))
}

// sysAlloc reserves enough physical memory to satisfy the allocation request
// and returns a pointer to the zeroed region or nil if memory is exhausted.
//
//go:redirect-from runtime.sysAllocOS
//go:nosplit
func sysAlloc(size uintptr) unsafe.Pointer {
	regionSize := pageAlign(size)
	base, err := allocFn(regionSize, mm.PageSize)
	if err != nil {
		return nil
	}

	memsetFn(base, 0, regionSize)
	return unsafe.Pointer(base)
}

// sysFree returns memory obtained via sysReserve or sysAlloc. The runtime
// also uses it to trim the unaligned ends of a reservation.
//
//go:redirect-from runtime.sysFreeOS
//go:nosplit
func sysFree(v unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}

	if err := freeFn(uintptr(v), pageAlign(size)); err != nil {
		panic(err)
	}
}

// The following hooks advise the OS about page usage. Physical memory needs
// no advice.

//go:redirect-from runtime.sysUsedOS
//go:nosplit
func sysUsed(unsafe.Pointer, uintptr) {}

//go:redirect-from runtime.sysUnusedOS
//go:nosplit
func sysUnused(unsafe.Pointer, uintptr) {}

//go:redirect-from runtime.sysHugePageOS
//go:nosplit
func sysHugePage(unsafe.Pointer, uintptr) {}

//go:redirect-from runtime.sysNoHugePageOS
//go:nosplit
func sysNoHugePage(unsafe.Pointer, uintptr) {}

//go:redirect-from runtime.sysFaultOS
//go:nosplit
func sysFault(unsafe.Pointer, uintptr) {}

// nanotime returns a monotonically increasing clock value. This is a
// placeholder until a timer driver exists.
//
// This function replaces runtime.nanotime1 and is invoked by the Go allocator
// when a span allocation is performed.
//
//go:redirect-from runtime.nanotime1
//go:nosplit
func nanotime() int64 {
	clock++
	return clock
}

// readRandom populates the given slice with random data. The runtime reads
// the startup seed from the OS; a prng stands in for it.
//
//go:redirect-from runtime.readRandom
func readRandom(r []byte) int {
	for i := 0; i < len(r); i++ {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
	return len(r)
}

// Init enables support for various Go runtime features. It must run after
// memblock.Init. After a call to Init the following runtime features become
// available for use:
//   - heap memory allocation (new, make, append e.t.c)
//   - map primitives
//   - dynamic interface conversions and type assertions
func Init() *kernel.Error {
	if initialized {
		return errAlreadyInitialized
	}

	mallocInitFn()
	algInitFn()       // setup hash implementation for map keys
	modulesInitFn()   // provides activeModules
	typeLinksInitFn() // uses maps, activeModules
	itabsInitFn()     // uses activeModules

	initialized = true
	return nil
}

func init() {
	// Dummy calls so the compiler does not optimize away the redirect
	// targets. The kernel never runs this function.
	var zeroPtr = unsafe.Pointer(uintptr(0))

	sysReserve(zeroPtr, 0)
	sysMap(zeroPtr, 0)
	sysAlloc(0)
	sysFree(zeroPtr, 0)
	sysUsed(zeroPtr, 0)
	sysUnused(zeroPtr, 0)
	sysHugePage(zeroPtr, 0)
	sysNoHugePage(zeroPtr, 0)
	sysFault(zeroPtr, 0)
	readRandom(nil)
	_ = nanotime()
}
