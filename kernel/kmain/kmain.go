package kmain

import (
	"phoenix/device/serial"
	"phoenix/kernel"
	"phoenix/kernel/cpu"
	"phoenix/kernel/goruntime"
	"phoenix/kernel/hal"
	"phoenix/kernel/kfmt"
	"phoenix/kernel/mm"
	"phoenix/kernel/mm/memblock"
	"phoenix/kernel/mm/mmu"
	"phoenix/kernel/platform"
	"unsafe"
)

var (
	// The following functions are mocked by tests. They are only called
	// from kernelMain, which runs in the high half.
	goruntimeInitFn  = goruntime.Init
	detectHardwareFn = hal.DetectHardware
	haltFn           = cpu.Halt
	panicFn          = kfmt.Panic
)

// BootInfo describes the physical layout of the loaded kernel. The boot
// loader places the image at platform.KernelLoadAddr(); the translation table
// pool and the boot stack follow the end of the image, each page aligned.
type BootInfo struct {
	ImageStart, ImageEnd uintptr
	BSSStart, BSSEnd     uintptr
	PoolStart, PoolEnd   uintptr
	StackStart, StackEnd uintptr
}

// BootInfoFromVirtual builds the BootInfo for a kernel image whose link-time
// (high-half) section bounds are given.
func BootInfoFromVirtual(imageStart, imageEnd, bssStart, bssEnd uintptr) BootInfo {
	info := BootInfo{
		ImageStart: mm.VirtToPhys(imageStart),
		ImageEnd:   mm.VirtToPhys(imageEnd),
		BSSStart:   mm.VirtToPhys(bssStart),
		BSSEnd:     mm.VirtToPhys(bssEnd),
	}

	info.PoolStart, _ = mm.AlignUp(info.ImageEnd, mm.PageSize)
	info.PoolEnd = info.PoolStart + uintptr(mmu.TablePoolSize)
	info.StackStart, _ = mm.AlignUp(info.PoolEnd, mm.PageSize)
	info.StackEnd = info.StackStart + uintptr(platform.BootStackSize)
	return info
}

// BootConfig returns the address space switch configuration for the kernel
// layout described by info.
func (info BootInfo) BootConfig() mmu.BootConfig {
	return mmu.BootConfig{
		Ranges:     platform.BootRanges(),
		Pool:       (*mmu.TablePool)(unsafe.Pointer(info.PoolStart)),
		PoolPhys:   info.PoolStart,
		ImageStart: info.ImageStart,
		ImageEnd:   info.ImageEnd,
		StackStart: info.StackStart,
		StackEnd:   info.StackEnd,
		BSSStart:   info.BSSStart,
		BSSEnd:     info.BSSEnd,
		Main:       kernelMain,
	}
}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The rt0 code runs with the MMU off, points the stack
// at the end of BootInfo's stack range and passes the link-time bounds of the
// kernel image and its BSS section.
//
// The image is linked at the high half but runs from its physical load
// address until the switch completes, so Kmain only makes direct calls.
// Kmain is not expected to return. If it does, the CPU is halted.
//
//go:noinline
func Kmain(imageStart, imageEnd, bssStart, bssEnd uintptr) {
	cfg := BootInfoFromVirtual(imageStart, imageEnd, bssStart, bssEnd).BootConfig()
	mmu.Boot(&cfg)
	cpu.Halt()
}

// kernelMain runs in the high half once the BSS has been cleared. The Go
// runtime is brought up right after the region tracker so that everything
// from hardware detection onwards can use the heap and interfaces.
func kernelMain(cfg *mmu.BootConfig) {
	if err := initMemblock(cfg); err != nil {
		panicFn(err)
		return
	}

	if err := goruntimeInitFn(); err != nil {
		panicFn(err)
		return
	}

	if err := serial.Register(); err != nil {
		panicFn(err)
		return
	}

	detectHardwareFn()
	kfmt.Printf("Hello, world!\n")
	kfmt.Printf("[kmain] running at 0x%16x\n", mm.PhysToVirt(cfg.ImageStart))

	frame, err := memblock.AllocFrame()
	if err != nil {
		panicFn(err)
		return
	}
	kfmt.Printf("[kmain] allocated test page at 0x%16x\n", frame.Address())

	memblock.Dump()
	kfmt.Printf("[kmain] boot complete\n")
	haltFn()
}

// initMemblock declares all RAM and reserves the memory that the boot
// process already uses.
func initMemblock(cfg *mmu.BootConfig) *kernel.Error {
	if err := memblock.Init(platform.RAMBase, platform.RAMSize); err != nil {
		return err
	}

	poolEnd, _ := mm.AlignUp(cfg.PoolPhys+uintptr(mmu.TablePoolSize), mm.PageSize)

	for _, r := range [...]struct{ start, end uintptr }{
		{cfg.ImageStart, cfg.ImageEnd},
		{cfg.PoolPhys, poolEnd},
		{cfg.StackStart, cfg.StackEnd},
	} {
		if err := memblock.Reserve(r.start, mm.Size(r.end-r.start)); err != nil {
			return err
		}
	}

	return nil
}
