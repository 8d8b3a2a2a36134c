package memblock

import (
	"io"
	"phoenix/kernel"
	"phoenix/kernel/kfmt"
	"phoenix/kernel/mm"
	"phoenix/kernel/sync"
)

var (
	// ErrHandedOff is returned by every mutation once HandOff has run.
	ErrHandedOff = &kernel.Error{Kind: kernel.BootFatal, Module: "memblock", Message: "region tracker has been handed off"}

	// bootTracker is the kernel-wide tracker. It lives in the BSS section
	// and must not be used before the address space switch clears it and
	// Init runs.
	bootTracker Tracker
	trackerLock sync.Spinlock
	handedOff   bool

	reporterRegistered bool
)

// Init resets the kernel-wide tracker and declares [base, base+size) as free
// RAM. It is called once by the boot core right after the switch to the high
// half, before any other core or subsystem uses the tracker.
func Init(base uintptr, size mm.Size) *kernel.Error {
	trackerLock.Acquire()
	defer trackerLock.Release()

	bootTracker = Tracker{}
	handedOff = false

	if !reporterRegistered {
		reporterRegistered = kfmt.RegisterPanicReporter("memblock", reportTracker)
	}

	return bootTracker.Add(base, size)
}

// reportTracker summarizes the kernel-wide tracker for the panic path. It
// never waits for the lock as the panicking core may already hold it.
func reportTracker(w io.Writer) {
	if !trackerLock.TryToAcquire() {
		kfmt.Fprintf(w, "tracker lock is held; summary unavailable\n")
		return
	}
	defer trackerLock.Release()

	kfmt.Fprintf(w, "%d regions, free: %dK, reserved: %dK, handed off: %t\n",
		bootTracker.Len(), uint64(bootTracker.TotalFree()/mm.Kb), uint64(bootTracker.TotalReserved()/mm.Kb), handedOff)
}

// guarded runs fn on the kernel-wide tracker while holding the lock.
func guarded(fn func(*Tracker) *kernel.Error) *kernel.Error {
	trackerLock.Acquire()
	defer trackerLock.Release()

	if handedOff {
		return ErrHandedOff
	}
	return fn(&bootTracker)
}

// Add declares free memory in the kernel-wide tracker.
func Add(base uintptr, size mm.Size) *kernel.Error {
	return guarded(func(t *Tracker) *kernel.Error { return t.Add(base, size) })
}

// Reserve marks memory as reserved in the kernel-wide tracker.
func Reserve(base uintptr, size mm.Size) *kernel.Error {
	return guarded(func(t *Tracker) *kernel.Error { return t.Reserve(base, size) })
}

// Remove untracks memory in the kernel-wide tracker.
func Remove(base uintptr, size mm.Size) *kernel.Error {
	return guarded(func(t *Tracker) *kernel.Error { return t.Remove(base, size) })
}

// Free returns reserved memory to the kernel-wide tracker.
func Free(base uintptr, size mm.Size) *kernel.Error {
	return guarded(func(t *Tracker) *kernel.Error { return t.Free(base, size) })
}

// Alloc reserves an aligned range from the kernel-wide tracker.
func Alloc(size, align mm.Size) (uintptr, *kernel.Error) {
	var base uintptr
	err := guarded(func(t *Tracker) *kernel.Error {
		var err *kernel.Error
		base, err = t.Alloc(size, align)
		return err
	})
	return base, err
}

// AllocFrame reserves a single page and returns its frame. It satisfies the
// frame allocator signature expected by page-level memory managers.
func AllocFrame() (mm.Frame, *kernel.Error) {
	base, err := Alloc(mm.PageSize, mm.PageSize)
	if err != nil {
		return mm.InvalidFrame, err
	}
	return mm.FrameFromAddress(base), nil
}

// TotalFree returns the free bytes in the kernel-wide tracker.
func TotalFree() mm.Size {
	trackerLock.Acquire()
	defer trackerLock.Release()
	return bootTracker.TotalFree()
}

// TotalReserved returns the reserved bytes in the kernel-wide tracker.
func TotalReserved() mm.Size {
	trackerLock.Acquire()
	defer trackerLock.Release()
	return bootTracker.TotalReserved()
}

// VisitRegions invokes visitor for each region of the kernel-wide tracker.
// The lock is held for the whole visit so the visitor must not call back
// into this package.
func VisitRegions(visitor func(Region) bool) {
	trackerLock.Acquire()
	defer trackerLock.Release()
	bootTracker.Visit(visitor)
}

// Dump prints the kernel-wide tracker to the console.
func Dump() {
	trackerLock.Acquire()
	defer trackerLock.Release()
	bootTracker.Dump(kfmt.GetOutputSink())
}

// HandOff freezes the kernel-wide tracker and passes every region to visitor
// so that the next allocator can copy the memory map. Once HandOff returns,
// every mutation fails with ErrHandedOff while reads keep working.
func HandOff(visitor func(Region) bool) *kernel.Error {
	trackerLock.Acquire()
	defer trackerLock.Release()

	if handedOff {
		return ErrHandedOff
	}

	handedOff = true
	bootTracker.Visit(visitor)
	return nil
}
