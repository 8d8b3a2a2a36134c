package kmain

import (
	"bytes"
	"phoenix/kernel"
	"phoenix/kernel/cpu"
	"phoenix/kernel/kfmt"
	"phoenix/kernel/mm"
	"phoenix/kernel/mm/memblock"
	"phoenix/kernel/mm/mmu"
	"phoenix/kernel/platform"
	"strings"
	"testing"
	"unsafe"
)

func TestBootInfoFromVirtual(t *testing.T) {
	info := BootInfoFromVirtual(
		mm.PhysToVirt(0x40080000),
		mm.PhysToVirt(0x40123456),
		mm.PhysToVirt(0x40100000),
		mm.PhysToVirt(0x40123456),
	)

	if info.ImageStart != 0x40080000 || info.ImageEnd != 0x40123456 {
		t.Fatalf("unexpected image bounds [0x%x, 0x%x)", info.ImageStart, info.ImageEnd)
	}

	if info.BSSStart != 0x40100000 || info.BSSEnd != 0x40123456 {
		t.Fatalf("unexpected BSS bounds [0x%x, 0x%x)", info.BSSStart, info.BSSEnd)
	}

	if info.PoolStart != 0x40124000 || info.PoolEnd != info.PoolStart+uintptr(mmu.TablePoolSize) {
		t.Fatalf("unexpected pool bounds [0x%x, 0x%x)", info.PoolStart, info.PoolEnd)
	}

	if !mm.IsAligned(info.StackStart, mm.PageSize) || info.StackStart < info.PoolEnd {
		t.Fatalf("expected the stack to start at the first page after the pool; got 0x%x", info.StackStart)
	}

	if info.StackEnd-info.StackStart != uintptr(platform.BootStackSize) {
		t.Fatalf("unexpected stack size 0x%x", info.StackEnd-info.StackStart)
	}
}

func TestBootConfig(t *testing.T) {
	info := BootInfoFromVirtual(mm.PhysToVirt(0x40080000), mm.PhysToVirt(0x40200000), mm.PhysToVirt(0x40180000), mm.PhysToVirt(0x40200000))
	cfg := info.BootConfig()

	if cfg.PoolPhys != 0x40200000 || cfg.BSSStart != 0x40180000 || cfg.Main == nil {
		t.Fatalf("unexpected boot config: %+v", cfg)
	}

	if uintptr(unsafe.Pointer(cfg.Pool)) != cfg.PoolPhys {
		t.Fatal("expected the table pool to be addressed at its physical location")
	}

	if cfg.StackStart != info.StackStart || cfg.StackEnd != info.StackEnd {
		t.Fatal("expected the boot stack to follow the pool")
	}

	if len(cfg.Ranges) != len(platform.BootRanges()) {
		t.Fatal("expected the platform boot ranges to be mapped")
	}
}

func TestKmainOnSecondaryCore(t *testing.T) {
	defer cpu.ResetSim()
	defer mmu.ResetSwitch()
	cpu.ResetSim()
	mmu.ResetSwitch()
	cpu.Sim().CoreID = 1
	cpu.Sim().EventLimit = 2

	done := make(chan struct{})
	go func() {
		defer close(done)
		Kmain(mm.PhysToVirt(0x40080000), mm.PhysToVirt(0x40200000), mm.PhysToVirt(0x40180000), mm.PhysToVirt(0x40200000))
	}()
	<-done

	if exp, got := mmu.StateParked, mmu.CoreState(1); got != exp {
		t.Fatalf("expected core 1 to be %s; got %s", exp, got)
	}

	if mmu.CurrentState() != mmu.StateReset || cpu.Sim().MAIR != 0 {
		t.Fatal("expected a secondary core to leave the address space untouched")
	}
}

func TestKmainUnsupportedExceptionLevel(t *testing.T) {
	defer cpu.ResetSim()
	defer mmu.ResetSwitch()
	cpu.ResetSim()
	mmu.ResetSwitch()
	cpu.Sim().CurrentEL = cpu.EL3

	done := make(chan struct{})
	go func() {
		defer close(done)
		Kmain(mm.PhysToVirt(0x40080000), mm.PhysToVirt(0x40200000), mm.PhysToVirt(0x40180000), mm.PhysToVirt(0x40200000))
	}()
	<-done

	if !cpu.Sim().Halted || mmu.BootError() == nil {
		t.Fatal("expected Kmain to halt with a recorded boot error")
	}

	if mmu.CurrentState() != mmu.StateReset {
		t.Fatalf("expected the switch to stop at reset; got %s", mmu.CurrentState())
	}
}

func mockKernelMain(t *testing.T, buf *bytes.Buffer) (halts *int, panicErr **kernel.Error, restore func()) {
	origInit, origDetect, origHalt, origPanic, origSink := goruntimeInitFn, detectHardwareFn, haltFn, panicFn, kfmt.GetOutputSink()

	halts = new(int)
	panicErr = new(*kernel.Error)

	goruntimeInitFn = func() *kernel.Error { return nil }
	detectHardwareFn = func() { kfmt.SetOutputSink(buf) }
	haltFn = func() { *halts++ }
	panicFn = func(e interface{}) {
		err, ok := e.(*kernel.Error)
		if !ok {
			t.Fatalf("unexpected panic value %v", e)
		}
		*panicErr = err
	}

	return halts, panicErr, func() {
		goruntimeInitFn, detectHardwareFn, haltFn, panicFn = origInit, origDetect, origHalt, origPanic
		kfmt.SetOutputSink(origSink)
	}
}

func TestKernelMain(t *testing.T) {
	var buf bytes.Buffer
	halts, panicErr, restore := mockKernelMain(t, &buf)
	defer restore()

	info := BootInfoFromVirtual(mm.PhysToVirt(0x40080000), mm.PhysToVirt(0x40180000), mm.PhysToVirt(0x40100000), mm.PhysToVirt(0x40180000))
	cfg := info.BootConfig()
	kernelMain(&cfg)

	if *panicErr != nil {
		t.Fatalf("unexpected panic: %v", *panicErr)
	}

	if *halts != 1 {
		t.Fatalf("expected kernel main to halt once; got %d", *halts)
	}

	for _, exp := range []string{
		"Hello, world!\n",
		"[kmain] running at 0xffffff8040080000\n",
		"[kmain] allocated test page at 0x0000000040000000\n",
		"[memblock] [0x0000000040080000 - 0x0000000040195fff] reserved\n",
		"[kmain] boot complete\n",
	} {
		if !strings.Contains(buf.String(), exp) {
			t.Errorf("expected output to contain %q; got:\n%s", exp, buf.String())
		}
	}

	// the pool is reserved in whole pages
	reserved := mm.Size(info.StackEnd-info.ImageStart) + mm.PageSize
	if got := memblock.TotalReserved(); got != reserved {
		t.Fatalf("expected %d reserved bytes; got %d", reserved, got)
	}
}

func TestKernelMainReserveFailure(t *testing.T) {
	halts, panicErr, restore := mockKernelMain(t, new(bytes.Buffer))
	defer restore()

	cfg := mmu.BootConfig{ImageStart: 0x40080000, ImageEnd: 0x40080000}
	kernelMain(&cfg)

	if *panicErr != memblock.ErrInvalidRegion {
		t.Fatalf("expected ErrInvalidRegion; got %v", *panicErr)
	}

	if *halts != 0 {
		t.Fatal("expected kernel main to stop at the first error")
	}
}

func TestKernelMainRuntimeInitFailure(t *testing.T) {
	halts, panicErr, restore := mockKernelMain(t, new(bytes.Buffer))
	defer restore()

	var detected bool
	errInit := &kernel.Error{Kind: kernel.OutOfMemory, Module: "goruntime", Message: "no heap"}
	goruntimeInitFn = func() *kernel.Error { return errInit }
	detectHardwareFn = func() { detected = true }

	info := BootInfoFromVirtual(mm.PhysToVirt(0x40080000), mm.PhysToVirt(0x40180000), mm.PhysToVirt(0x40100000), mm.PhysToVirt(0x40180000))
	cfg := info.BootConfig()
	kernelMain(&cfg)

	if *panicErr != errInit {
		t.Fatalf("expected the runtime init error; got %v", *panicErr)
	}

	if detected || *halts != 0 {
		t.Fatal("expected hardware detection to wait for the Go runtime")
	}
}
