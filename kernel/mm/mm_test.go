package mm

import (
	"testing"
	"unsafe"
)

func TestAddressTranslation(t *testing.T) {
	specs := []struct {
		phys uintptr
		virt uintptr
	}{
		{0, 0xffffff8000000000},
		{0x09000000, 0xffffff8009000000},
		{0x40080000, 0xffffff8040080000},
	}

	for specIndex, spec := range specs {
		if got := PhysToVirt(spec.phys); got != spec.virt {
			t.Errorf("[spec %d] expected PhysToVirt(0x%x) to return 0x%x; got 0x%x", specIndex, spec.phys, spec.virt, got)
		}

		if got := VirtToPhys(spec.virt); got != spec.phys {
			t.Errorf("[spec %d] expected VirtToPhys(0x%x) to return 0x%x; got 0x%x", specIndex, spec.virt, spec.phys, got)
		}

		if !IsKernelAddr(spec.virt) {
			t.Errorf("[spec %d] expected 0x%x to be a kernel address", specIndex, spec.virt)
		}
	}

	if IsKernelAddr(0x40000000) {
		t.Error("expected a physical RAM address not to be a kernel address")
	}
}

func TestAlignment(t *testing.T) {
	specs := []struct {
		addr       uintptr
		align      Size
		expAligned uintptr
		expOK      bool
	}{
		{0x1000, 0x1000, 0x1000, true},
		{0x1001, 0x1000, 0x2000, true},
		{0x0, 2 * Mb, 0x0, true},
		{0x40080000, 2 * Mb, 0x40200000, true},
		{0x1234, 1, 0x1234, true},
		{^uintptr(0) - 10, 0x1000, 0, false},
	}

	for specIndex, spec := range specs {
		got, ok := AlignUp(spec.addr, spec.align)
		if ok != spec.expOK {
			t.Errorf("[spec %d] expected AlignUp ok to be %t; got %t", specIndex, spec.expOK, ok)
			continue
		}

		if ok && got != spec.expAligned {
			t.Errorf("[spec %d] expected AlignUp(0x%x, 0x%x) to return 0x%x; got 0x%x", specIndex, spec.addr, spec.align, spec.expAligned, got)
		}

		if ok && !IsAligned(got, spec.align) {
			t.Errorf("[spec %d] expected 0x%x to be aligned to 0x%x", specIndex, got, spec.align)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, s := range []Size{1, 2, 4, PageSize, 2 * Mb, Gb} {
		if !s.IsPowerOfTwo() {
			t.Errorf("expected %d to be a power of two", s)
		}
	}

	for _, s := range []Size{0, 3, 6, 0x1001, 3 * Mb} {
		if s.IsPowerOfTwo() {
			t.Errorf("expected %d not to be a power of two", s)
		}
	}
}

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{0x40080000, Frame(0x40080)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestMemset(t *testing.T) {
	// memset with a 0 size should be a no-op
	Memset(uintptr(0), 0x00, 0)

	for pageCount := uint32(1); pageCount <= 4; pageCount++ {
		buf := make([]byte, PageSize<<pageCount)
		for i := 0; i < len(buf); i++ {
			buf[i] = 0xFE
		}

		addr := uintptr(unsafe.Pointer(&buf[0]))
		Memset(addr, 0x00, Size(len(buf)))

		for i := 0; i < len(buf); i++ {
			if got := buf[i]; got != 0x00 {
				t.Errorf("[block with %d pages] expected byte: %d to be 0x00; got 0x%x", pageCount, i, got)
				break
			}
		}
	}
}
