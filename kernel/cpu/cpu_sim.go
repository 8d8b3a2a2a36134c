//go:build !(arm64 && baremetal)

package cpu

import "runtime"

// SimReg is a set of simulated system registers.
type SimReg uint8

// The registers that can be selected in SimState.Stuck.
const (
	RegMAIR SimReg = 1 << iota
	RegTCR
	RegTTBR0
	RegTTBR1
	RegSCTLR
)

// SimState models the architectural state that the boot code touches. It
// stands in for the real system registers on builds without the baremetal
// tag.
type SimState struct {
	CoreID    uint8
	CurrentEL uint8

	HCR   uint64
	MAIR  uint64
	TCR   uint64
	TTBR0 uint64
	TTBR1 uint64
	SCTLR uint64

	// VirtualOffset records the offset passed to the last JumpToVirtual.
	VirtualOffset uintptr

	Barriers         int
	TLBInvalidations int
	Events           int
	Halted           bool

	// Stuck lists registers that silently ignore writes.
	Stuck SimReg

	// DropToEL1Fails leaves the core at EL2 when DropToEL1 runs.
	DropToEL1Fails bool

	// EventLimit terminates the calling goroutine once WaitForEvent has
	// run that many times. Zero means no limit.
	EventLimit int
}

// sctlrResetValue holds the RES1 bits of SCTLR_EL1 with the MMU and caches
// disabled.
const sctlrResetValue = 0x30d00800

var sim = newSimState()

func newSimState() SimState {
	return SimState{CurrentEL: EL2, SCTLR: sctlrResetValue}
}

// Sim returns the simulated register file.
func Sim() *SimState {
	return &sim
}

// ResetSim restores the simulated core to its reset state: boot core,
// running at EL2 with translation disabled.
func ResetSim() {
	sim = newSimState()
}

// Halt records the halt and terminates the calling goroutine after running
// its deferred calls. Callers that want to observe a halt should run the
// code that may halt on a separate goroutine.
func Halt() {
	sim.Halted = true
	runtime.Goexit()
}

// WaitForEvent yields the processor to other goroutines. Once EventLimit
// events have been waited for, the calling goroutine exits.
func WaitForEvent() {
	sim.Events++
	if sim.EventLimit != 0 && sim.Events >= sim.EventLimit {
		runtime.Goexit()
	}
	runtime.Gosched()
}

// Yield yields the processor to other goroutines.
func Yield() {
	runtime.Gosched()
}

// CoreID returns the simulated core affinity.
func CoreID() uint8 { return sim.CoreID }

// CurrentEL returns the simulated exception level.
func CurrentEL() uint8 { return sim.CurrentEL }

// DropToEL1 moves the simulated core from EL2 to EL1.
func DropToEL1() {
	if sim.CurrentEL == EL2 && !sim.DropToEL1Fails {
		sim.HCR |= 1 << 31
		sim.CurrentEL = EL1
	}
}

// ReadMAIR returns the simulated MAIR_EL1.
func ReadMAIR() uint64 { return sim.MAIR }

// WriteMAIR sets the simulated MAIR_EL1.
func WriteMAIR(value uint64) { simWrite(RegMAIR, &sim.MAIR, value) }

// ReadTCR returns the simulated TCR_EL1.
func ReadTCR() uint64 { return sim.TCR }

// WriteTCR sets the simulated TCR_EL1.
func WriteTCR(value uint64) { simWrite(RegTCR, &sim.TCR, value) }

// ReadTTBR0 returns the simulated TTBR0_EL1.
func ReadTTBR0() uint64 { return sim.TTBR0 }

// WriteTTBR0 sets the simulated TTBR0_EL1.
func WriteTTBR0(value uint64) { simWrite(RegTTBR0, &sim.TTBR0, value) }

// ReadTTBR1 returns the simulated TTBR1_EL1.
func ReadTTBR1() uint64 { return sim.TTBR1 }

// WriteTTBR1 sets the simulated TTBR1_EL1.
func WriteTTBR1(value uint64) { simWrite(RegTTBR1, &sim.TTBR1, value) }

// ReadSCTLR returns the simulated SCTLR_EL1.
func ReadSCTLR() uint64 { return sim.SCTLR }

// WriteSCTLR sets the simulated SCTLR_EL1.
func WriteSCTLR(value uint64) { simWrite(RegSCTLR, &sim.SCTLR, value) }

// ISB counts a barrier.
func ISB() { sim.Barriers++ }

// DSB counts a barrier.
func DSB() { sim.Barriers++ }

// InvalidateTLB counts a TLB invalidation.
func InvalidateTLB() { sim.TLBInvalidations++ }

// JumpToVirtual records offset and calls entry. Host memory has no separate
// high-half view so the stack is left untouched.
func JumpToVirtual(offset uintptr, entry func()) {
	sim.VirtualOffset = offset
	entry()
}

func simWrite(reg SimReg, dst *uint64, value uint64) {
	if sim.Stuck&reg == 0 {
		*dst = value
	}
}
