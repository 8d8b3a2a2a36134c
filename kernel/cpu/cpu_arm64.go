//go:build arm64 && baremetal

package cpu

// Halt masks interrupts and stops instruction execution. It never returns.
func Halt()

// WaitForEvent suspends the core until an event (SEV, interrupt) arrives.
func WaitForEvent()

// Yield hints the core that the caller is spinning.
func Yield()

// CoreID returns the affinity-0 field of MPIDR_EL1.
func CoreID() uint8

// CurrentEL returns the exception level the core is executing at.
func CurrentEL() uint8

// DropToEL1 configures EL1 for AArch64 execution and returns to the caller
// at EL1h with interrupts masked and the current stack. It must only be
// called at EL2.
func DropToEL1()

// ReadMAIR returns the value of MAIR_EL1.
func ReadMAIR() uint64

// WriteMAIR sets MAIR_EL1.
func WriteMAIR(value uint64)

// ReadTCR returns the value of TCR_EL1.
func ReadTCR() uint64

// WriteTCR sets TCR_EL1.
func WriteTCR(value uint64)

// ReadTTBR0 returns the value of TTBR0_EL1.
func ReadTTBR0() uint64

// WriteTTBR0 sets TTBR0_EL1.
func WriteTTBR0(value uint64)

// ReadTTBR1 returns the value of TTBR1_EL1.
func ReadTTBR1() uint64

// WriteTTBR1 sets TTBR1_EL1.
func WriteTTBR1(value uint64)

// ReadSCTLR returns the value of SCTLR_EL1.
func ReadSCTLR() uint64

// WriteSCTLR sets SCTLR_EL1.
func WriteSCTLR(value uint64)

// ISB issues an instruction synchronization barrier.
func ISB()

// DSB issues a full-system data synchronization barrier.
func DSB()

// InvalidateTLB drops all EL1 TLB entries for the current VMID.
func InvalidateTLB()

// JumpToVirtual moves the stack and frame pointers up by offset and calls
// entry. The entry function must be a top-level function so that its code
// pointer is a link-time (high-half) address. JumpToVirtual never returns;
// if entry returns the core waits for events forever.
//
//go:noescape
func JumpToVirtual(offset uintptr, entry func())
