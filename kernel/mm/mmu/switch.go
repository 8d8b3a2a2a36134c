package mmu

import (
	"io"
	"phoenix/kernel"
	"phoenix/kernel/cpu"
	"phoenix/kernel/kfmt"
	"phoenix/kernel/mm"
)

// State is a step of the boot core's address space switch. States are only
// ever entered in increasing order.
type State uint8

// The switch states.
const (
	StateReset State = iota
	StatePrivilegeConfigured
	StateTablesInstalled
	StateTranslationEnabled
	StateHighHalfActive
	StateUninitializedDataCleared
	StateRuntimeEntered

	// StateParked is terminal for secondary cores. A parked core waits
	// for events until a future wake-up protocol releases it.
	StateParked
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case StateReset:
		return "reset"
	case StatePrivilegeConfigured:
		return "privilege-configured"
	case StateTablesInstalled:
		return "tables-installed"
	case StateTranslationEnabled:
		return "translation-enabled"
	case StateHighHalfActive:
		return "high-half-active"
	case StateUninitializedDataCleared:
		return "bss-cleared"
	case StateRuntimeEntered:
		return "runtime-entered"
	case StateParked:
		return "parked"
	default:
		return "invalid"
	}
}

// BootConfig describes everything the switch needs. All addresses are
// physical.
type BootConfig struct {
	// Ranges lists the physical memory that the boot tables map.
	Ranges []Range

	// Pool receives the encoded tables and PoolPhys is the address the
	// MMU uses to reach it.
	Pool     *TablePool
	PoolPhys uintptr

	// The kernel image and the boot stack must be covered by normal
	// memory in Ranges.
	ImageStart, ImageEnd uintptr
	StackStart, StackEnd uintptr

	// The uninitialized data section, cleared through the high half. It
	// must not contain the boot stack or the table pool.
	BSSStart, BSSEnd uintptr

	// Main is invoked once the high half is active with a copy of the
	// config that outlives the BSS clear. It must be a top-level function.
	Main func(*BootConfig)
}

var (
	errUnsupportedEL     = &kernel.Error{Kind: kernel.BootFatal, Module: "mmu", Message: "boot core runs at an unsupported exception level"}
	errPrivilegeDrop     = &kernel.Error{Kind: kernel.BootFatal, Module: "mmu", Message: "failed to drop to EL1"}
	errInvalidTransition = &kernel.Error{Kind: kernel.BootFatal, Module: "mmu", Message: "address space switch steps executed out of order"}
	errRegisterReadback  = &kernel.Error{Kind: kernel.BootFatal, Module: "mmu", Message: "system register readback mismatch"}
	errImageNotMapped    = &kernel.Error{Kind: kernel.BootFatal, Module: "mmu", Message: "kernel image is not covered by the boot tables"}
	errStackNotMapped    = &kernel.Error{Kind: kernel.BootFatal, Module: "mmu", Message: "boot stack is not covered by the boot tables"}

	// The hooks below are only called from the high half. Everything that
	// runs before translation is enabled calls the cpu package directly:
	// function values hold link-time (high half) addresses that fault while
	// the core still executes from physical memory.
	memsetFn = mm.Memset
	panicFn  = kfmt.Panic
)

// switchState holds the boot state. The magic field gives the variable a
// non-zero initializer which keeps it out of the BSS section that the switch
// clears.
type switchState struct {
	magic       uint32
	state       State
	err         *kernel.Error
	cfg         BootConfig
	descriptors DescriptorSet

	// secondaries tracks every other core. Each core only writes its own
	// slot.
	secondaries [256]State
}

const switchMagic = 0x4d4d5521

var boot = switchState{magic: switchMagic}

// CurrentState returns the state the boot core has reached.
func CurrentState() State {
	return boot.state
}

// CoreState returns the state reached by the given core.
func CoreState(core uint8) State {
	if core == cpu.BootCore {
		return boot.state
	}
	return boot.secondaries[core]
}

// BootError returns the error that stopped the switch before translation
// was enabled, or nil. Such errors cannot be printed when they happen; the
// value is kept for a debugger or for code that runs after a warm restart.
func BootError() *kernel.Error {
	return boot.err
}

// Descriptors returns the descriptor set built during Boot.
func Descriptors() *DescriptorSet {
	return &boot.descriptors
}

// advance moves the boot core to next. Any other transition than to the
// immediately following state is rejected.
func advance(next State) *kernel.Error {
	if next == StateParked || next != boot.state+1 {
		return errInvalidTransition
	}

	boot.state = next
	return nil
}

// Boot builds the boot tables from cfg, installs them, enables translation
// and continues execution in the high half where it clears the BSS and calls
// cfg.Main. Boot never returns on the boot core: if any step fails the core
// halts. Secondary cores are parked without touching the boot core's state.
//
// Boot runs from physical memory with translation disabled while the image
// is linked at the high half. Until the jump it only makes direct calls and
// never dereferences package-level pointers.
func Boot(cfg *BootConfig) {
	if core := cpu.CoreID(); core != cpu.BootCore {
		park(core)
		return
	}

	boot.cfg = *cfg

	if err := configurePrivilege(); err != nil {
		earlyFail(err)
		return
	}

	if err := BuildTables(cfg.Ranges, &boot.descriptors); err != nil {
		earlyFail(err)
		return
	}

	if err := Encode(&boot.descriptors, cfg.Pool, cfg.PoolPhys); err != nil {
		earlyFail(err)
		return
	}

	if !Covers(cfg.Pool, cfg.PoolPhys, cfg.ImageStart, mm.Size(cfg.ImageEnd-cfg.ImageStart), AttrNormal) {
		earlyFail(errImageNotMapped)
		return
	}

	if !Covers(cfg.Pool, cfg.PoolPhys, cfg.StackStart, mm.Size(cfg.StackEnd-cfg.StackStart), AttrNormal) {
		earlyFail(errStackNotMapped)
		return
	}

	if err := InstallAndEnable(cfg.PoolPhys); err != nil {
		earlyFail(err)
		return
	}

	cpu.JumpToVirtual(mm.KernelVirtualBase, highHalfEntry)
}

// park puts a secondary core to sleep. The loop only exits once a wake-up
// protocol is implemented.
func park(core uint8) {
	if boot.secondaries[core] != StateReset {
		earlyFail(errInvalidTransition)
		return
	}
	boot.secondaries[core] = StateParked

	for {
		cpu.WaitForEvent()
	}
}

// configurePrivilege ensures that the boot core runs at EL1.
func configurePrivilege() *kernel.Error {
	switch cpu.CurrentEL() {
	case cpu.EL1:
	case cpu.EL2:
		cpu.DropToEL1()
		if cpu.CurrentEL() != cpu.EL1 {
			return errPrivilegeDrop
		}
	default:
		return errUnsupportedEL
	}

	return advance(StatePrivilegeConfigured)
}

// InstallAndEnable programs the memory attributes, the translation control
// register and both table base registers with the root table at rootPhys,
// then turns on the MMU and caches. Every register write is read back and
// verified.
func InstallAndEnable(rootPhys uintptr) *kernel.Error {
	if boot.state != StatePrivilegeConfigured {
		return errInvalidTransition
	}

	cpu.WriteMAIR(MAIRValue)
	cpu.WriteTCR(TCRValue)
	cpu.DSB()
	cpu.WriteTTBR0(uint64(rootPhys))
	cpu.WriteTTBR1(uint64(rootPhys))
	cpu.ISB()
	cpu.InvalidateTLB()
	cpu.DSB()
	cpu.ISB()

	if cpu.ReadMAIR() != MAIRValue || cpu.ReadTCR() != TCRValue ||
		cpu.ReadTTBR0() != uint64(rootPhys) || cpu.ReadTTBR1() != uint64(rootPhys) {
		return errRegisterReadback
	}

	if err := advance(StateTablesInstalled); err != nil {
		return err
	}

	cpu.WriteSCTLR(cpu.ReadSCTLR() | SCTLREnableBits)
	cpu.ISB()

	if cpu.ReadSCTLR()&SCTLREnableBits != SCTLREnableBits {
		return errRegisterReadback
	}

	return advance(StateTranslationEnabled)
}

// highHalfEntry runs with the program counter and stack in the high half.
func highHalfEntry() {
	if err := advance(StateHighHalfActive); err != nil {
		fail(err)
		return
	}

	if size := boot.cfg.BSSEnd - boot.cfg.BSSStart; boot.cfg.BSSEnd > boot.cfg.BSSStart {
		memsetFn(mm.PhysToVirt(boot.cfg.BSSStart), 0, mm.Size(size))
	}

	if err := advance(StateUninitializedDataCleared); err != nil {
		fail(err)
		return
	}

	// the reporter table lives in the BSS so it is only usable from here on
	kfmt.RegisterPanicReporter("mmu", reportSwitchState)

	if err := advance(StateRuntimeEntered); err != nil {
		fail(err)
		return
	}

	boot.cfg.Main(&boot.cfg)
}

// earlyFail records err and halts the core. It runs with translation
// disabled and must not print or dereference err.
func earlyFail(err *kernel.Error) {
	boot.err = err
	cpu.Halt()
}

func fail(err *kernel.Error) {
	kfmt.Printf("[mmu] address space switch failed after state %s\n", boot.state.String())
	panicFn(err)
}

// reportSwitchState summarizes the switch for the panic path.
func reportSwitchState(w io.Writer) {
	var parked int
	for _, s := range boot.secondaries {
		if s == StateParked {
			parked++
		}
	}

	kfmt.Fprintf(w, "boot core state: %s, parked cores: %d\n", boot.state.String(), parked)
	kfmt.Fprintf(w, "ttbr0: 0x%16x, ttbr1: 0x%16x, sctlr: 0x%16x\n", cpu.ReadTTBR0(), cpu.ReadTTBR1(), cpu.ReadSCTLR())
}
