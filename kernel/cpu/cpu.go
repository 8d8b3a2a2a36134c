// Package cpu exposes the handful of AArch64 system register and barrier
// operations that the boot code needs.
//
// Real register access is only compiled for arm64 builds carrying the
// baremetal tag. Every other build (host tests, host tools) gets a software
// model of the same registers so the boot sequence can be exercised off
// target.
package cpu

// Exception levels reported by CurrentEL.
const (
	EL0 uint8 = iota
	EL1
	EL2
	EL3
)

// BootCore is the MPIDR affinity-0 value of the core that runs the boot
// sequence. All other cores are parked.
const BootCore uint8 = 0
