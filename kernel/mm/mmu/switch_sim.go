//go:build !(arm64 && baremetal)

package mmu

// ResetSwitch returns every core to the reset state and forgets the boot
// config, the descriptors and any recorded error so that the simulated core
// can run Boot again.
func ResetSwitch() {
	boot = switchState{magic: switchMagic}
}
