// Package serial provides a driver for the ARM PL011 UART used as the boot
// console.
package serial

import (
	"io"
	"phoenix/device"
	"phoenix/kernel"
	"phoenix/kernel/kfmt"
	"phoenix/kernel/mm"
	"phoenix/kernel/platform"
	"sync/atomic"
	"unsafe"
)

// PL011 register offsets and flags.
const (
	regDR = 0x00
	regFR = 0x18

	// frTXFF is set while the transmit FIFO is full.
	frTXFF = uint32(1 << 5)
)

var (
	// mmioReadFn and mmioWriteFn are used by tests to mock register
	// access.
	mmioReadFn  = mmioRead
	mmioWriteFn = mmioWrite

	// txPollLimit bounds the number of status reads while waiting for
	// room in the transmit FIFO.
	txPollLimit = 1 << 20

	errTxTimeout = &kernel.Error{Kind: kernel.DeviceError, Module: "pl011", Message: "transmit FIFO stayed full"}

	pl011Info = device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForPl011,
	}
	registered bool
)

func mmioRead(addr uintptr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(addr)))
}

func mmioWrite(addr uintptr, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(addr)), value)
}

// Pl011 drives a PL011 UART. The firmware leaves the UART enabled so the
// driver only transmits.
type Pl011 struct {
	base uintptr
}

// NewPl011 returns a driver for the UART whose registers start at the
// supplied (virtual) base address.
func NewPl011(base uintptr) *Pl011 {
	return &Pl011{base: base}
}

// WriteByte waits until the transmit FIFO has room and sends b. It gives up
// if the FIFO is still full after txPollLimit status reads.
func (p *Pl011) WriteByte(b byte) error {
	for polls := 0; mmioReadFn(p.base+regFR)&frTXFF != 0; polls++ {
		if polls == txPollLimit {
			return errTxTimeout
		}
	}

	mmioWriteFn(p.base+regDR, uint32(b))
	return nil
}

// Write implements io.Writer. Newlines are sent as CRLF. On error, the
// returned count only includes the bytes of data that were fully sent.
func (p *Pl011) Write(data []byte) (int, error) {
	for i, b := range data {
		if b == '\n' {
			if err := p.WriteByte('\r'); err != nil {
				return i, err
			}
		}
		if err := p.WriteByte(b); err != nil {
			return i, err
		}
	}

	return len(data), nil
}

// DriverName returns the name of the driver.
func (p *Pl011) DriverName() string {
	return "pl011"
}

// DriverVersion returns the driver version.
func (p *Pl011) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit initializes the device driver.
func (p *Pl011) DriverInit(w io.Writer) *kernel.Error {
	kfmt.Fprintf(w, "uart at 0x%x\n", p.base)
	return nil
}

func probeForPl011() device.Driver {
	return NewPl011(mm.PhysToVirt(platform.UARTBase))
}

// Register adds the PL011 driver to the list of drivers probed by the hal
// package. Calls after the first one are no-ops.
func Register() *kernel.Error {
	if registered {
		return nil
	}

	if err := device.RegisterDriver(&pl011Info); err != nil {
		return err
	}

	registered = true
	return nil
}
