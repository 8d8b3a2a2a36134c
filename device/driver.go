package device

import (
	"io"
	"phoenix/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the hal package.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver's probe function should
	// be executed before any other driver. Console drivers use it so that
	// the other drivers can log their progress.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderNormal is the default detection order.
	DetectOrderNormal DetectOrder = 0

	// DetectOrderLast specifies that the driver's probe function should
	// be executed after all other drivers.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo is a driver-defined struct that is passed to calls to
// RegisterDriver.
type DriverInfo struct {
	// Order specifies at which stage of the hardware detection process
	// the driver will be probed.
	Order DetectOrder

	// Probe is a function that checks for the presence of a particular
	// piece of hardware and returns a driver for it.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements
// sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

// MaxDrivers is the number of drivers that can be registered.
const MaxDrivers = 16

var (
	errTooManyDrivers = &kernel.Error{Kind: kernel.CapacityExceeded, Module: "device", Message: "driver table is full"}

	// Drivers register before the Go allocator is up so the list lives in
	// a static array.
	registeredDrivers [MaxDrivers]*DriverInfo
	driverCount       int
)

// RegisterDriver adds the supplied driver info to the list of registered
// drivers. The list can be retrieved by a call to DriverList().
func RegisterDriver(info *DriverInfo) *kernel.Error {
	if driverCount == MaxDrivers {
		return errTooManyDrivers
	}

	registeredDrivers[driverCount] = info
	driverCount++
	return nil
}

// DriverList returns the list of registered drivers. The list aliases the
// registry; sorting it reorders the registry in place.
func DriverList() DriverInfoList {
	return registeredDrivers[:driverCount]
}
