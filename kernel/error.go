package kernel

// ErrorKind classifies a kernel error so callers can decide whether the
// failure is recoverable at their stage of the boot process.
type ErrorKind uint8

// The list of supported error kinds.
const (
	// AlignmentError is returned when an alignment is not a power of two or
	// when a range is not aligned to the requested block size.
	AlignmentError ErrorKind = iota + 1

	// OverlapError is returned when a request conflicts with an existing
	// region of a different kind.
	OverlapError

	// CapacityExceeded is returned when a fixed-size table has no room
	// left. There is nothing to grow into during boot so callers treat it
	// as fatal.
	CapacityExceeded

	// OutOfMemory is returned when no free region can satisfy a request.
	OutOfMemory

	// InvalidRegion is returned for zero-sized or overflowing ranges.
	InvalidRegion

	// BootFatal marks failures while building or installing the address
	// space. The only valid response is to halt.
	BootFatal

	// DeviceError is returned when a device does not respond.
	DeviceError
)

// String implements fmt.Stringer for ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case AlignmentError:
		return "alignment error"
	case OverlapError:
		return "overlap error"
	case CapacityExceeded:
		return "capacity exceeded"
	case OutOfMemory:
		return "out of memory"
	case InvalidRegion:
		return "invalid region"
	case BootFatal:
		return "boot fatal"
	case DeviceError:
		return "device error"
	default:
		return "unknown"
	}
}

// Error describes a kernel error. All kernel errors must be defined as global
// variables that are pointers to the Error structure. This requirement stems
// from the fact that no heap allocator is available while the memory
// subsystem bootstraps itself so errors.New cannot be used.
type Error struct {
	// The kind of failure.
	Kind ErrorKind

	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Fatal returns true if the error cannot be recovered from while the kernel
// is still booting.
func (e *Error) Fatal() bool {
	return e.Kind == CapacityExceeded || e.Kind == BootFatal
}
