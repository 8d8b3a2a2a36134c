package mm

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// IsPowerOfTwo returns true if s is a non-zero power of two.
func (s Size) IsPowerOfTwo() bool {
	return s != 0 && s&(s-1) == 0
}

// AlignUp rounds addr up to the next multiple of align which must be a power
// of two. The second return value is false if rounding overflows the address
// width.
func AlignUp(addr uintptr, align Size) (uintptr, bool) {
	mask := uintptr(align - 1)
	aligned := (addr + mask) &^ mask
	return aligned, aligned >= addr
}

// IsAligned returns true if addr is a multiple of align which must be a power
// of two.
func IsAligned(addr uintptr, align Size) bool {
	return addr&uintptr(align-1) == 0
}
