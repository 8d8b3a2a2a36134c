package mm

import "unsafe"

// Memset sets size bytes at the given address to the supplied value. Instead
// of a byte loop it makes log2(size) copy calls, which is a good fit for the
// page-aligned blocks it usually clears (translation tables, .bss).
func Memset(addr uintptr, value byte, size Size) {
	if size == 0 {
		return
	}

	target := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	target[0] = value
	for index := Size(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}
