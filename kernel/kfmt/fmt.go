// Package kfmt implements the kernel's diagnostic output: a minimal,
// allocation-free Printf that buffers its output until a serial sink is
// attached, plus the panic path that reports an error and halts the core.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize is large enough for a 64-bit value in base 8 plus a sign.
const numBufSize = 24

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	digits = "0123456789abcdef"

	numBuf [numBufSize]byte

	// singleByte is a shared buffer for passing single characters to
	// doWrite without allocating.
	singleByte = []byte(" ")

	// earlyPrintBuffer captures Printf output until a sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink receives Printf output. While nil, output goes to
	// earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the current target for calls to Printf.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf provides a minimal Printf implementation that can be used before
// the Go allocator is available. It supports the following subset of the fmt
// verbs:
//
//	%s  string or []byte
//	%d  base 10 integer
//	%x  base 16 integer, lower-case
//	%o  base 8 integer
//	%t  boolean
//	%%  a literal percent sign
//
// An optional decimal width may precede the verb. Strings and base-10
// integers are left-padded with spaces; base-8 and base-16 integers are
// left-padded with zeroes.
//
// Pointers (%p) are not supported as printing them requires reflect which
// pulls in allocating runtime helpers.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		width    int
		i        int
	)

	for i < len(format) {
		if format[i] != '%' {
			writeByte(w, format[i])
			i++
			continue
		}

		width = 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			doWrite(w, errNoVerb)
			break
		}

		verb := format[i]
		i++

		switch verb {
		case '%':
			writeByte(w, '%')
			continue
		case 'd', 'x', 'o', 's', 't':
		default:
			doWrite(w, errNoVerb)
			continue
		}

		if argIndex >= len(args) {
			doWrite(w, errMissingArg)
			continue
		}

		switch verb {
		case 'd':
			fmtInt(w, args[argIndex], 10, width)
		case 'x':
			fmtInt(w, args[argIndex], 16, width)
		case 'o':
			fmtInt(w, args[argIndex], 8, width)
		case 's':
			fmtString(w, args[argIndex], width)
		case 't':
			fmtBool(w, args[argIndex])
		}
		argIndex++
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case b:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		fmtRepeat(w, ' ', width-len(s))
		// converting the string to a byte slice allocates so write it
		// one byte at a time.
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		fmtRepeat(w, ' ', width-len(s))
		doWrite(w, s)
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtRepeat(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// fmtInt prints v in the requested base applying the padding specified by
// width. All built-in integer types are supported.
func fmtInt(w io.Writer, v interface{}, base uint64, width int) {
	var (
		uval     uint64
		negative bool
	)

	switch n := v.(type) {
	case uint8:
		uval = uint64(n)
	case uint16:
		uval = uint64(n)
	case uint32:
		uval = uint64(n)
	case uint64:
		uval = n
	case uint:
		uval = uint64(n)
	case uintptr:
		uval = uint64(n)
	case int8:
		uval, negative = abs(int64(n))
	case int16:
		uval, negative = abs(int64(n))
	case int32:
		uval, negative = abs(int64(n))
	case int64:
		uval, negative = abs(n)
	case int:
		uval, negative = abs(int64(n))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	// Fill the buffer backwards starting with the least significant digit
	pos := numBufSize
	for {
		pos--
		numBuf[pos] = digits[uval%base]
		uval /= base
		if uval == 0 {
			break
		}
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	ndigits := numBufSize - pos
	if negative {
		ndigits++
	}

	if padCh == ' ' {
		fmtRepeat(w, ' ', width-ndigits)
		if negative {
			writeByte(w, '-')
		}
	} else {
		if negative {
			writeByte(w, '-')
		}
		fmtRepeat(w, '0', width-ndigits)
	}

	doWrite(w, numBuf[pos:])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func writeByte(w io.Writer, b byte) {
	singleByte[0] = b
	doWrite(w, singleByte)
}

// doWrite hides p from escape analysis. Without this, the compiler cannot
// tell that p does not escape through the unknown io.Writer and boxes it on
// the heap, which crashes the kernel when Printf runs before the allocator
// is up.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
