package kfmt

import (
	"io"
	"phoenix/kernel"
	"phoenix/kernel/cpu"
)

// MaxPanicReporters is the number of reporters RegisterPanicReporter
// accepts.
const MaxPanicReporters = 8

// PanicReporter writes a short summary of a subsystem's state. Reporters
// run on the panicking core with interrupts masked and must not block.
type PanicReporter func(w io.Writer)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Kind: kernel.BootFatal, Module: "rt", Message: "unknown cause"}

	// reporters live in a static array so registering one never needs the
	// Go allocator.
	reporters     [MaxPanicReporters]namedReporter
	reporterCount int

	// panicking is set while reporters run. A panic raised by a reporter
	// skips the remaining reporters and halts straight away.
	panicking bool
)

type namedReporter struct {
	prefix [16]byte
	plen   int
	fn     PanicReporter
}

// RegisterPanicReporter adds fn to the reporters that Panic runs after
// printing the error. Each line fn writes is prefixed with "[name] ". It
// returns false once MaxPanicReporters reporters are registered.
func RegisterPanicReporter(name string, fn PanicReporter) bool {
	if reporterCount == len(reporters) || fn == nil {
		return false
	}

	r := &reporters[reporterCount]
	r.prefix[0], r.plen = '[', 1
	for i := 0; i < len(name) && r.plen < len(r.prefix)-2; i++ {
		r.prefix[r.plen] = name[i]
		r.plen++
	}
	r.prefix[r.plen], r.prefix[r.plen+1] = ']', ' '
	r.plen += 2
	r.fn = fn

	reporterCount++
	return true
}

// Panic outputs the supplied error (if not nil) to the console followed by
// the output of every registered reporter and halts the CPU. Calls to Panic
// never return. Panic also works as a redirection target for calls to
// panic() (resolved via runtime.gopanic).
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error (%s): %s\n", err.Module, err.Kind.String(), err.Message)
	}

	if !panicking {
		panicking = true
		runReporters()
	}

	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	panicking = false
	cpuHaltFn()
}

func runReporters() {
	var w PrefixWriter
	for i := 0; i < reporterCount; i++ {
		w = PrefixWriter{Sink: consoleWriter{}, Prefix: reporters[i].prefix[:reporters[i].plen]}
		reporters[i].fn(&w)
		if w.midLine {
			writeByte(outputSink, '\n')
		}
	}
}

// consoleWriter forwards writes to the current output sink or, if none is
// attached yet, to the early print buffer.
type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	doWrite(outputSink, p)
	return len(p), nil
}

// panicString serves as a redirect target for runtime.throw
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
