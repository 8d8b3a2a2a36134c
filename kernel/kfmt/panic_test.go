package kfmt

import (
	"bytes"
	"errors"
	"io"
	"phoenix/kernel"
	"phoenix/kernel/cpu"
	"testing"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		outputSink = nil
	}()

	var cpuHaltCalled bool
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	t.Run("with *kernel.Error", func(t *testing.T) {
		cpuHaltCalled = false
		buf.Reset()
		err := &kernel.Error{Kind: kernel.CapacityExceeded, Module: "test", Message: "panic test"}

		Panic(err)

		exp := "\n-----------------------------------\n[test] unrecoverable error (capacity exceeded): panic test\n*** kernel panic: system halted ***\n-----------------------------------\n"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("with error", func(t *testing.T) {
		cpuHaltCalled = false
		buf.Reset()
		err := errors.New("go error")

		Panic(err)

		exp := "\n-----------------------------------\n[rt] unrecoverable error (boot fatal): go error\n*** kernel panic: system halted ***\n-----------------------------------\n"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("with string", func(t *testing.T) {
		cpuHaltCalled = false
		buf.Reset()
		err := "string error"

		Panic(err)

		exp := "\n-----------------------------------\n[rt] unrecoverable error (boot fatal): string error\n*** kernel panic: system halted ***\n-----------------------------------\n"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("without error", func(t *testing.T) {
		cpuHaltCalled = false
		buf.Reset()

		Panic(nil)

		exp := "\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n"

		if got := buf.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})
}

func TestPanicReporters(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		outputSink = nil
		reporterCount = 0
	}()

	var halts int
	cpuHaltFn = func() { halts++ }

	var buf bytes.Buffer
	SetOutputSink(&buf)

	reporterCount = 0
	if !RegisterPanicReporter("mmu", func(w io.Writer) {
		Fprintf(w, "boot state: %s\n", "translation-enabled")
	}) {
		t.Fatal("expected reporter to be registered")
	}
	if !RegisterPanicReporter("memblock", func(w io.Writer) {
		Fprintf(w, "3 regions\nlock held: %t", false)
	}) {
		t.Fatal("expected reporter to be registered")
	}

	Panic(&kernel.Error{Kind: kernel.OutOfMemory, Module: "test", Message: "no frames"})

	exp := "\n-----------------------------------\n" +
		"[test] unrecoverable error (out of memory): no frames\n" +
		"[mmu] boot state: translation-enabled\n" +
		"[memblock] 3 regions\n" +
		"[memblock] lock held: false\n" +
		"*** kernel panic: system halted ***\n-----------------------------------\n"

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}

	if halts != 1 {
		t.Fatalf("expected cpu.Halt() to be called once; got %d", halts)
	}
}

func TestPanicInsideReporter(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		outputSink = nil
		reporterCount = 0
	}()

	var halts int
	cpuHaltFn = func() { halts++ }

	var buf bytes.Buffer
	SetOutputSink(&buf)

	reporterCount = 0
	RegisterPanicReporter("broken", func(w io.Writer) {
		Panic(&kernel.Error{Kind: kernel.BootFatal, Module: "broken", Message: "reporter failed"})
	})

	Panic(&kernel.Error{Kind: kernel.BootFatal, Module: "test", Message: "first"})

	// the nested panic must not run the reporters again
	if got := bytes.Count(buf.Bytes(), []byte("reporter failed")); got != 1 {
		t.Fatalf("expected the nested panic to be reported once; got %d\n%s", got, buf.String())
	}

	if halts != 2 {
		t.Fatalf("expected cpu.Halt() to be called twice; got %d", halts)
	}
}

func TestRegisterPanicReporter(t *testing.T) {
	defer func() { reporterCount = 0 }()

	reporterCount = 0
	noop := func(io.Writer) {}

	if RegisterPanicReporter("nil", nil) {
		t.Fatal("expected a nil reporter to be rejected")
	}

	for i := 0; i < MaxPanicReporters; i++ {
		if !RegisterPanicReporter("r", noop) {
			t.Fatalf("expected reporter %d to be registered", i)
		}
	}

	if RegisterPanicReporter("r", noop) {
		t.Fatal("expected registration to fail once the table is full")
	}

	// long names are truncated to fit the prefix buffer
	reporterCount = 0
	RegisterPanicReporter("a-very-long-subsystem-name", noop)
	if exp, got := "[a-very-long-s] ", string(reporters[0].prefix[:reporters[0].plen]); got != exp {
		t.Fatalf("expected prefix %q; got %q", exp, got)
	}
}
