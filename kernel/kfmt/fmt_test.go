package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		{
			func() { printfn("100%% done") },
			"100% done",
		},
		// bool values
		{
			func() { printfn("%t", true) },
			"true",
		},
		{
			func() { printfn("%41t", false) },
			"false",
		},
		// strings and byte slices
		{
			func() { printfn("%s arg", "STRING") },
			"STRING arg",
		},
		{
			func() { printfn("%s arg", []byte("BYTE SLICE")) },
			"BYTE SLICE arg",
		},
		{
			func() { printfn("'%4s' arg with padding", "ABC") },
			"' ABC' arg with padding",
		},
		{
			func() { printfn("'%4s' arg longer than padding", "ABCDE") },
			"'ABCDE' arg longer than padding",
		},
		// uints
		{
			func() { printfn("uint arg: %d", uint8(10)) },
			"uint arg: 10",
		},
		{
			func() { printfn("uint arg: %o", uint16(0777)) },
			"uint arg: 777",
		},
		{
			func() { printfn("uint arg: 0x%x", uint32(0xbadf00d)) },
			"uint arg: 0xbadf00d",
		},
		{
			func() { printfn("uint arg with padding: '%10d'", uint64(123)) },
			"uint arg with padding: '       123'",
		},
		{
			func() { printfn("uint arg with padding: '%4o'", uint64(0777)) },
			"uint arg with padding: '0777'",
		},
		{
			func() { printfn("region [0x%16x - 0x%16x)", uintptr(0x40080000), uintptr(0x40180000)) },
			"region [0x0000000040080000 - 0x0000000040180000)",
		},
		{
			func() { printfn("uint arg longer than padding: '0x%5x'", int64(0xbadf00d)) },
			"uint arg longer than padding: '0xbadf00d'",
		},
		{
			func() { printfn("max: 0x%x", ^uint64(0)) },
			"max: 0xffffffffffffffff",
		},
		// ints
		{
			func() { printfn("int arg: %d", int8(-10)) },
			"int arg: -10",
		},
		{
			func() { printfn("int arg: %o", int16(0777)) },
			"int arg: 777",
		},
		{
			func() { printfn("int arg: %x", int32(-0xbadf00d)) },
			"int arg: -badf00d",
		},
		{
			func() { printfn("int arg with padding: '%10d'", int64(-12345678)) },
			"int arg with padding: ' -12345678'",
		},
		{
			func() { printfn("int arg with padding: '%8x'", int(-0xff)) },
			"int arg with padding: '-00000ff'",
		},
		{
			func() { printfn("zero: %d", 0) },
			"zero: 0",
		},
		// errors
		{
			func() { printfn("more args", "foo", "bar", "baz") },
			"more args%!(EXTRA)%!(EXTRA)%!(EXTRA)",
		},
		{
			func() { printfn("missing args %s") },
			"missing args (MISSING)",
		},
		{
			func() { printfn("bad verb %Q") },
			"bad verb %!(NOVERB)",
		},
		{
			func() { printfn("not bool %t", "foo") },
			"not bool %!(WRONGTYPE)",
		},
		{
			func() { printfn("not int %d", "foo") },
			"not int %!(WRONGTYPE)",
		},
		{
			func() { printfn("not string %s", 123) },
			"not string %!(WRONGTYPE)",
		},
		{
			func() { printfn("trailing %") },
			"trailing %!(NOVERB)",
		},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyPrintBuffer.rIndex = 0
		earlyPrintBuffer.wIndex = 0
	}()

	outputSink = nil
	earlyPrintBuffer.rIndex = 0
	earlyPrintBuffer.wIndex = 0

	exp := "hello world 0x2a"
	Printf("hello world 0x%x", 42)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if got := buf.String(); got != exp {
		t.Fatalf("expected attaching a sink to flush %q; got %q", exp, got)
	}

	if GetOutputSink() != &buf {
		t.Fatal("expected GetOutputSink to return the attached sink")
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	exp := "[memblock] 3 regions"
	Fprintf(&buf, "[%s] %d regions", "memblock", 3)

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get %q; got %q", exp, got)
	}
}
