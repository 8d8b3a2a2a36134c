package hal

import (
	"bytes"
	"io"
	"phoenix/device"
	"phoenix/kernel"
	"phoenix/kernel/kfmt"
	"testing"
)

type mockDriver struct {
	name    string
	initErr *kernel.Error
	inits   int
}

func (d *mockDriver) DriverName() string { return d.name }

func (d *mockDriver) DriverVersion() (uint16, uint16, uint16) { return 1, 2, 3 }

func (d *mockDriver) DriverInit(_ io.Writer) *kernel.Error {
	d.inits++
	return d.initErr
}

type mockConsole struct {
	mockDriver
	bytes.Buffer
}

func TestProbe(t *testing.T) {
	defer func(origSink io.Writer) {
		kfmt.SetOutputSink(origSink)
		devices = managedDevices{}
	}(kfmt.GetOutputSink())

	kfmt.SetOutputSink(nil)
	devices = managedDevices{}

	var (
		failing = &mockDriver{name: "failing", initErr: &kernel.Error{Module: "test", Message: "no device"}}
		plain   = &mockDriver{name: "plain"}
		cons    = &mockConsole{mockDriver: mockDriver{name: "uart"}}
		second  = &mockConsole{mockDriver: mockDriver{name: "uart2"}}
	)

	probe(device.DriverInfoList{
		{Probe: func() device.Driver { return nil }},
		{Probe: func() device.Driver { return failing }},
		{Probe: func() device.Driver { return plain }},
		{Probe: func() device.Driver { return cons }},
		{Probe: func() device.Driver { return second }},
	})

	if ActiveConsole() != cons {
		t.Fatalf("expected the first writable driver to become the console")
	}

	if exp, got := 3, len(devices.activeDrivers); got != exp {
		t.Fatalf("expected %d active drivers; got %d", exp, got)
	}

	exp := "[hal] failing(1.2.3): init failed: no device\n" +
		"[hal] plain(1.2.3): initialized\n" +
		"[hal] uart(1.2.3): initialized\n" +
		"[hal] uart2(1.2.3): initialized\n"

	if got := cons.String(); got != exp {
		t.Fatalf("expected console output:\n%q\ngot:\n%q", exp, got)
	}

	if second.Len() != 0 {
		t.Fatal("expected only the active console to receive output")
	}
}

func TestDetectHardware(t *testing.T) {
	defer func(origSink io.Writer) {
		kfmt.SetOutputSink(origSink)
		devices = managedDevices{}
	}(kfmt.GetOutputSink())

	devices = managedDevices{}
	cons := &mockConsole{mockDriver: mockDriver{name: "late"}}
	early := &mockConsole{mockDriver: mockDriver{name: "early"}}

	device.RegisterDriver(&device.DriverInfo{Order: device.DetectOrderLast, Probe: func() device.Driver { return cons }})
	device.RegisterDriver(&device.DriverInfo{Order: device.DetectOrderEarly, Probe: func() device.Driver { return early }})

	DetectHardware()

	if ActiveConsole() != early {
		t.Fatal("expected drivers to be probed in detection order")
	}
}
