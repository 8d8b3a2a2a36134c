package main

import (
	"phoenix/kernel/kmain"
	"phoenix/kernel/mm"
	"phoenix/kernel/mm/mmu"
	"phoenix/kernel/platform"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// memWindow is a named physical address range in a platform description.
type memWindow struct {
	Name string `toml:"name"`
	Base uint64 `toml:"base"`
	Size uint64 `toml:"size"`
	Attr string `toml:"attr"`
}

// platformConfig describes a machine's memory map and where the kernel is
// loaded.
type platformConfig struct {
	Name             string      `toml:"name"`
	KernelLoadOffset uint64      `toml:"kernel_load_offset"`
	KernelSize       uint64      `toml:"kernel_size"`
	RAM              memWindow   `toml:"ram"`
	Windows          []memWindow `toml:"window"`
	Reserved         []memWindow `toml:"reserve"`
}

const defaultKernelSize = uint64(mm.Mb)

// defaultConfig returns the description of the QEMU virt machine the kernel
// is built for.
func defaultConfig() *platformConfig {
	cfg := &platformConfig{
		Name:             "qemu-virt",
		KernelLoadOffset: uint64(platform.KernelLoadOffset),
		KernelSize:       defaultKernelSize,
	}

	platform.VisitWindows(func(w platform.Window) bool {
		win := memWindow{Name: w.Name, Base: uint64(w.Base), Size: uint64(w.Size), Attr: mmu.AttrNormal.String()}
		if !w.Device {
			cfg.RAM = win
			return true
		}

		win.Attr = mmu.AttrDevice.String()
		cfg.Windows = append(cfg.Windows, win)
		return true
	})

	return cfg
}

// loadConfig reads a platform description from a TOML file. An empty path
// selects the built-in QEMU virt description.
func loadConfig(path string) (*platformConfig, error) {
	if path == "" {
		return defaultConfig(), nil
	}

	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load TOML: %s", path)
	}

	cfg := &platformConfig{}
	if err := tree.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal TOML: %s", path)
	}

	if cfg.Name == "" {
		cfg.Name = path
	}

	if cfg.KernelSize == 0 {
		cfg.KernelSize = defaultKernelSize
	}

	if cfg.RAM.Size == 0 {
		return nil, errors.Errorf("%s: missing ram section", path)
	}

	if _, err := cfg.ranges(); err != nil {
		return nil, errors.Wrap(err, path)
	}

	return cfg, nil
}

func parseAttr(attr string) (mmu.AttrClass, error) {
	for class := mmu.AttrNormal; class <= mmu.AttrNonCacheable; class++ {
		if attr == class.String() {
			return class, nil
		}
	}

	return 0, errors.Errorf("unknown attribute class %q", attr)
}

// ranges returns the physical ranges that the boot tables must map.
func (cfg *platformConfig) ranges() ([]mmu.Range, error) {
	ranges := []mmu.Range{{PhysBase: uintptr(cfg.RAM.Base), Size: mm.Size(cfg.RAM.Size), Attr: mmu.AttrNormal}}

	for _, w := range cfg.Windows {
		attr, err := parseAttr(w.Attr)
		if err != nil {
			return nil, errors.Wrapf(err, "window %q", w.Name)
		}

		ranges = append(ranges, mmu.Range{PhysBase: uintptr(w.Base), Size: mm.Size(w.Size), Attr: attr})
	}

	return ranges, nil
}

// layout returns where the kernel image, table pool and boot stack end up in
// physical memory. The kernel is assumed to have no BSS that needs clearing
// on the host.
func (cfg *platformConfig) layout() kmain.BootInfo {
	imageStart := uintptr(cfg.RAM.Base + cfg.KernelLoadOffset)
	imageEnd := imageStart + uintptr(cfg.KernelSize)

	return kmain.BootInfoFromVirtual(
		mm.PhysToVirt(imageStart),
		mm.PhysToVirt(imageEnd),
		mm.PhysToVirt(imageEnd),
		mm.PhysToVirt(imageEnd),
	)
}
