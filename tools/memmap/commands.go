package main

import (
	"bytes"
	"fmt"
	"strings"

	"phoenix/kernel/cpu"
	"phoenix/kernel/kfmt"
	"phoenix/kernel/mm"
	"phoenix/kernel/mm/memblock"
	"phoenix/kernel/mm/mmu"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
)

const allocFlagName = "alloc"

var tablesCommand = &cli.Command{
	Name:   "tables",
	Usage:  "print the block descriptors and table usage for the platform",
	Action: runTables,
}

var regionsCommand = &cli.Command{
	Name:  "regions",
	Usage: "print the boot-time physical memory map",
	Flags: []cli.Flag{
		&cli.Uint64SliceFlag{
			Name:  allocFlagName,
			Usage: "page aligned allocations (in bytes) to perform after reserving the kernel",
		},
	},
	Action: runRegions,
}

var bootCommand = &cli.Command{
	Name:   "boot",
	Usage:  "run the address space switch against a simulated boot core",
	Action: runBoot,
}

func sizeString(size mm.Size) string {
	switch {
	case size >= mm.Gb && size%mm.Gb == 0:
		return fmt.Sprintf("%dG", size/mm.Gb)
	case size >= mm.Mb && size%mm.Mb == 0:
		return fmt.Sprintf("%dM", size/mm.Mb)
	case size >= mm.Kb && size%mm.Kb == 0:
		return fmt.Sprintf("%dK", size/mm.Kb)
	default:
		return fmt.Sprintf("%dB", size)
	}
}

// buildTables runs the table builder and encoder for cfg into a host
// allocated pool placed at the kernel's pool address.
func buildTables(cfg *platformConfig) (*mmu.DescriptorSet, *mmu.TablePool, uintptr, error) {
	ranges, err := cfg.ranges()
	if err != nil {
		return nil, nil, 0, err
	}

	var (
		set      mmu.DescriptorSet
		pool     = new(mmu.TablePool)
		poolPhys = cfg.layout().PoolStart
	)

	if kerr := mmu.BuildTables(ranges, &set); kerr != nil {
		return nil, nil, 0, errors.Wrapf(kerr, "build tables for %s", cfg.Name)
	}

	if kerr := mmu.Encode(&set, pool, poolPhys); kerr != nil {
		return nil, nil, 0, errors.Wrapf(kerr, "encode tables for %s", cfg.Name)
	}

	return &set, pool, poolPhys, nil
}

func runTables(c *cli.Context) error {
	cfg, err := loadConfig(c.String(platformFlagName))
	if err != nil {
		return err
	}

	set, pool, poolPhys, err := buildTables(cfg)
	if err != nil {
		return err
	}

	descriptors := set.Descriptors()
	w := c.App.Writer

	for _, d := range descriptors {
		fmt.Fprintf(w, "0x%016x -> 0x%010x %4s %s\n", d.VirtBase, d.PhysBase, sizeString(d.Size), d.Attr)
	}

	l1Blocks := lo.CountBy(descriptors, func(d mmu.Descriptor) bool { return d.Size == mmu.L1BlockSize })
	fmt.Fprintf(w, "descriptors: %d (1G blocks: %d, 2M blocks: %d)\n", len(descriptors), l1Blocks, len(descriptors)-l1Blocks)

	byAttr := lo.GroupBy(descriptors, func(d mmu.Descriptor) mmu.AttrClass { return d.Attr })
	for attr := mmu.AttrNormal; attr <= mmu.AttrNonCacheable; attr++ {
		if group, ok := byAttr[attr]; ok {
			mapped := lo.SumBy(group, func(d mmu.Descriptor) mm.Size { return d.Size })
			fmt.Fprintf(w, "%s: %s\n", attr, sizeString(mapped))
		}
	}

	fmt.Fprintf(w, "root table: 0x%x, level 2 tables: %d\n", poolPhys, pool.L2TablesUsed())

	logrus.WithFields(logrus.Fields{
		"platform":    cfg.Name,
		"descriptors": len(descriptors),
		"l2Tables":    pool.L2TablesUsed(),
	}).Debug("boot tables built")

	return nil
}

// trackerFor declares the platform RAM and reserves the memory that the
// kernel uses at boot.
func trackerFor(cfg *platformConfig) (*memblock.Tracker, error) {
	var (
		tracker = new(memblock.Tracker)
		layout  = cfg.layout()
	)

	if kerr := tracker.Add(uintptr(cfg.RAM.Base), mm.Size(cfg.RAM.Size)); kerr != nil {
		return nil, errors.Wrap(kerr, "add RAM")
	}

	reserved := append([]memWindow{
		{Name: "kernel image", Base: uint64(layout.ImageStart), Size: uint64(layout.ImageEnd - layout.ImageStart)},
		{Name: "table pool", Base: uint64(layout.PoolStart), Size: uint64(layout.StackStart - layout.PoolStart)},
		{Name: "boot stack", Base: uint64(layout.StackStart), Size: uint64(layout.StackEnd - layout.StackStart)},
	}, cfg.Reserved...)

	for _, r := range reserved {
		if kerr := tracker.Reserve(uintptr(r.Base), mm.Size(r.Size)); kerr != nil {
			return nil, errors.Wrapf(kerr, "reserve %s", r.Name)
		}

		logrus.WithFields(logrus.Fields{
			"name": r.Name,
			"base": fmt.Sprintf("0x%x", r.Base),
			"size": sizeString(mm.Size(r.Size)),
		}).Debug("reserved")
	}

	return tracker, nil
}

func runRegions(c *cli.Context) error {
	cfg, err := loadConfig(c.String(platformFlagName))
	if err != nil {
		return err
	}

	tracker, err := trackerFor(cfg)
	if err != nil {
		return err
	}

	w := c.App.Writer
	for _, size := range c.Uint64Slice(allocFlagName) {
		base, kerr := tracker.Alloc(mm.Size(size), mm.PageSize)
		if kerr != nil {
			return errors.Wrapf(kerr, "allocate %s", sizeString(mm.Size(size)))
		}
		fmt.Fprintf(w, "allocated %s at 0x%x\n", sizeString(mm.Size(size)), base)
	}

	tracker.Dump(w)

	var regions []memblock.Region
	tracker.Visit(func(r memblock.Region) bool {
		regions = append(regions, r)
		return true
	})

	largest := lo.MaxBy(lo.Filter(regions, func(r memblock.Region, _ int) bool { return r.Kind == memblock.KindFree }),
		func(a, b memblock.Region) bool { return a.Size > b.Size })
	if largest.Size != 0 {
		fmt.Fprintf(w, "largest free region: 0x%x (%s)\n", largest.Base, sizeString(largest.Size))
	}

	return nil
}

func runBoot(c *cli.Context) error {
	cfg, err := loadConfig(c.String(platformFlagName))
	if err != nil {
		return err
	}

	ranges, err := cfg.ranges()
	if err != nil {
		return err
	}

	var (
		layout  = cfg.layout()
		entered bool
		diag    bytes.Buffer
		done    = make(chan struct{})
		bootCfg = mmu.BootConfig{
			Ranges:     ranges,
			Pool:       new(mmu.TablePool),
			PoolPhys:   layout.PoolStart,
			ImageStart: layout.ImageStart,
			ImageEnd:   layout.ImageEnd,
			StackStart: layout.StackStart,
			StackEnd:   layout.StackEnd,
			BSSStart:   layout.BSSStart,
			BSSEnd:     layout.BSSEnd,
			Main:       func(*mmu.BootConfig) { entered = true },
		}
	)

	defer kfmt.SetOutputSink(kfmt.GetOutputSink())
	kfmt.SetOutputSink(&diag)
	cpu.ResetSim()
	mmu.ResetSwitch()

	// A failed switch halts the simulated core which ends the goroutine.
	go func() {
		defer close(done)
		mmu.Boot(&bootCfg)
	}()
	<-done

	sim := cpu.Sim()
	w := c.App.Writer
	fmt.Fprintf(w, "state: %s\n", mmu.CurrentState())
	fmt.Fprintf(w, "EL%d MAIR=0x%x TCR=0x%x TTBR0=0x%x TTBR1=0x%x SCTLR=0x%x\n",
		sim.CurrentEL, sim.MAIR, sim.TCR, sim.TTBR0, sim.TTBR1, sim.SCTLR)
	fmt.Fprintf(w, "jump offset: 0x%x\n", sim.VirtualOffset)

	if !entered {
		if kerr := mmu.BootError(); kerr != nil {
			return errors.Wrapf(kerr, "switch stopped in state %s", mmu.CurrentState())
		}
		return errors.Errorf("switch stopped in state %s: %s", mmu.CurrentState(), strings.TrimSpace(diag.String()))
	}

	logrus.WithField("platform", cfg.Name).Info("address space switch completed")
	return nil
}
