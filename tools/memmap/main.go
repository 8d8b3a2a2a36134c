// Command memmap inspects the kernel's boot memory setup on the host. It
// runs the same translation table builder, region tracker and address space
// switch that the kernel uses, against a platform description and a
// simulated CPU.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
)

const (
	platformFlagName = "platform"
	logLevelFlagName = "log-level"
)

var appCommands = []*cli.Command{
	tablesCommand,
	regionsCommand,
	bootCommand,
}

func app() *cli.App {
	return &cli.App{
		Name:     "memmap",
		Usage:    "inspect the boot translation tables and physical memory map",
		Commands: appCommands,
		Before:   beforeApp,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    platformFlagName,
				Aliases: []string{"p"},
				Usage:   "TOML platform description (defaults to QEMU virt)",
			},
			&cli.StringFlag{
				Name:  logLevelFlagName,
				Value: logrus.InfoLevel.String(),
				Usage: "logging level (panic, fatal, error, warn, info, debug, trace)",
			},
		},
	}
}

func beforeApp(c *cli.Context) error {
	lvl, err := logrus.ParseLevel(c.String(logLevelFlagName))
	if err != nil {
		return err
	}

	logrus.SetLevel(lvl)
	logrus.SetOutput(c.App.ErrWriter)
	return nil
}

func main() {
	if err := app().Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("memmap failed")
	}
}
