package main

import (
	"github.com/urfave/cli/v2"

	"github.com/supertagfs/supertag/pkg/platform"
)

func unmountFlags() *cli.Command {
	return &cli.Command{
		Name:      "unmount",
		Usage:     "unmounts one or all collections",
		ArgsUsage: "[COLLECTION]",
		Action:    unmountCollection,
	}
}

func unmountCollection(c *cli.Context) error {
	setLoggerLevel(c)

	set, err := loadSettings(c)
	if err != nil {
		return err
	}

	var toUnmount []string
	if col := c.Args().First(); col != "" {
		toUnmount = []string{col}
	} else {
		mounted, err := platform.MountedCollections(set)
		if err != nil {
			return err
		}
		for col := range mounted {
			toUnmount = append(toUnmount, col)
		}
	}

	for _, col := range toUnmount {
		mountpoint := set.Mountpoint(col)
		if err := platform.Unmount(mountpoint); err != nil {
			return err
		}
		logger.Infof("unmounted %s", col)
	}
	return nil
}
