package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/supertagfs/supertag/pkg/platform"
)

func fstabFlags() *cli.Command {
	return &cli.Command{
		Name:   "fstab",
		Usage:  "lists known collections and their mount status",
		Action: fstab,
	}
}

func fstab(c *cli.Context) error {
	setLoggerLevel(c)

	set, err := loadSettings(c)
	if err != nil {
		return err
	}

	all, err := platform.AllCollections(set)
	if err != nil {
		return err
	}
	mounted, err := platform.MountedCollections(set)
	if err != nil {
		return err
	}
	primary, hasPrimary, err := platform.PrimaryCollection(set)
	if err != nil {
		return err
	}

	fmt.Println("Collections:")
	for _, col := range all {
		note := ""
		if hasPrimary && primary == col {
			note = "* "
		}
		mnt := ""
		if m, ok := mounted[col]; ok {
			mnt = " => " + m
		}
		fmt.Printf("  %s%s%s\n", note, col, mnt)
	}
	return nil
}
