package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/supertagfs/supertag/pkg/mutation"
	"github.com/supertagfs/supertag/pkg/store"
)

func rmFlags() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "removes a linked file from a tag path",
		ArgsUsage: "FILE",
		Action:    rm,
	}
}

func rm(c *cli.Context) error {
	setLoggerLevel(c)

	if c.Args().Len() != 1 {
		return fmt.Errorf("a single file path is required")
	}
	file := c.Args().First()

	set, err := loadSettings(c)
	if err != nil {
		return err
	}
	col, err := resolveCollection(set, file)
	if err != nil {
		return err
	}
	mountpoint := set.Mountpoint(col)
	relpath := stripMountpoint(file, mountpoint)

	s, err := store.Open(set.DBFile(col))
	if err != nil {
		return err
	}
	defer s.Close()

	err = s.Mutate(context.Background(), func(tx *sql.Tx) error {
		_, err := mutation.Rm(context.Background(), s, tx, set.Symbols(), relpath)
		return err
	})
	if err != nil {
		return err
	}

	flushPath(set, file)
	flushTags(set, mountpoint, relpath)
	return nil
}
