package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/supertagfs/supertag/pkg/mutation"
	"github.com/supertagfs/supertag/pkg/store"
)

func rmdirFlags() *cli.Command {
	return &cli.Command{
		Name:      "rmdir",
		Usage:     "removes the last tag in a path from every file it intersects",
		ArgsUsage: "PATH...",
		Action:    rmdir,
	}
}

func rmdir(c *cli.Context) error {
	setLoggerLevel(c)

	paths := c.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("at least one path is required")
	}

	set, err := loadSettings(c)
	if err != nil {
		return err
	}
	col, err := resolveCollection(set, paths[0])
	if err != nil {
		return err
	}
	mountpoint := set.Mountpoint(col)

	s, err := store.Open(set.DBFile(col))
	if err != nil {
		return err
	}
	defer s.Close()

	for _, p := range paths {
		relpath := stripMountpoint(p, mountpoint)
		err := s.Mutate(context.Background(), func(tx *sql.Tx) error {
			return mutation.Rmdir(context.Background(), s, tx, set.Symbols(), relpath)
		})
		if err != nil {
			return err
		}
		flushPath(set, p)
	}
	return nil
}
