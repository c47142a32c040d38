package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/supertagfs/supertag/pkg/mutation"
	"github.com/supertagfs/supertag/pkg/notify"
	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/store"
)

func mvFlags() *cli.Command {
	return &cli.Command{
		Name:      "mv",
		Usage:     "renames or merges a tag, tag group, or linked file",
		ArgsUsage: "SRC DST",
		Action:    mv,
	}
}

func mv(c *cli.Context) error {
	setLoggerLevel(c)

	if c.Args().Len() != 2 {
		return fmt.Errorf("src and dst are required")
	}
	src, dst := c.Args().Get(0), c.Args().Get(1)

	set, err := loadSettings(c)
	if err != nil {
		return err
	}
	col, err := resolveCollection(set, src)
	if err != nil {
		return err
	}
	mountpoint := set.Mountpoint(col)
	relSrc := stripMountpoint(src, mountpoint)
	relDst := stripMountpoint(dst, mountpoint)

	s, err := store.Open(set.DBFile(col))
	if err != nil {
		return err
	}
	defer s.Close()

	uid, gid := uint32(os.Getuid()), uint32(os.Getgid())
	var umask settings.UMask
	notifier := notify.NewClient(set.NotifySocketFile(col))

	err = s.Mutate(context.Background(), func(tx *sql.Tx) error {
		return mutation.MoveOrMerge(context.Background(), s, tx, set.Symbols(), relSrc, relDst, uid, gid, umask, notifier)
	})
	if err != nil {
		return err
	}

	flushPath(set, src)
	flushPath(set, dst)
	return nil
}
