package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/supertagfs/supertag/pkg/mutation"
	"github.com/supertagfs/supertag/pkg/notify"
	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/store"
	"github.com/supertagfs/supertag/pkg/tagtype"
)

func lnFlags() *cli.Command {
	return &cli.Command{
		Name:      "ln",
		Usage:     "links file(s) to a tag directory",
		ArgsUsage: "FILE... PATH",
		Action:    ln,
	}
}

func ln(c *cli.Context) error {
	setLoggerLevel(c)

	args := c.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("at least one file and a tag path are required")
	}
	files := args[:len(args)-1]
	tagPath := args[len(args)-1]

	set, err := loadSettings(c)
	if err != nil {
		return err
	}
	col, err := resolveCollection(set, tagPath)
	if err != nil {
		return err
	}

	mountpoint := set.Mountpoint(col)
	relTagPath := stripMountpoint(tagPath, mountpoint)

	s, err := store.Open(set.DBFile(col))
	if err != nil {
		return err
	}
	defer s.Close()

	uid, gid := uint32(os.Getuid()), uint32(os.Getgid())
	var umask settings.UMask
	notifier := notify.NewClient(set.NotifySocketFile(col))

	err = s.Mutate(context.Background(), func(tx *sql.Tx) error {
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				return err
			}
			abs, err = filepath.EvalSymlinks(abs)
			if err != nil {
				return err
			}
			primaryTag := tagtype.GetFilename(abs)
			if _, err := mutation.Ln(context.Background(), s, tx, set.Symbols(), mountpoint, abs, relTagPath, primaryTag, uid, gid, umask, nil, notifier); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	flushTags(set, mountpoint, relTagPath)
	return nil
}

// stripMountpoint removes mountpoint from p if p is rooted under it,
// leaving a relative tag path either way. The mountpoint itself strips to
// the empty path.
func stripMountpoint(p, mountpoint string) string {
	rel, err := filepath.Rel(mountpoint, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return strings.TrimPrefix(p, "/")
	}
	if rel == "." {
		return ""
	}
	return rel
}
