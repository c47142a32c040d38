package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/billziss-gh/cgofuse/fuse"
	"github.com/urfave/cli/v2"

	"github.com/supertagfs/supertag/pkg/fs"
	"github.com/supertagfs/supertag/pkg/notify"
	"github.com/supertagfs/supertag/pkg/opcache"
	"github.com/supertagfs/supertag/pkg/query"
	"github.com/supertagfs/supertag/pkg/settings"
	"github.com/supertagfs/supertag/pkg/store"
)

func mountFlags() *cli.Command {
	return &cli.Command{
		Name:      "mount",
		Usage:     "mounts a supertag collection",
		ArgsUsage: "COLLECTION",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "foreground", Aliases: []string{"f"}, Usage: "don't daemonize"},
			&cli.UintFlag{Name: "uid", Usage: "owning uid of the mounted directory", DefaultText: "current uid"},
			&cli.UintFlag{Name: "gid", Usage: "owning gid of the mounted directory", DefaultText: "current gid"},
			&cli.StringFlag{Name: "permissions", Usage: "octal permissions of the mounted directory", DefaultText: "0755"},
			&cli.BoolFlag{Name: "daemonized", Hidden: true, Usage: "internal: marks the re-exec'd background process"},
		},
		Action: mount,
	}
}

// mount brings a collection's FUSE host up. Backgrounding re-execs this
// same binary with --daemonized and --foreground set and detaches it,
// rather than forking the running process the way the original does —
// fork() after cgo has initialized threads (as cgofuse's C shim does) is
// unsafe, so a plain re-exec is the idiomatic Go substitute.
func mount(c *cli.Context) error {
	setLoggerLevel(c)

	col := c.Args().First()
	if col == "" {
		return fmt.Errorf("collection name is required")
	}

	if !c.Bool("foreground") && !c.Bool("daemonized") {
		return daemonize(c, col)
	}

	set, err := loadSettings(c)
	if err != nil {
		return err
	}
	if err := set.SetCollection(col, true); err != nil {
		return err
	}
	if err := set.EnsureCollectionDirs(col); err != nil {
		return err
	}

	if c.IsSet("uid") || c.IsSet("gid") || c.IsSet("permissions") {
		m := set.Config().Mount
		if c.IsSet("uid") {
			m.UID = uint32(c.Uint("uid"))
		}
		if c.IsSet("gid") {
			m.GID = uint32(c.Uint("gid"))
		}
		if c.IsSet("permissions") {
			perms, err := strconv.ParseUint(c.String("permissions"), 8, 32)
			if err != nil {
				return fmt.Errorf("%s is not a valid octal permission", c.String("permissions"))
			}
			m.Permissions = uint32(perms)
		}
		set.SetMount(m)
	}

	mountpoint := set.Mountpoint(col)
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return fmt.Errorf("creating mountpoint %s: %w", mountpoint, err)
	}

	s, err := store.Open(set.DBFile(col))
	if err != nil {
		return err
	}
	defer s.Close()

	engine := query.New(s, set.Symbols())
	hub := notify.NewHub()
	if l, err := notify.Serve(hub, set.NotifySocketFile(col)); err != nil {
		logger.Warnf("notifier socket unavailable: %s", err)
	} else {
		defer l.Close()
	}

	fsys := fs.New(s, engine, set, col, mountpoint, opcache.New(), hub)
	host := fuse.NewFileSystemHost(fsys)

	logger.Infof("mounting %s at %s", col, mountpoint)
	if !host.Mount(mountpoint, mountOptions(col)) {
		return fmt.Errorf("mounting %s failed", mountpoint)
	}
	return nil
}

func mountOptions(col string) []string {
	return []string{"-o", "volname=" + col}
}

func daemonize(c *cli.Context, col string) error {
	args := []string{"mount", col, "--foreground", "--daemonized"}
	if c.IsSet("uid") {
		args = append(args, "--uid", c.String("uid"))
	}
	if c.IsSet("gid") {
		args = append(args, "--gid", c.String("gid"))
	}
	if c.IsSet("permissions") {
		args = append(args, "--permissions", c.String("permissions"))
	}
	if c.Bool("verbose") {
		args = append(args, "--verbose")
	}

	cmd := exec.Command(os.Args[0], args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("forking into background: %w", err)
	}
	fmt.Printf("Mounting %s in the background, PID %d\n", col, cmd.Process.Pid)
	return cmd.Process.Release()
}
